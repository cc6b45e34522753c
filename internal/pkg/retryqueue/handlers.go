package retryqueue

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/launchdeck/launchdeck/app/repository"
	"github.com/launchdeck/launchdeck/internal/pkg/dns"
)

// DefaultRegistry wires the built-in retry handlers against the given
// repositories, DNS client and queue.
func DefaultRegistry(repos *repository.Repositories, dnsClient *dns.Client, queue *Queue) *Registry {
	registry := NewRegistry()
	registry.Register(TypeUserLookup, userLookupHandler(repos.User))
	registry.Register(TypeDNSProvisioning, dnsProvisioningHandler(repos.Tenant, dnsClient, queue))
	registry.Register(TypeSubdomainProvisioning, subdomainProvisioningHandler(repos.Tenant))
	return registry
}

// userLookupHandler re-queries a user by email. Finding the user counts as
// success and is only logged; the workflow that originally needed the row
// is not resumed automatically. Known limitation.
func userLookupHandler(users repository.UserRepository) HandlerFunc {
	return func(ctx context.Context, rawPayload map[string]interface{}) bool {
		payload, err := UserLookupPayloadFromMap(rawPayload)
		if err != nil || strings.TrimSpace(payload.Email) == "" {
			log.Errorf("[RetryQueue] user_lookup payload is invalid: %v", err)
			return false
		}

		user, err := users.GetByEmail(payload.Email)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Errorf("[RetryQueue] user_lookup query failed for %s: %v", payload.Email, err)
			}
			return false
		}

		log.Infof("[RetryQueue] user_lookup resolved %s to user %d (reason: %s)", payload.Email, user.ID, payload.Reason)
		return true
	}
}

// dnsProvisioningHandler re-invokes the DNS record create and, on success,
// flips the tenant subdomain to active. When the record lands but the
// activation write fails, the remaining work is handed off as a
// subdomain_provisioning entry so later attempts do not re-hit the DNS API.
func dnsProvisioningHandler(tenants repository.TenantRepository, dnsClient *dns.Client, queue *Queue) HandlerFunc {
	return func(ctx context.Context, rawPayload map[string]interface{}) bool {
		payload, err := DNSProvisioningPayloadFromMap(rawPayload)
		if err != nil || payload.TenantID == 0 || strings.TrimSpace(payload.Subdomain) == "" {
			log.Errorf("[RetryQueue] dns_provisioning payload is invalid: %v", err)
			return false
		}

		if err := dnsClient.CreateRecord(ctx, payload.Subdomain); err != nil {
			log.Warnf("[RetryQueue] dns_provisioning for %s failed: %v", payload.Subdomain, err)
			return false
		}
		if err := tenants.Activate(payload.TenantID, ""); err != nil {
			log.Errorf("[RetryQueue] dns_provisioning could not activate tenant %d, handing off: %v", payload.TenantID, err)
			followup := SubdomainProvisioningPayload{TenantID: payload.TenantID, Subdomain: payload.Subdomain}
			if _, enqErr := queue.Enqueue(TypeSubdomainProvisioning, followup.ToMap()); enqErr != nil {
				log.Errorf("[RetryQueue] Could not enqueue subdomain_provisioning for tenant %d: %v", payload.TenantID, enqErr)
				return false
			}
			return true
		}
		return true
	}
}

// subdomainProvisioningHandler covers the narrower failure where the DNS
// record already exists but the tenant activation write did not land.
func subdomainProvisioningHandler(tenants repository.TenantRepository) HandlerFunc {
	return func(ctx context.Context, rawPayload map[string]interface{}) bool {
		payload, err := SubdomainProvisioningPayloadFromMap(rawPayload)
		if err != nil || payload.TenantID == 0 {
			log.Errorf("[RetryQueue] subdomain_provisioning payload is invalid: %v", err)
			return false
		}

		if err := tenants.Activate(payload.TenantID, ""); err != nil {
			log.Errorf("[RetryQueue] subdomain_provisioning could not activate tenant %d: %v", payload.TenantID, err)
			return false
		}
		log.Infof("[RetryQueue] subdomain %s for tenant %d is active", payload.Subdomain, payload.TenantID)
		return true
	}
}
