package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/launchdeck/launchdeck/app/repository"
	"github.com/launchdeck/launchdeck/internal/pkg/billing"
	"github.com/launchdeck/launchdeck/internal/pkg/database"
	"github.com/launchdeck/launchdeck/internal/pkg/dns"
	"github.com/launchdeck/launchdeck/internal/pkg/env"
	counter "github.com/launchdeck/launchdeck/internal/pkg/metrics/counter"
	"github.com/launchdeck/launchdeck/internal/pkg/retryqueue"
)

// HandleBillingWebhook ingests signed billing provider events. Callers only
// ever see 200, 401 or 500: a non-2xx tells the provider to redeliver,
// which is the implicit retry contract for the ingestion path.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Billing-Signature"))
	secret := env.GetEnv("BILLING_WEBHOOK_SECRET", "")

	// Signature check runs on the raw bytes before any JSON parse.
	if err := billing.VerifyWebhookSignature(rawBody, signature, secret); err != nil {
		if errors.Is(err, billing.ErrSecretNotConfigured) {
			log.Errorf("[Webhook] BILLING_WEBHOOK_SECRET is not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_not_configured"})
		}
		_ = counter.AddWebhookOutcome(counter.OutcomeRejected)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	evt, err := billing.ParseEvent(rawBody)
	if err != nil {
		_ = counter.AddWebhookOutcome(counter.OutcomeFailed)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "invalid_payload"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := svc.RecordWebhookEvent(ctx, evt.ID, evt.Type, rawBody, true)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		if !billing.NeedsReprocessing(stored, evt.Type) {
			_ = counter.AddWebhookOutcome(counter.OutcomeDuplicate)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
		log.Infof("[Webhook] Reprocessing redelivered event %s (%s)", stored.ProviderEventID, evt.Type)
	}

	var procErr error
	if evt.Type == billing.EventCheckoutCompleted {
		procErr = handleCheckoutCompleted(ctx, evt)
	} else {
		_, procErr = svc.HandleEvent(ctx, evt)
	}
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		_ = counter.AddWebhookOutcome(counter.OutcomeFailed)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation_failed"})
	}

	_ = counter.AddWebhookOutcome(counter.OutcomeProcessed)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// handleCheckoutCompleted activates the paying tenant (primary write) and
// runs the provisioning side effects. Side-effect failures are captured as
// retry queue entries, never surfaced to the provider.
func handleCheckoutCompleted(ctx context.Context, evt *billing.Event) error {
	obj, err := billing.ParseCheckoutObject(evt.Data.Object)
	if err != nil {
		return err
	}

	repos := repository.GetGlobalRepositories()
	tenant, err := repos.Tenant.GetBySubdomain(obj.TenantSubdomain)
	if err != nil {
		return err
	}
	if err := repos.Tenant.Activate(tenant.ID, obj.Plan); err != nil {
		return err
	}

	queue := retryqueue.GetManager().GetQueue()

	dnsClient := dns.NewClientFromEnv()
	if err := dnsClient.CreateRecord(ctx, tenant.Subdomain); err != nil {
		log.Warnf("[Webhook] DNS provisioning for %s failed, queuing retry: %v", tenant.Subdomain, err)
		payload := retryqueue.DNSProvisioningPayload{TenantID: tenant.ID, Subdomain: tenant.Subdomain}
		if _, enqErr := queue.Enqueue(retryqueue.TypeDNSProvisioning, payload.ToMap()); enqErr != nil {
			log.Errorf("[Webhook] Could not enqueue dns_provisioning retry for tenant %d: %v", tenant.ID, enqErr)
		}
	}

	if email := strings.TrimSpace(obj.CustomerEmail); email != "" {
		if _, err := repos.User.GetByEmail(email); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// The user row may not exist yet due to replication lag.
				log.Warnf("[Webhook] No user row for %s yet, queuing lookup retry", email)
				payload := retryqueue.UserLookupPayload{Email: email, Reason: "checkout.completed " + evt.ID}
				if _, enqErr := queue.Enqueue(retryqueue.TypeUserLookup, payload.ToMap()); enqErr != nil {
					log.Errorf("[Webhook] Could not enqueue user_lookup retry for %s: %v", email, enqErr)
				}
			} else {
				log.Errorf("[Webhook] User lookup for %s failed: %v", email, err)
			}
		}
	}

	return nil
}
