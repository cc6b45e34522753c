package retryqueue

import (
	"context"
	"encoding/json"
	"sync"
)

// Retry entry types. The set is open: dispatch happens by string tag and
// new side-effect types only need a payload struct and a handler.
const (
	TypeUserLookup            = "user_lookup"
	TypeDNSProvisioning       = "dns_provisioning"
	TypeSubdomainProvisioning = "subdomain_provisioning"
)

// HandlerFunc executes one retry attempt against its payload. It reports
// success or failure as a boolean; the dispatcher treats panics as failure
// so one bad entry cannot abort the batch.
type HandlerFunc func(ctx context.Context, payload map[string]interface{}) bool

// Registry maps retry types to their handlers. Unknown types are skipped
// with a warning by the dispatcher, not retried forever.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register installs a handler for a retry type.
func (r *Registry) Register(retryType string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[retryType] = handler
}

// Lookup resolves the handler for a retry type.
func (r *Registry) Lookup(retryType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[retryType]
	return h, ok
}

// UserLookupPayload retries resolving a user row that did not exist yet
// when the originating webhook was handled (replication lag).
type UserLookupPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// ToMap converts the payload to a map for storage
func (p UserLookupPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"email":  p.Email,
		"reason": p.Reason,
	}
}

// UserLookupPayloadFromMap creates a payload from a map
func UserLookupPayloadFromMap(data map[string]interface{}) (*UserLookupPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload UserLookupPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// DNSProvisioningPayload retries registering the DNS record for a tenant
// subdomain and activating the tenant afterwards.
type DNSProvisioningPayload struct {
	TenantID  uint   `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
}

// ToMap converts the payload to a map for storage
func (p DNSProvisioningPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id": p.TenantID,
		"subdomain": p.Subdomain,
	}
}

// DNSProvisioningPayloadFromMap creates a payload from a map
func DNSProvisioningPayloadFromMap(data map[string]interface{}) (*DNSProvisioningPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload DNSProvisioningPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// SubdomainProvisioningPayload retries flipping a tenant subdomain to
// active when the DNS record already exists but the status write failed.
type SubdomainProvisioningPayload struct {
	TenantID  uint   `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
}

// ToMap converts the payload to a map for storage
func (p SubdomainProvisioningPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id": p.TenantID,
		"subdomain": p.Subdomain,
	}
}

// SubdomainProvisioningPayloadFromMap creates a payload from a map
func SubdomainProvisioningPayloadFromMap(data map[string]interface{}) (*SubdomainProvisioningPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload SubdomainProvisioningPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}
