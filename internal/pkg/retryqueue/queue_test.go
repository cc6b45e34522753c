package retryqueue

import (
	"context"
	"testing"
	"time"

	"github.com/launchdeck/launchdeck/app/models"
)

func TestEnqueue_ThenDrainDelivers(t *testing.T) {
	store := newFakeStore()
	q := NewQueue(store)

	payload := DNSProvisioningPayload{TenantID: 7, Subdomain: "acme"}
	entry, err := q.Enqueue(TypeDNSProvisioning, payload.ToMap())
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if entry.PublicID == "" {
		t.Fatalf("expected a public id")
	}
	if entry.Status != models.RetryStatusPending || entry.MaxAttempts != models.DefaultMaxRetryAttempts {
		t.Fatalf("unexpected entry: status=%q max=%d", entry.Status, entry.MaxAttempts)
	}
	if entry.NextEligibleAt.After(time.Now()) {
		t.Fatalf("a fresh entry must be immediately eligible")
	}

	registry := NewRegistry()
	var got *DNSProvisioningPayload
	registry.Register(TypeDNSProvisioning, func(ctx context.Context, raw map[string]interface{}) bool {
		decoded, err := DNSProvisioningPayloadFromMap(raw)
		if err != nil {
			t.Errorf("payload round trip failed: %v", err)
			return false
		}
		got = decoded
		return true
	})

	summary, err := NewDispatcher(store, registry).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Successes != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got == nil || got.TenantID != 7 || got.Subdomain != "acme" {
		t.Fatalf("payload did not survive the queue: %+v", got)
	}
}
