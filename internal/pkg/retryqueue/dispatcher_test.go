package retryqueue

import (
	"context"
	"testing"
	"time"

	"github.com/launchdeck/launchdeck/app/models"
)

// fakeStore keeps retry entries in memory with the same selection and claim
// semantics as the GORM store.
type fakeStore struct {
	entries map[uint]*models.WebhookRetry
	nextID  uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[uint]*models.WebhookRetry)}
}

func (f *fakeStore) Create(entry *models.WebhookRetry) error {
	f.nextID++
	entry.ID = f.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.UpdatedAt = time.Now()
	stored := *entry
	f.entries[entry.ID] = &stored
	return nil
}

func (f *fakeStore) SelectDue(now time.Time, limit int) ([]models.WebhookRetry, error) {
	var due []models.WebhookRetry
	for id := uint(1); id <= f.nextID && len(due) < limit; id++ {
		entry, ok := f.entries[id]
		if !ok {
			continue
		}
		if entry.Status == models.RetryStatusPending &&
			entry.AttemptCount < entry.MaxAttempts &&
			!entry.NextEligibleAt.After(now) {
			due = append(due, *entry)
		}
	}
	return due, nil
}

func (f *fakeStore) Claim(id uint) (bool, error) {
	entry, ok := f.entries[id]
	if !ok || entry.Status != models.RetryStatusPending {
		return false, nil
	}
	entry.Status = models.RetryStatusProcessing
	entry.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeStore) Update(entry *models.WebhookRetry) error {
	entry.UpdatedAt = time.Now()
	stored := *entry
	f.entries[entry.ID] = &stored
	return nil
}

func (f *fakeStore) RequeueStale(olderThan time.Time) (int64, error) {
	var n int64
	for _, entry := range f.entries {
		if entry.Status == models.RetryStatusProcessing && entry.UpdatedAt.Before(olderThan) {
			entry.Status = models.RetryStatusPending
			entry.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountByStatus(status string) (int64, error) {
	var n int64
	for _, entry := range f.entries {
		if entry.Status == status {
			n++
		}
	}
	return n, nil
}

func seedEntry(t *testing.T, store *fakeStore, retryType string) uint {
	t.Helper()
	entry := &models.WebhookRetry{
		PublicID:       "retry-" + retryType,
		Type:           retryType,
		PayloadJSON:    `{"tenant_id":1,"subdomain":"acme"}`,
		Status:         models.RetryStatusPending,
		MaxAttempts:    models.DefaultMaxRetryAttempts,
		NextEligibleAt: time.Now().Add(-time.Second),
	}
	if err := store.Create(entry); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return entry.ID
}

func TestDrain_SuccessCompletesEntry(t *testing.T) {
	store := newFakeStore()
	id := seedEntry(t, store, TypeDNSProvisioning)

	registry := NewRegistry()
	var calls int
	registry.Register(TypeDNSProvisioning, func(ctx context.Context, payload map[string]interface{}) bool {
		calls++
		if payload["subdomain"] != "acme" {
			t.Fatalf("payload not delivered to handler: %v", payload)
		}
		return true
	})

	d := NewDispatcher(store, registry)
	summary, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Processed != 1 || summary.Successes != 1 || summary.Failures != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}

	entry := store.entries[id]
	if entry.Status != models.RetryStatusCompleted || entry.CompletedAt == nil {
		t.Fatalf("entry not completed: status=%q", entry.Status)
	}
}

func TestDrain_FailureBacksOffThenTerminates(t *testing.T) {
	store := newFakeStore()
	id := seedEntry(t, store, TypeDNSProvisioning)

	registry := NewRegistry()
	var calls int
	registry.Register(TypeDNSProvisioning, func(ctx context.Context, payload map[string]interface{}) bool {
		calls++
		return false
	})

	d := NewDispatcher(store, registry)

	// First attempt: entry goes back to pending, stamped 30s out.
	if _, err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	entry := store.entries[id]
	if entry.Status != models.RetryStatusPending || entry.AttemptCount != 1 {
		t.Fatalf("after first failure: status=%q attempts=%d", entry.Status, entry.AttemptCount)
	}
	assertBackoffStamp(t, entry.NextEligibleAt, 30*time.Second)

	// While backed off the entry is not due.
	summary, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Processed != 0 || calls != 1 {
		t.Fatalf("backed-off entry was dispatched again: summary=%+v calls=%d", summary, calls)
	}

	// Second failure doubles the stamp to 60s.
	store.entries[id].NextEligibleAt = time.Now().Add(-time.Second)
	if _, err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	assertBackoffStamp(t, store.entries[id].NextEligibleAt, 60*time.Second)

	// Third failure exhausts the attempts.
	store.entries[id].NextEligibleAt = time.Now().Add(-time.Second)
	if _, err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	entry = store.entries[id]
	if entry.Status != models.RetryStatusFailed {
		t.Fatalf("exhausted entry status = %q, want failed", entry.Status)
	}
	if calls != models.DefaultMaxRetryAttempts {
		t.Fatalf("handler ran %d times, want exactly %d", calls, models.DefaultMaxRetryAttempts)
	}

	// Terminal entries are never selected again, even with an expired stamp.
	store.entries[id].NextEligibleAt = time.Now().Add(-time.Second)
	summary, err = d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Processed != 0 || calls != models.DefaultMaxRetryAttempts {
		t.Fatalf("terminally failed entry was dispatched: summary=%+v calls=%d", summary, calls)
	}
}

func TestDrain_UnknownTypeIsAbandoned(t *testing.T) {
	store := newFakeStore()
	id := seedEntry(t, store, "no_such_type")

	d := NewDispatcher(store, NewRegistry())
	summary, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Processed != 1 || summary.Failures != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if store.entries[id].Status != models.RetryStatusFailed {
		t.Fatalf("unregistered type must be terminal, got %q", store.entries[id].Status)
	}
}

func TestDrain_UnreadablePayloadIsAbandoned(t *testing.T) {
	store := newFakeStore()
	entry := &models.WebhookRetry{
		PublicID:       "retry-bad-payload",
		Type:           TypeUserLookup,
		PayloadJSON:    `{not json`,
		Status:         models.RetryStatusPending,
		MaxAttempts:    models.DefaultMaxRetryAttempts,
		NextEligibleAt: time.Now().Add(-time.Second),
	}
	if err := store.Create(entry); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	registry := NewRegistry()
	registry.Register(TypeUserLookup, func(ctx context.Context, payload map[string]interface{}) bool {
		t.Fatalf("handler must not run for an unreadable payload")
		return false
	})

	d := NewDispatcher(store, registry)
	if _, err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if store.entries[entry.ID].Status != models.RetryStatusFailed {
		t.Fatalf("unreadable payload must be terminal, got %q", store.entries[entry.ID].Status)
	}
}

func TestDrain_PanickingHandlerCountsAsFailure(t *testing.T) {
	store := newFakeStore()
	id := seedEntry(t, store, TypeSubdomainProvisioning)

	registry := NewRegistry()
	registry.Register(TypeSubdomainProvisioning, func(ctx context.Context, payload map[string]interface{}) bool {
		panic("boom")
	})

	d := NewDispatcher(store, registry)
	summary, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("a panicking handler must not abort the batch: %v", err)
	}
	if summary.Failures != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	entry := store.entries[id]
	if entry.Status != models.RetryStatusPending || entry.AttemptCount != 1 {
		t.Fatalf("panic must count as one failed attempt: status=%q attempts=%d", entry.Status, entry.AttemptCount)
	}
}

func TestDrain_AlreadyClaimedEntryIsSkipped(t *testing.T) {
	store := newFakeStore()
	id := seedEntry(t, store, TypeDNSProvisioning)
	// Another dispatcher claimed it between select and claim.
	store.entries[id].Status = models.RetryStatusProcessing

	registry := NewRegistry()
	registry.Register(TypeDNSProvisioning, func(ctx context.Context, payload map[string]interface{}) bool {
		t.Fatalf("handler must not run for an entry claimed elsewhere")
		return false
	})

	d := NewDispatcher(store, registry)
	summary, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("claimed entry was processed: %+v", summary)
	}
}

func TestDrain_LockedOutInstanceSkipsCycle(t *testing.T) {
	store := newFakeStore()
	seedEntry(t, store, TypeDNSProvisioning)

	registry := NewRegistry()
	registry.Register(TypeDNSProvisioning, func(ctx context.Context, payload map[string]interface{}) bool {
		t.Fatalf("instance without the drain lock must not dispatch")
		return false
	})

	d := NewDispatcher(store, registry)
	d.acquire = func() bool { return false }
	d.release = func() {}

	summary, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("locked-out instance processed entries: %+v", summary)
	}
}

func assertBackoffStamp(t *testing.T, stamp time.Time, want time.Duration) {
	t.Helper()
	delta := time.Until(stamp)
	if delta < want-5*time.Second || delta > want+5*time.Second {
		t.Fatalf("backoff stamp %s out from now, want ~%s", delta, want)
	}
}

func TestDrain_StaleProcessingEntryIsRequeued(t *testing.T) {
	store := newFakeStore()
	id := seedEntry(t, store, TypeDNSProvisioning)
	// A dispatcher claimed it and crashed mid-batch long ago.
	store.entries[id].Status = models.RetryStatusProcessing
	store.entries[id].UpdatedAt = time.Now().Add(-10 * time.Minute)

	registry := NewRegistry()
	var calls int
	registry.Register(TypeDNSProvisioning, func(ctx context.Context, payload map[string]interface{}) bool {
		calls++
		return true
	})

	summary, err := NewDispatcher(store, registry).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Successes != 1 || calls != 1 {
		t.Fatalf("abandoned entry was not recovered: summary=%+v calls=%d", summary, calls)
	}
	if store.entries[id].Status != models.RetryStatusCompleted {
		t.Fatalf("recovered entry status = %q, want completed", store.entries[id].Status)
	}
}

func TestDrain_FreshProcessingEntryIsNotRequeued(t *testing.T) {
	store := newFakeStore()
	id := seedEntry(t, store, TypeDNSProvisioning)
	// Claimed moments ago by a live dispatcher.
	store.entries[id].Status = models.RetryStatusProcessing
	store.entries[id].UpdatedAt = time.Now()

	registry := NewRegistry()
	registry.Register(TypeDNSProvisioning, func(ctx context.Context, payload map[string]interface{}) bool {
		t.Fatalf("entry held by a live dispatcher must not be re-dispatched")
		return false
	})

	summary, err := NewDispatcher(store, registry).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("fresh processing entry was processed: %+v", summary)
	}
}

func TestBackoffDelay_Doubles(t *testing.T) {
	tests := []struct {
		failedAttempts int
		want           time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
	}
	for _, tc := range tests {
		if got := backoffDelay(tc.failedAttempts); got != tc.want {
			t.Errorf("backoffDelay(%d) = %s, want %s", tc.failedAttempts, got, tc.want)
		}
	}
}
