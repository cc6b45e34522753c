package retryqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/launchdeck/launchdeck/app/models"
	"github.com/launchdeck/launchdeck/internal/pkg/cache"
)

const (
	// DefaultBatchSize bounds how many due entries one drain cycle handles.
	DefaultBatchSize = 10

	// DefaultHandlerTimeout bounds a single handler invocation. A timeout
	// counts as a failed attempt.
	DefaultHandlerTimeout = 30 * time.Second

	backoffBase = 30 * time.Second

	drainLockKey = "retryqueue:drain:lock"
	drainLockTTL = 2 * time.Minute

	// staleClaimAge is how long an entry may sit in processing before it is
	// treated as abandoned by a crashed dispatcher and requeued. Longer than
	// the drain lock TTL, so a live holder cannot be raced.
	staleClaimAge = 2 * drainLockTTL
)

// Summary reports the outcome of one drain cycle.
type Summary struct {
	Processed int `json:"processed"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Dispatcher drains due retry entries: it claims each entry, invokes the
// registered handler, and records success or a backed-off failure. Once a
// batch starts it runs to completion; there is no mid-batch abort.
type Dispatcher struct {
	store          Store
	registry       *Registry
	batchSize      int
	handlerTimeout time.Duration

	acquire func() bool
	release func()
}

// NewDispatcher creates a dispatcher with default batch size and timeout.
func NewDispatcher(store Store, registry *Registry) *Dispatcher {
	return &Dispatcher{
		store:          store,
		registry:       registry,
		batchSize:      DefaultBatchSize,
		handlerTimeout: DefaultHandlerTimeout,
	}
}

// WithDistributedLock guards the drain with a Redis lock so only one
// dispatcher instance works the queue at a time across replicas.
func (d *Dispatcher) WithDistributedLock(key string, ttl time.Duration) *Dispatcher {
	d.acquire = func() bool {
		ok, err := cache.AcquireLock(key, ttl)
		if err != nil {
			log.Errorf("[RetryDispatcher] Lock acquire failed: %v", err)
			return false
		}
		return ok
	}
	d.release = func() {
		cache.ReleaseLock(key)
	}
	return d
}

// Drain processes up to one batch of due entries and returns a summary.
func (d *Dispatcher) Drain(ctx context.Context) (Summary, error) {
	var summary Summary

	if d.acquire != nil {
		if !d.acquire() {
			log.Infof("[RetryDispatcher] Another instance holds the drain lock; skipping cycle")
			return summary, nil
		}
		defer d.release()
	}

	if n, err := d.store.RequeueStale(time.Now().Add(-staleClaimAge)); err != nil {
		log.Errorf("[RetryDispatcher] Stale claim sweep failed: %v", err)
	} else if n > 0 {
		log.Warnf("[RetryDispatcher] Requeued %d entries abandoned in processing", n)
	}

	entries, err := d.store.SelectDue(time.Now(), d.batchSize)
	if err != nil {
		return summary, err
	}

	for i := range entries {
		entry := &entries[i]

		claimed, err := d.store.Claim(entry.ID)
		if err != nil {
			log.Errorf("[RetryDispatcher] Claim of entry %s failed: %v", entry.PublicID, err)
			summary.Failures++
			summary.Processed++
			continue
		}
		if !claimed {
			// Another dispatcher took it between select and claim.
			continue
		}
		entry.Status = models.RetryStatusProcessing

		summary.Processed++
		if d.processEntry(ctx, entry) {
			summary.Successes++
		} else {
			summary.Failures++
		}

		if err := d.store.Update(entry); err != nil {
			log.Errorf("[RetryDispatcher] Failed to persist entry %s: %v", entry.PublicID, err)
		}
	}

	if summary.Processed > 0 {
		log.Infof("[RetryDispatcher] Drain cycle done: processed=%d successes=%d failures=%d",
			summary.Processed, summary.Successes, summary.Failures)
	}
	return summary, nil
}

func (d *Dispatcher) processEntry(ctx context.Context, entry *models.WebhookRetry) bool {
	handler, ok := d.registry.Lookup(entry.Type)
	if !ok {
		log.Warnf("[RetryDispatcher] No handler registered for type %q; abandoning entry %s", entry.Type, entry.PublicID)
		entry.MarkAttemptFailed("no handler registered for type "+entry.Type, time.Now())
		entry.Status = models.RetryStatusFailed
		return false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(entry.PayloadJSON), &payload); err != nil {
		log.Errorf("[RetryDispatcher] Entry %s carries an unreadable payload: %v", entry.PublicID, err)
		entry.MarkAttemptFailed("invalid payload: "+err.Error(), time.Now())
		entry.Status = models.RetryStatusFailed
		return false
	}

	if d.runHandler(ctx, handler, payload) {
		entry.MarkCompleted()
		log.Infof("[RetryDispatcher] Entry %s (Type: %s) completed on attempt %d", entry.PublicID, entry.Type, entry.AttemptCount)
		return true
	}

	entry.MarkAttemptFailed("handler reported failure", time.Now().Add(backoffDelay(entry.AttemptCount+1)))
	if entry.Status == models.RetryStatusFailed {
		// Alerting hook: a terminally failed entry is an operational
		// concern, invisible to end users.
		log.Errorf("[RetryDispatcher] Entry %s (Type: %s) permanently failed after %d attempts", entry.PublicID, entry.Type, entry.AttemptCount)
	} else {
		log.Warnf("[RetryDispatcher] Entry %s (Type: %s) failed attempt %d/%d; next eligible at %s",
			entry.PublicID, entry.Type, entry.AttemptCount, entry.MaxAttempts, entry.NextEligibleAt.Format(time.RFC3339))
	}
	return false
}

// runHandler invokes a handler with a bounded context, converting panics
// into failures so one bad entry cannot abort the batch.
func (d *Dispatcher) runHandler(ctx context.Context, handler HandlerFunc, payload map[string]interface{}) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[RetryDispatcher] Handler panicked: %v", r)
			ok = false
		}
	}()

	handlerCtx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()
	return handler(handlerCtx, payload)
}

// backoffDelay returns the exponential backoff stamped after the given
// failed attempt: 30s after the first, 60s after the second, 120s after the
// third.
func backoffDelay(failedAttempts int) time.Duration {
	if failedAttempts < 1 {
		failedAttempts = 1
	}
	return backoffBase << (failedAttempts - 1)
}
