package billing

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/launchdeck/launchdeck/internal/pkg/cache"
	"github.com/launchdeck/launchdeck/internal/pkg/database"
	"github.com/launchdeck/launchdeck/internal/pkg/env"
)

const (
	defaultQuietWindow = 5 * time.Second
	syncLockKey        = "billing:sync:lock"
	syncLockTTL        = 2 * time.Minute
	syncPassTimeout    = 90 * time.Second
)

// Coalescer collapses bursts of "catalog changed" signals into a single
// full reconciliation pass per quiet period (trailing-edge debounce). A
// signal arriving while a pass is executing schedules a subsequent pass
// instead of being dropped, since it may describe a change the in-flight
// pass has not seen.
type Coalescer struct {
	mu      sync.Mutex
	timer   *time.Timer
	quiet   time.Duration
	running bool
	rerun   bool

	pass    func(ctx context.Context) error
	acquire func() bool
	release func()
}

// NewCoalescer creates a coalescer around the given pass function. No
// distributed lock is attached; multi-replica deployments should use
// WithDistributedLock.
func NewCoalescer(quiet time.Duration, pass func(ctx context.Context) error) *Coalescer {
	if quiet <= 0 {
		quiet = defaultQuietWindow
	}
	return &Coalescer{
		quiet: quiet,
		pass:  pass,
	}
}

// WithDistributedLock guards the pass with a Redis lock so that only one
// replica runs a reconciliation pass at a time.
func (c *Coalescer) WithDistributedLock(key string, ttl time.Duration) *Coalescer {
	c.acquire = func() bool {
		ok, err := cache.AcquireLock(key, ttl)
		if err != nil {
			log.Errorf("[SyncCoalescer] Lock acquire failed: %v", err)
			return false
		}
		return ok
	}
	c.release = func() {
		cache.ReleaseLock(key)
	}
	return c
}

// Signal records that something changed. The pass runs once the quiet
// window elapses without further signals.
func (c *Coalescer) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.rerun = true
		return
	}
	if c.timer != nil {
		// Trailing-edge debounce: a new signal resets the window.
		c.timer.Reset(c.quiet)
		return
	}
	c.timer = time.AfterFunc(c.quiet, c.fire)
}

func (c *Coalescer) fire() {
	c.mu.Lock()
	if c.running {
		// A pass started between the timer firing and this callback
		// acquiring the lock; make sure another one follows.
		c.rerun = true
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.running = true
	c.mu.Unlock()

	c.runPass()

	c.mu.Lock()
	c.running = false
	rerun := c.rerun
	c.rerun = false
	c.mu.Unlock()

	if rerun {
		c.Signal()
	}
}

func (c *Coalescer) runPass() {
	if c.acquire != nil {
		if !c.acquire() {
			log.Infof("[SyncCoalescer] Another replica holds the sync lock; skipping pass")
			return
		}
		defer c.release()
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncPassTimeout)
	defer cancel()

	// A failed pass is logged, not retried: the next signal (or the
	// scheduled validation pass) triggers a fresh attempt.
	if err := c.pass(ctx); err != nil {
		log.Errorf("[SyncCoalescer] Reconciliation pass failed: %v", err)
	}
}

var (
	globalCoalescer *Coalescer
	coalescerOnce   sync.Once
)

// GetCoalescer returns the global sync coalescer, built lazily from the
// environment and the shared DB handle.
func GetCoalescer() *Coalescer {
	coalescerOnce.Do(func() {
		quiet := defaultQuietWindow
		if raw := env.GetEnv("BILLING_SYNC_DEBOUNCE_SECONDS", ""); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				quiet = time.Duration(secs) * time.Second
			}
		}

		globalCoalescer = NewCoalescer(quiet, func(ctx context.Context) error {
			svc := NewServiceFromDB(database.GetDB()).WithProvider(NewProviderClientFromEnv())
			return svc.SyncAll(ctx)
		}).WithDistributedLock(syncLockKey, syncLockTTL)
	})
	return globalCoalescer
}
