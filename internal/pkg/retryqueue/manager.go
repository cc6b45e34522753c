package retryqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/launchdeck/launchdeck/app/models"
	"github.com/launchdeck/launchdeck/app/repository"
	"github.com/launchdeck/launchdeck/internal/pkg/database"
	"github.com/launchdeck/launchdeck/internal/pkg/dns"
	"github.com/launchdeck/launchdeck/internal/pkg/env"
)

const defaultDrainIntervalMinutes = 2

// Manager owns the scheduled drain loop around the dispatcher.
type Manager struct {
	queue      *Queue
	store      Store
	dispatcher *Dispatcher

	drainTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global retry queue manager (singleton).
func GetManager() *Manager {
	managerOnce.Do(func() {
		db := database.GetDB()
		store := NewStore(db)
		queue := NewQueue(store)
		registry := DefaultRegistry(repository.GetGlobalRepositories(), dns.NewClientFromEnv(), queue)

		globalManager = &Manager{
			queue:      queue,
			store:      store,
			dispatcher: NewDispatcher(store, registry).WithDistributedLock(drainLockKey, drainLockTTL),
			stopCh:     make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed enqueue handle.
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the scheduled drain loop.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true

	interval := defaultDrainIntervalMinutes
	if raw := env.GetEnv("RETRY_DRAIN_INTERVAL_MINUTES", ""); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			interval = v
		}
	}

	m.drainTicker = time.NewTicker(time.Duration(interval) * time.Minute)
	m.wg.Add(1)
	go m.drainWorker()

	log.Infof("[RetryQueue Manager] Started (drain interval: %d minutes)", interval)
}

// Stop stops the drain loop and waits for an in-flight cycle to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[RetryQueue Manager] Stopping...")

	if m.drainTicker != nil {
		m.drainTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	log.Info("[RetryQueue Manager] Stopped")
}

// IsRunning returns whether the manager is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// DrainOnce runs a single drain cycle outside the schedule (on-demand
// endpoint, tests, operator tooling).
func (m *Manager) DrainOnce(ctx context.Context) (Summary, error) {
	return m.dispatcher.Drain(ctx)
}

// Stats returns the queue depth per status.
func (m *Manager) Stats() (map[string]int64, error) {
	stats := make(map[string]int64, 4)
	for _, status := range []string{
		models.RetryStatusPending,
		models.RetryStatusProcessing,
		models.RetryStatusCompleted,
		models.RetryStatusFailed,
	} {
		count, err := m.store.CountByStatus(status)
		if err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, nil
}

func (m *Manager) drainWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[RetryQueue Manager] Drain worker stopping")
			return
		case <-m.drainTicker.C:
			if _, err := m.dispatcher.Drain(context.Background()); err != nil {
				log.Errorf("[RetryQueue Manager] Drain cycle failed: %v", err)
			}
		}
	}
}
