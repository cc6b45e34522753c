package retryqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/launchdeck/launchdeck/app/models"
)

// Queue appends pending side-effect operations to the durable retry table.
type Queue struct {
	store Store
}

// NewQueue creates a queue around an injected store.
func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// NewQueueFromDB creates a queue backed by GORM.
func NewQueueFromDB(db *gorm.DB) *Queue {
	return NewQueue(NewStore(db))
}

// Enqueue appends a new retry entry. The payload must carry everything the
// handler needs to retry the operation from scratch; no in-memory state.
func (q *Queue) Enqueue(retryType string, payload map[string]interface{}) (*models.WebhookRetry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal retry payload: %w", err)
	}

	entry := &models.WebhookRetry{
		PublicID:       uuid.New().String(),
		Type:           retryType,
		PayloadJSON:    string(payloadJSON),
		Status:         models.RetryStatusPending,
		MaxAttempts:    models.DefaultMaxRetryAttempts,
		NextEligibleAt: time.Now(),
	}
	if err := q.store.Create(entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry: %w", err)
	}

	log.Infof("[RetryQueue] Enqueued entry %s (Type: %s)", entry.PublicID, entry.Type)
	return entry, nil
}
