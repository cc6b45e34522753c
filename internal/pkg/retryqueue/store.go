package retryqueue

import (
	"time"

	"gorm.io/gorm"

	"github.com/launchdeck/launchdeck/app/models"
)

// Store provides DB operations for the webhook_retries table. Entries are
// created by whichever primary-path operation discovers a side effect it
// cannot complete synchronously, and mutated only by the dispatcher.
type Store interface {
	Create(entry *models.WebhookRetry) error
	SelectDue(now time.Time, limit int) ([]models.WebhookRetry, error)
	Claim(id uint) (bool, error)
	Update(entry *models.WebhookRetry) error
	RequeueStale(olderThan time.Time) (int64, error)
	CountByStatus(status string) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a retry store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(entry *models.WebhookRetry) error {
	return s.db.Create(entry).Error
}

// SelectDue returns pending entries that still have attempts left and whose
// backoff window has elapsed, oldest first (FIFO fairness).
func (s *gormStore) SelectDue(now time.Time, limit int) ([]models.WebhookRetry, error) {
	var entries []models.WebhookRetry
	err := s.db.
		Where("status = ? AND attempt_count < max_attempts AND next_eligible_at <= ?", models.RetryStatusPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Claim atomically moves a pending entry to processing. It returns false
// when another dispatcher got there first, which makes concurrent drains
// (manual endpoint racing the ticker) safe.
func (s *gormStore) Claim(id uint) (bool, error) {
	tx := s.db.Model(&models.WebhookRetry{}).
		Where("id = ? AND status = ?", id, models.RetryStatusPending).
		Update("status", models.RetryStatusProcessing)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *gormStore) Update(entry *models.WebhookRetry) error {
	return s.db.Save(entry).Error
}

// RequeueStale flips processing entries that have not been touched since
// olderThan back to pending. A dispatcher that crashes mid-batch leaves its
// claimed entries in processing forever; without this sweep they would never
// be selected again.
func (s *gormStore) RequeueStale(olderThan time.Time) (int64, error) {
	tx := s.db.Model(&models.WebhookRetry{}).
		Where("status = ? AND updated_at < ?", models.RetryStatusProcessing, olderThan).
		Update("status", models.RetryStatusPending)
	return tx.RowsAffected, tx.Error
}

func (s *gormStore) CountByStatus(status string) (int64, error) {
	var count int64
	err := s.db.Model(&models.WebhookRetry{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
