package models

import "time"

const (
	RetryStatusPending    = "pending"
	RetryStatusProcessing = "processing"
	RetryStatusCompleted  = "completed"
	RetryStatusFailed     = "failed"
)

// DefaultMaxRetryAttempts bounds how often a retry entry is dispatched
// before it is moved to the terminal failed status.
const DefaultMaxRetryAttempts = 3

// WebhookRetry is a durable record of a side-effect operation that could not
// complete inline (DNS provisioning, user lookup after replication lag) and
// is drained later by the retry dispatcher. The payload must be sufficient
// to retry the operation from scratch.
type WebhookRetry struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PublicID       string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"public_id"`
	Type           string     `gorm:"type:varchar(64);not null;index" json:"type"`
	PayloadJSON    string     `gorm:"type:longtext;not null" json:"payload_json"`
	Status         string     `gorm:"type:varchar(16);not null;default:'pending';index:idx_webhook_retries_status_eligible,priority:1" json:"status"`
	AttemptCount   int        `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts    int        `gorm:"not null;default:3" json:"max_attempts"`
	NextEligibleAt time.Time  `gorm:"type:timestamp;not null;index:idx_webhook_retries_status_eligible,priority:2" json:"next_eligible_at"`
	LastAttemptAt  *time.Time `gorm:"type:timestamp;default:null" json:"last_attempt_at,omitempty"`
	LastError      string     `gorm:"type:text" json:"last_error"`
	CompletedAt    *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExhausted reports whether the entry has used up all dispatch attempts.
func (r *WebhookRetry) IsExhausted() bool {
	return r.AttemptCount >= r.MaxAttempts
}

// MarkAttemptFailed records a failed dispatch attempt. The entry stays
// pending with a backoff stamp until attempts are exhausted, at which point
// it transitions to the terminal failed status.
func (r *WebhookRetry) MarkAttemptFailed(errMsg string, nextEligibleAt time.Time) {
	now := time.Now()
	r.AttemptCount++
	r.LastAttemptAt = &now
	r.LastError = errMsg
	if r.IsExhausted() {
		r.Status = RetryStatusFailed
	} else {
		r.Status = RetryStatusPending
		r.NextEligibleAt = nextEligibleAt
	}
}

// MarkCompleted records a successful dispatch attempt.
func (r *WebhookRetry) MarkCompleted() {
	now := time.Now()
	r.AttemptCount++
	r.LastAttemptAt = &now
	r.CompletedAt = &now
	r.LastError = ""
	r.Status = RetryStatusCompleted
}
