package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	TenantStatusPending   = "pending"
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// Tenant is a customer workspace reachable under its own subdomain. The
// reconciler only touches subdomain activation state after payment events;
// all other tenant management is owned by the surrounding CRUD application.
type Tenant struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Subdomain   string     `gorm:"type:varchar(63);uniqueIndex;not null" json:"subdomain" validate:"required,min=2,max=63"`
	Status      string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status" validate:"oneof=pending active suspended"`
	Plan        string     `gorm:"type:varchar(50);not null;default:'free'" json:"plan"`
	OwnerEmail  string     `gorm:"type:varchar(200);index" json:"owner_email" validate:"omitempty,email"`
	ActivatedAt *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Validate checks field constraints before persisting.
func (t *Tenant) Validate() error {
	v := validator.New()
	return v.Struct(t)
}
