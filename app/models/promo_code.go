package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DiscountTypePercentage  = "percentage"
	DiscountTypeFixed       = "fixed"
	DiscountTypeCustomPrice = "custom_price"
)

const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

// PromoCode is the local, reconciled view of a promotion code living in the
// external billing provider. Codes are stored uppercased; the external refs
// are the reconciliation join keys. Rows are never hard-deleted by the
// reconciler.
type PromoCode struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	Code                 string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code" validate:"required,min=1,max=64"`
	Description          string     `gorm:"type:varchar(255)" json:"description" validate:"max=255"`
	DiscountType         string     `gorm:"type:varchar(20);not null;default:'percentage'" json:"discount_type" validate:"oneof=percentage fixed custom_price"`
	DiscountValue        *float64   `gorm:"type:decimal(10,2)" json:"discount_value,omitempty"`
	MaxUses              *int       `json:"max_uses,omitempty"`
	UsedCount            int        `gorm:"not null;default:0" json:"used_count"`
	ExpiresAt            *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	IsActive             bool       `gorm:"default:true;index" json:"is_active"`
	ExternalCouponRef    string     `gorm:"type:varchar(191);index" json:"external_coupon_ref"`
	ExternalPromotionRef *string    `gorm:"type:varchar(191);index" json:"external_promotion_ref,omitempty"`
	SyncStatus           string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"sync_status" validate:"oneof=pending synced error"`
	SyncedAt             *time.Time `gorm:"type:timestamp;default:null" json:"synced_at,omitempty"`
	SyncError            string     `gorm:"type:text" json:"sync_error"`
	ReviewNote           string     `gorm:"type:varchar(255)" json:"review_note"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeCode returns the canonical stored form of a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks field constraints before persisting.
func (p *PromoCode) Validate() error {
	v := validator.New()
	return v.Struct(p)
}

// HasConsistentDiscount reports whether the discount type and value fields
// agree: custom_price carries no value, the other types require one.
func (p *PromoCode) HasConsistentDiscount() bool {
	if p.DiscountType == DiscountTypeCustomPrice {
		return p.DiscountValue == nil
	}
	return p.DiscountValue != nil
}
