package models

import "time"

// Product is a locally curated catalog row tracked against the external
// billing provider. Catalog edits signal the sync coalescer; the full
// reconciliation pass walks every tracked product.
type Product struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"type:varchar(150);not null" json:"name"`
	PriceCents         int64     `gorm:"not null;default:0" json:"price_cents"`
	Currency           string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	IsActive           bool      `gorm:"default:true;index" json:"is_active"`
	ExternalProductRef string    `gorm:"type:varchar(191);index" json:"external_product_ref"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
