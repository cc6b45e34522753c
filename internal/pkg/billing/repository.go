package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/launchdeck/launchdeck/app/models"
)

// Repository provides DB operations used by the reconciliation service.
type Repository interface {
	FindPromoByCode(code string) (*models.PromoCode, error)
	UpsertPromoFromSync(promo *models.PromoCode) error
	ListPromosBySyncStatus(status string) ([]models.PromoCode, error)
	SavePromo(promo *models.PromoCode) error
	DeactivatePromosByCouponRef(couponRef string) (int64, error)
	ListActiveProducts() ([]models.Product, error)
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindPromoByCode(code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.db.Where("code = ?", models.NormalizeCode(code)).First(&promo).Error
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// UpsertPromoFromSync inserts a translated candidate or, when a row with the
// same code already exists, refreshes only the sync-relevant columns.
// Locally curated fields (description, used_count) are never clobbered, and
// the conflict clause makes concurrent deliveries race-safe.
func (r *gormRepository) UpsertPromoFromSync(promo *models.PromoCode) error {
	now := time.Now()
	promo.Code = models.NormalizeCode(promo.Code)
	promo.SyncStatus = models.SyncStatusSynced
	promo.SyncedAt = &now

	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "code"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_coupon_ref",
			"external_promotion_ref",
			"is_active",
			"max_uses",
			"expires_at",
			"sync_status",
			"synced_at",
			"sync_error",
			"updated_at",
		}),
	}).Create(promo).Error; err != nil {
		return err
	}

	// Ensure ID and merged fields are populated after upsert.
	return r.db.Where("code = ?", promo.Code).First(promo).Error
}

func (r *gormRepository) ListPromosBySyncStatus(status string) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	err := r.db.Where("sync_status = ?", status).Order("id ASC").Find(&promos).Error
	return promos, err
}

func (r *gormRepository) SavePromo(promo *models.PromoCode) error {
	return r.db.Save(promo).Error
}

func (r *gormRepository) DeactivatePromosByCouponRef(couponRef string) (int64, error) {
	tx := r.db.Model(&models.PromoCode{}).
		Where("external_coupon_ref = ? AND is_active = ?", couponRef, true).
		Updates(map[string]interface{}{"is_active": false, "synced_at": time.Now()})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) ListActiveProducts() ([]models.Product, error) {
	var products []models.Product
	err := r.db.Where("is_active = ?", true).Order("id ASC").Find(&products).Error
	return products, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
