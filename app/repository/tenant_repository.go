package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/launchdeck/launchdeck/app/models"
)

// tenantRepository implements the TenantRepository interface
type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository instance
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

// Create creates a new tenant in the database
func (r *tenantRepository) Create(tenant *models.Tenant) error {
	return r.db.Create(tenant).Error
}

// GetByID retrieves a tenant by its ID
func (r *tenantRepository) GetByID(id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.First(&tenant, id).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetBySubdomain retrieves a tenant by its subdomain
func (r *tenantRepository) GetBySubdomain(subdomain string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.Where("subdomain = ?", strings.ToLower(strings.TrimSpace(subdomain))).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Update persists changes to an existing tenant
func (r *tenantRepository) Update(tenant *models.Tenant) error {
	return r.db.Save(tenant).Error
}

// Activate flips a tenant to active and stamps the activation time.
func (r *tenantRepository) Activate(id uint, plan string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.TenantStatusActive,
		"activated_at": &now,
	}
	if strings.TrimSpace(plan) != "" {
		updates["plan"] = plan
	}
	return r.db.Model(&models.Tenant{}).Where("id = ?", id).Updates(updates).Error
}
