package repository

import (
	"gorm.io/gorm"

	"github.com/launchdeck/launchdeck/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
}

// TenantRepository defines the interface for tenant-related database operations
type TenantRepository interface {
	Create(tenant *models.Tenant) error
	GetByID(id uint) (*models.Tenant, error)
	GetBySubdomain(subdomain string) (*models.Tenant, error)
	Update(tenant *models.Tenant) error
	Activate(id uint, plan string) error
}

// ProductRepository defines the interface for product catalog operations
type ProductRepository interface {
	GetByID(id uint) (*models.Product, error)
	ListActive() ([]models.Product, error)
	Save(product *models.Product) error
}

// Repositories bundles all repository instances
type Repositories struct {
	User    UserRepository
	Tenant  TenantRepository
	Product ProductRepository
}

// NewRepositories creates all repositories from a single DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Tenant:  NewTenantRepository(db),
		Product: NewProductRepository(db),
	}
}
