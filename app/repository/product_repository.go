package repository

import (
	"gorm.io/gorm"

	"github.com/launchdeck/launchdeck/app/models"
	"github.com/launchdeck/launchdeck/internal/pkg/billing"
)

// productRepository implements the ProductRepository interface
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository instance
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// GetByID retrieves a product by its ID
func (r *productRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	err := r.db.First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListActive returns all products tracked against the billing provider
func (r *productRepository) ListActive() ([]models.Product, error) {
	var products []models.Product
	err := r.db.Where("is_active = ?", true).Order("id ASC").Find(&products).Error
	return products, err
}

// Save persists a catalog row and signals the sync coalescer: a catalog
// edit means local and provider state may have drifted.
func (r *productRepository) Save(product *models.Product) error {
	if err := r.db.Save(product).Error; err != nil {
		return err
	}
	billing.GetCoalescer().Signal()
	return nil
}
