package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PawDesk/app/models"
	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

// customerRepository only ever returns live rows; gorm filters soft deleted
// customers automatically.
type customerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) billing.CustomerStore {
	return &customerRepository{db: db}
}

func (r *customerRepository) GetByTenant(ctx context.Context, tenantID uint) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("id DESC").First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *customerRepository) GetByID(ctx context.Context, id uint) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *customerRepository) GetByUpstreamID(ctx context.Context, upstreamCustomerID string) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.WithContext(ctx).Where("upstream_customer_id = ?", upstreamCustomerID).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *customerRepository) Create(ctx context.Context, c *models.Customer) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *customerRepository) SoftDelete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Customer{}, id).Error
}
