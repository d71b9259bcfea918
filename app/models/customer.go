package models

import (
	"time"

	"gorm.io/gorm"
)

// Customer maps a tenant to its customer record at the payment provider.
// Stale mappings are soft deleted, so at most one live row exists per tenant.
type Customer struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	TenantID           uint           `gorm:"not null;index" json:"tenant_id"`
	UpstreamCustomerID *string        `gorm:"type:varchar(191);uniqueIndex:ux_customers_upstream" json:"upstream_customer_id,omitempty"`
	Email              string         `gorm:"type:varchar(200);default:''" json:"email"`
	Name               string         `gorm:"type:varchar(200);default:''" json:"name"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// UpstreamID returns the provider customer id or "" when unset.
func (c *Customer) UpstreamID() string {
	if c.UpstreamCustomerID == nil {
		return ""
	}
	return *c.UpstreamCustomerID
}
