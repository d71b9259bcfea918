package models

import "time"

const (
	ChangeTypeCreated       = "created"
	ChangeTypeUpdated       = "updated"
	ChangeTypeStatusChanged = "status_changed"
	ChangeTypeCanceled      = "canceled"
)

const (
	ChangedByAPI     = "api"
	ChangedByWebhook = "webhook"
)

// SubscriptionHistory is an append-only audit row written for every
// reconciliation that touches a subscription.
type SubscriptionHistory struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	SubscriptionID uint               `gorm:"not null;index" json:"subscription_id"`
	TenantID       uint               `gorm:"not null;index" json:"tenant_id"`
	ChangeType     string             `gorm:"type:varchar(32);not null" json:"change_type"`
	OldSnapshot    *SubscriptionState `gorm:"type:text;serializer:json" json:"old_snapshot,omitempty"`
	NewSnapshot    *SubscriptionState `gorm:"type:text;serializer:json" json:"new_snapshot"`
	ChangedBy      string             `gorm:"type:varchar(16);not null" json:"changed_by"`
	ActorUserID    *uint              `gorm:"default:null" json:"actor_user_id,omitempty"`
	Description    string             `gorm:"type:varchar(500);default:''" json:"description"`
	EventID        string             `gorm:"type:varchar(191);default:'';index" json:"event_id,omitempty"`
	CreatedAt      time.Time          `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName keeps the singular table name used by the migrations.
func (SubscriptionHistory) TableName() string {
	return "subscription_history"
}
