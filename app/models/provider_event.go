package models

import "time"

// Provider names stored on ProviderEvent rows.
const (
	ProviderStripe = "stripe"
)

// ProviderEvent stores every inbound payment provider event with the
// bookkeeping needed for idempotent, at-least-once handling. Rows are never
// deleted.
type ProviderEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_provider_events_provider_event,unique,priority:1" json:"provider"`
	EventID         string     `gorm:"type:varchar(191);not null;index:ux_provider_events_provider_event,unique,priority:2" json:"event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false" json:"signature_valid"`
	Processed       bool       `gorm:"default:false;index:idx_provider_events_pending,priority:1" json:"processed"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ClaimedAt       *time.Time `gorm:"type:timestamp;default:null" json:"claimed_at,omitempty"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index:idx_provider_events_pending,priority:2" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsClaimed reports whether a handler holds a lease on the event that is
// newer than staleBefore.
func (e *ProviderEvent) IsClaimed(staleBefore time.Time) bool {
	return e.ClaimedAt != nil && !e.ClaimedAt.Before(staleBefore)
}
