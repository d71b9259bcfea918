package models

import (
	"strings"
	"time"
)

const (
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusPaused            = "paused"
)

// Subscription mirrors the upstream provider's subscription. The provider is
// authoritative: every reconciliation overwrites the mirrored fields.
type Subscription struct {
	ID                     uint              `gorm:"primaryKey" json:"id"`
	TenantID               uint              `gorm:"not null;index" json:"tenant_id"`
	CustomerID             uint              `gorm:"not null;default:0;index" json:"customer_id"`
	UpstreamSubscriptionID string            `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_upstream" json:"upstream_subscription_id"`
	Status                 string            `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	PlanID                 string            `gorm:"type:varchar(191);not null;default:''" json:"plan_id"`
	Amount                 int64             `gorm:"not null;default:0" json:"amount"`
	Currency               string            `gorm:"type:varchar(3);not null;default:''" json:"currency"`
	CurrentPeriodEnd       *time.Time        `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool              `gorm:"default:false" json:"cancel_at_period_end"`
	Metadata               map[string]string `gorm:"type:text;serializer:json" json:"metadata,omitempty"`
	UpstreamUpdatedAt      *time.Time        `gorm:"type:timestamp;default:null" json:"upstream_updated_at,omitempty"`
	CreatedAt              time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// SubscriptionState is the set of mirrored fields captured in history
// snapshots.
type SubscriptionState struct {
	Status            string            `json:"status"`
	PlanID            string            `json:"plan_id"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	CurrentPeriodEnd  *time.Time        `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// State returns a copy of the mirrored fields.
func (s *Subscription) State() SubscriptionState {
	st := SubscriptionState{
		Status:            s.Status,
		PlanID:            s.PlanID,
		Amount:            s.Amount,
		Currency:          s.Currency,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.CurrentPeriodEnd != nil {
		t := *s.CurrentPeriodEnd
		st.CurrentPeriodEnd = &t
	}
	if len(s.Metadata) > 0 {
		st.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			st.Metadata[k] = v
		}
	}
	return st
}

// ApplyState overwrites every mirrored field with st.
func (s *Subscription) ApplyState(st SubscriptionState) {
	s.Status = strings.ToLower(strings.TrimSpace(st.Status))
	s.PlanID = st.PlanID
	s.Amount = st.Amount
	s.Currency = strings.ToLower(st.Currency)
	s.CurrentPeriodEnd = st.CurrentPeriodEnd
	s.CancelAtPeriodEnd = st.CancelAtPeriodEnd
	s.Metadata = st.Metadata
}

// IsEntitling reports whether the status still grants access to paid features.
func (s *Subscription) IsEntitling() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}
