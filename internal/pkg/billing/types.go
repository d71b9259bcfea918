package billing

import (
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/PawDesk/app/models"
)

// SubscriptionSnapshot is the provider-agnostic view of an upstream
// subscription. It is authoritative over the local mirror.
type SubscriptionSnapshot struct {
	UpstreamSubscriptionID string
	UpstreamCustomerID     string
	TenantID               uint
	Status                 string
	PlanID                 string
	Amount                 int64
	Currency               string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	Metadata               map[string]string
	UpstreamUpdatedAt      *time.Time
}

// State converts the snapshot into the persisted mirror fields.
func (s SubscriptionSnapshot) State() models.SubscriptionState {
	return models.SubscriptionState{
		Status:            strings.ToLower(strings.TrimSpace(s.Status)),
		PlanID:            s.PlanID,
		Amount:            s.Amount,
		Currency:          strings.ToLower(s.Currency),
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
}

// CustomerRef identifies a resolved customer both locally and upstream.
type CustomerRef struct {
	ID                 uint
	TenantID           uint
	UpstreamCustomerID string
	Email              string
	Name               string
	Recreated          bool
}

func customerRefFrom(c *models.Customer, recreated bool) CustomerRef {
	return CustomerRef{
		ID:                 c.ID,
		TenantID:           c.TenantID,
		UpstreamCustomerID: c.UpstreamID(),
		Email:              c.Email,
		Name:               c.Name,
		Recreated:          recreated,
	}
}

// UpstreamCustomer is the provider's view of a customer.
type UpstreamCustomer struct {
	ID                       string
	Email                    string
	Name                     string
	Country                  string
	DefaultPaymentMethodType string
	Deleted                  bool
}

// CreateCustomerParams carries the fields sent when creating a provider customer.
type CreateCustomerParams struct {
	TenantID uint
	Email    string
	Name     string
}

// ChargeRequest is a single payment attempt restricted to one method type.
type ChargeRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	MethodType     string
	InvoiceID      string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// Charge is the provider's record of a successful payment attempt.
type Charge struct {
	ID         string
	Status     string
	MethodType string
}

// PaymentMethod is a saved payment instrument of a customer.
type PaymentMethod struct {
	ID   string
	Type string
}

// Invoice is the subset of a provider invoice needed for retries.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	AmountDue      int64
	Currency       string
	Status         string
	Paid           bool
}

// IsSettled reports whether the invoice no longer needs a payment.
func (i *Invoice) IsSettled() bool {
	if i.Paid || i.AmountDue <= 0 {
		return true
	}
	switch i.Status {
	case "paid", "void", "uncollectible":
		return true
	default:
		return false
	}
}

// CancellationNotice is handed to the EmailNotifier when a subscription is canceled.
type CancellationNotice struct {
	TenantID               uint
	Email                  string
	Name                   string
	UpstreamSubscriptionID string
	PlanID                 string
	CurrentPeriodEnd       *time.Time
}

// Metadata keys understood on provider objects.
const (
	MetadataTenantID       = "tenant_id"
	MetadataRotationOrigin = "pawdesk_rotation"
	MetadataInvoiceID      = "invoice_id"
)

// TenantIDFromMetadata parses the tenant id stored on provider objects.
func TenantIDFromMetadata(md map[string]string) uint {
	return parseTenantID(md[MetadataTenantID])
}

func parseTenantID(raw string) uint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
