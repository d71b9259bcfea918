package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/PawDesk/app/models"
)

// EventStore persists provider events for idempotent handling.
type EventStore interface {
	ExistsAndProcessed(ctx context.Context, eventID string) (bool, error)
	// InsertIfAbsent stores the event unless a row with the same event id
	// exists. It reports whether this call created the row.
	InsertIfAbsent(ctx context.Context, event *models.ProviderEvent) (bool, error)
	// Claim takes the in-flight lease on an unprocessed event. It fails when
	// another handler holds a lease newer than staleBefore.
	Claim(ctx context.Context, eventID string, now, staleBefore time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
	Release(ctx context.Context, eventID string, processingErr error) error
	Get(ctx context.Context, eventID string) (*models.ProviderEvent, error)
	ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]models.ProviderEvent, error)
}

// SubscriptionStore persists the local subscription mirror.
type SubscriptionStore interface {
	GetByUpstreamID(ctx context.Context, upstreamSubscriptionID string) (*models.Subscription, error)
	Save(ctx context.Context, sub *models.Subscription) error
}

// HistoryStore appends subscription audit rows.
type HistoryStore interface {
	Append(ctx context.Context, entry *models.SubscriptionHistory) error
	ListBySubscription(ctx context.Context, subscriptionID uint) ([]models.SubscriptionHistory, error)
}

// CustomerStore persists tenant to provider customer mappings.
type CustomerStore interface {
	GetByTenant(ctx context.Context, tenantID uint) (*models.Customer, error)
	GetByID(ctx context.Context, id uint) (*models.Customer, error)
	GetByUpstreamID(ctx context.Context, upstreamCustomerID string) (*models.Customer, error)
	Create(ctx context.Context, c *models.Customer) error
	SoftDelete(ctx context.Context, id uint) error
}

// PaymentProviderClient is the outbound port to the payment provider.
// Implementations return *ProviderError for classified failures.
type PaymentProviderClient interface {
	GetCustomer(ctx context.Context, upstreamCustomerID string) (*UpstreamCustomer, error)
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*UpstreamCustomer, error)
	GetSubscription(ctx context.Context, upstreamSubscriptionID string) (*SubscriptionSnapshot, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	ListPaymentMethods(ctx context.Context, upstreamCustomerID string) ([]PaymentMethod, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, upstreamCustomerID string) error
}

// EmailNotifier delivers customer notifications.
type EmailNotifier interface {
	SendCancellationNotice(ctx context.Context, notice CancellationNotice) error
}

// InvoiceRetryScheduler queues an asynchronous rotation retry for an invoice.
// It reports false when a retry for the invoice is already pending.
type InvoiceRetryScheduler interface {
	ScheduleInvoiceRetry(ctx context.Context, invoiceID, reason string) (bool, error)
}

// PayloadArchiver keeps a copy of raw event payloads outside the database.
type PayloadArchiver interface {
	ArchivePayload(ctx context.Context, eventID, eventType string, payload []byte) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
