package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawEvent is an inbound provider event after signature verification.
type RawEvent struct {
	ID             string
	Type           string
	Created        time.Time
	Object         json.RawMessage
	Payload        []byte
	SignatureValid bool
}

type rawEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseRawEvent reads the provider envelope {id, type, created, data.object}.
// Missing id or type is reported as ErrMalformedEvent.
func ParseRawEvent(body []byte) (RawEvent, error) {
	var env rawEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return RawEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	raw := RawEvent{
		ID:      strings.TrimSpace(env.ID),
		Type:    strings.TrimSpace(env.Type),
		Object:  env.Data.Object,
		Payload: body,
	}
	if env.Created > 0 {
		raw.Created = time.Unix(env.Created, 0).UTC()
	}
	if err := raw.validate(); err != nil {
		return RawEvent{}, err
	}
	return raw, nil
}

func (r RawEvent) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}
	return nil
}

// Event is the decoded, typed form of a RawEvent. The concrete type is one of
// SubscriptionEvent, InvoiceEvent, CheckoutEvent, CustomerEvent,
// PaymentFailedEvent or OpaqueEvent.
type Event interface {
	EventType() string
	isEvent()
}

type SubscriptionEvent struct {
	Type     string
	Snapshot SubscriptionSnapshot
}

type InvoiceEvent struct {
	Type           string
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	Status         string
}

type CheckoutEvent struct {
	Type           string
	SessionID      string
	TenantID       uint
	CustomerID     string
	SubscriptionID string
	Email          string
	Name           string
}

type CustomerEvent struct {
	Type       string
	CustomerID string
	TenantID   uint
	Email      string
	Name       string
	Deleted    bool
}

type PaymentFailedEvent struct {
	Type       string
	InvoiceID  string
	CustomerID string
	// FromRotation is set when the failure came from one of our own
	// rotation attempts.
	FromRotation bool
	FailureCode  string
}

// OpaqueEvent is any event type the engine does not act on.
type OpaqueEvent struct {
	Type string
}

func (e SubscriptionEvent) EventType() string  { return e.Type }
func (e InvoiceEvent) EventType() string       { return e.Type }
func (e CheckoutEvent) EventType() string      { return e.Type }
func (e CustomerEvent) EventType() string      { return e.Type }
func (e PaymentFailedEvent) EventType() string { return e.Type }
func (e OpaqueEvent) EventType() string        { return e.Type }

func (SubscriptionEvent) isEvent()  {}
func (InvoiceEvent) isEvent()       {}
func (CheckoutEvent) isEvent()      {}
func (CustomerEvent) isEvent()      {}
func (PaymentFailedEvent) isEvent() {}
func (OpaqueEvent) isEvent()        {}

type eventKind int

const (
	kindOpaque eventKind = iota
	kindSubscription
	kindInvoice
	kindCheckout
	kindCustomer
	kindPaymentFailed
)

var eventKinds = map[string]eventKind{
	"customer.subscription.created":                kindSubscription,
	"customer.subscription.updated":                kindSubscription,
	"customer.subscription.deleted":                kindSubscription,
	"customer.subscription.paused":                 kindSubscription,
	"customer.subscription.resumed":                kindSubscription,
	"customer.subscription.pending_update_applied": kindSubscription,
	"customer.subscription.pending_update_expired": kindSubscription,
	"customer.subscription.trial_will_end":         kindSubscription,
	"subscription.created":                         kindSubscription,
	"subscription.updated":                         kindSubscription,
	"subscription.deleted":                         kindSubscription,
	"subscription.canceled":                        kindSubscription,

	"invoice.paid":                 kindInvoice,
	"invoice.payment_succeeded":    kindInvoice,
	"invoice.marked_uncollectible": kindInvoice,
	"invoice.voided":               kindInvoice,

	"checkout.session.completed":               kindCheckout,
	"checkout.session.async_payment_succeeded": kindCheckout,
	"checkout.completed":                       kindCheckout,

	"customer.created": kindCustomer,
	"customer.updated": kindCustomer,
	"customer.deleted": kindCustomer,

	"invoice.payment_failed":        kindPaymentFailed,
	"payment_intent.payment_failed": kindPaymentFailed,
	"charge.failed":                 kindPaymentFailed,
	"payment.failed":                kindPaymentFailed,
}

// DecodeEvent converts the raw event into its typed variant. Unknown types
// decode to OpaqueEvent; known types with an unreadable object return
// ErrMalformedEvent.
func DecodeEvent(raw RawEvent) (Event, error) {
	kind, ok := eventKinds[raw.Type]
	if !ok {
		return OpaqueEvent{Type: raw.Type}, nil
	}
	if len(bytes.TrimSpace(raw.Object)) == 0 {
		return nil, fmt.Errorf("%w: %s has no data.object", ErrMalformedEvent, raw.Type)
	}

	var (
		ev  Event
		err error
	)
	switch kind {
	case kindSubscription:
		ev, err = decodeSubscriptionEvent(raw)
	case kindInvoice:
		ev, err = decodeInvoiceEvent(raw)
	case kindCheckout:
		ev, err = decodeCheckoutEvent(raw)
	case kindCustomer:
		ev, err = decodeCustomerEvent(raw)
	case kindPaymentFailed:
		ev, err = decodePaymentFailedEvent(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, raw.Type, err)
	}
	return ev, nil
}

// expandableID accepts either an id string or an expanded object with an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*e = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	default:
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*e = expandableID(obj.ID)
		return nil
	}
}

type wireSubscriptionItem struct {
	Quantity         int64 `json:"quantity"`
	CurrentPeriodEnd int64 `json:"current_period_end"`
	Price            struct {
		ID         string `json:"id"`
		UnitAmount int64  `json:"unit_amount"`
		Currency   string `json:"currency"`
	} `json:"price"`
}

type wireSubscription struct {
	ID                string            `json:"id"`
	Customer          expandableID      `json:"customer"`
	Status            string            `json:"status"`
	Currency          string            `json:"currency"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []wireSubscriptionItem `json:"data"`
	} `json:"items"`
	Plan *struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"plan"`

	// Flat shape used by providers that do not nest prices in items.
	PlanID string `json:"plan_id"`
	Amount *int64 `json:"amount"`
}

func (w wireSubscription) snapshot() SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		UpstreamSubscriptionID: w.ID,
		UpstreamCustomerID:     string(w.Customer),
		TenantID:               TenantIDFromMetadata(w.Metadata),
		Status:                 normalizeStatus(w.Status),
		PlanID:                 w.PlanID,
		Currency:               strings.ToLower(w.Currency),
		CancelAtPeriodEnd:      w.CancelAtPeriodEnd,
		Metadata:               w.Metadata,
	}

	periodEnd := w.CurrentPeriodEnd
	var amount int64
	for i, item := range w.Items.Data {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		amount += item.Price.UnitAmount * qty
		if i == 0 && snap.PlanID == "" {
			snap.PlanID = item.Price.ID
		}
		if snap.Currency == "" {
			snap.Currency = strings.ToLower(item.Price.Currency)
		}
		if item.CurrentPeriodEnd > periodEnd {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	if w.Plan != nil {
		if snap.PlanID == "" {
			snap.PlanID = w.Plan.ID
		}
		if len(w.Items.Data) == 0 {
			amount = w.Plan.Amount
		}
		if snap.Currency == "" {
			snap.Currency = strings.ToLower(w.Plan.Currency)
		}
	}
	if w.Amount != nil {
		amount = *w.Amount
	}
	snap.Amount = amount
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		snap.CurrentPeriodEnd = &t
	}
	return snap
}

// DecodeSubscriptionSnapshot reads a subscription object in the provider's
// JSON shape.
func DecodeSubscriptionSnapshot(object []byte) (SubscriptionSnapshot, error) {
	var w wireSubscription
	if err := json.Unmarshal(object, &w); err != nil {
		return SubscriptionSnapshot{}, err
	}
	if strings.TrimSpace(w.ID) == "" {
		return SubscriptionSnapshot{}, fmt.Errorf("subscription object has no id")
	}
	return w.snapshot(), nil
}

func decodeSubscriptionEvent(raw RawEvent) (Event, error) {
	snap, err := DecodeSubscriptionSnapshot(raw.Object)
	if err != nil {
		return nil, err
	}
	if !raw.Created.IsZero() {
		t := raw.Created
		snap.UpstreamUpdatedAt = &t
	}
	return SubscriptionEvent{Type: raw.Type, Snapshot: snap}, nil
}

type wireInvoice struct {
	ID           string            `json:"id"`
	Customer     expandableID      `json:"customer"`
	Subscription expandableID      `json:"subscription"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	LastFinalizationError *struct {
		Code string `json:"code"`
	} `json:"last_finalization_error"`
}

func (w wireInvoice) subscriptionID() string {
	if w.Subscription != "" {
		return string(w.Subscription)
	}
	if w.Parent != nil && w.Parent.SubscriptionDetails != nil {
		return string(w.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func decodeInvoiceEvent(raw RawEvent) (Event, error) {
	var w wireInvoice
	if err := json.Unmarshal(raw.Object, &w); err != nil {
		return nil, err
	}
	return InvoiceEvent{
		Type:           raw.Type,
		InvoiceID:      w.ID,
		CustomerID:     string(w.Customer),
		SubscriptionID: w.subscriptionID(),
		Status:         w.Status,
	}, nil
}

type wireCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          expandableID      `json:"customer"`
	Subscription      expandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerEmail     string            `json:"customer_email"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

func decodeCheckoutEvent(raw RawEvent) (Event, error) {
	var w wireCheckoutSession
	if err := json.Unmarshal(raw.Object, &w); err != nil {
		return nil, err
	}
	ev := CheckoutEvent{
		Type:           raw.Type,
		SessionID:      w.ID,
		TenantID:       TenantIDFromMetadata(w.Metadata),
		CustomerID:     string(w.Customer),
		SubscriptionID: string(w.Subscription),
		Email:          w.CustomerEmail,
	}
	if ev.TenantID == 0 {
		ev.TenantID = parseTenantID(w.ClientReferenceID)
	}
	if w.CustomerDetails != nil {
		if ev.Email == "" {
			ev.Email = w.CustomerDetails.Email
		}
		ev.Name = w.CustomerDetails.Name
	}
	return ev, nil
}

type wireCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Deleted  bool              `json:"deleted"`
	Metadata map[string]string `json:"metadata"`
}

func decodeCustomerEvent(raw RawEvent) (Event, error) {
	var w wireCustomer
	if err := json.Unmarshal(raw.Object, &w); err != nil {
		return nil, err
	}
	return CustomerEvent{
		Type:       raw.Type,
		CustomerID: w.ID,
		TenantID:   TenantIDFromMetadata(w.Metadata),
		Email:      w.Email,
		Name:       w.Name,
		Deleted:    w.Deleted || raw.Type == "customer.deleted",
	}, nil
}

// wirePaymentFailure covers invoices, payment intents, charges and the flat
// payment.failed shape.
type wirePaymentFailure struct {
	Object           string            `json:"object"`
	ID               string            `json:"id"`
	Customer         expandableID      `json:"customer"`
	Invoice          expandableID      `json:"invoice"`
	InvoiceID        string            `json:"invoice_id"`
	Metadata         map[string]string `json:"metadata"`
	FailureCode      string            `json:"failure_code"`
	LastPaymentError *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
	} `json:"last_payment_error"`
}

func decodePaymentFailedEvent(raw RawEvent) (Event, error) {
	var w wirePaymentFailure
	if err := json.Unmarshal(raw.Object, &w); err != nil {
		return nil, err
	}
	ev := PaymentFailedEvent{
		Type:         raw.Type,
		CustomerID:   string(w.Customer),
		FromRotation: w.Metadata[MetadataRotationOrigin] == "true",
		FailureCode:  w.FailureCode,
	}
	switch {
	case w.Object == "invoice" || strings.HasPrefix(raw.Type, "invoice."):
		ev.InvoiceID = w.ID
	case w.InvoiceID != "":
		ev.InvoiceID = w.InvoiceID
	case w.Invoice != "":
		ev.InvoiceID = string(w.Invoice)
	default:
		ev.InvoiceID = w.Metadata[MetadataInvoiceID]
	}
	if ev.FailureCode == "" && w.LastPaymentError != nil {
		ev.FailureCode = w.LastPaymentError.Code
	}
	return ev, nil
}
