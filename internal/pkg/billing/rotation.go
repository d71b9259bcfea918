package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ManuelReschke/PawDesk/internal/pkg/metrics"
)

// Attempt outcomes.
const (
	AttemptSucceeded     = "succeeded"
	AttemptCardDeclined  = "card_declined"
	AttemptInvalidMethod = "invalid_method"
	AttemptUnknownError  = "unknown_error"
)

// PaymentAttempt records one charge try within a rotation.
type PaymentAttempt struct {
	MethodType        string `json:"method_type"`
	Outcome           string `json:"outcome"`
	ProviderErrorCode string `json:"provider_error_code,omitempty"`
	Error             string `json:"error,omitempty"`
}

// RotationResult is the outcome of ChargeWithRotation or RetryInvoiceWithRotation.
type RotationResult struct {
	Succeeded      bool             `json:"succeeded"`
	MethodUsed     string           `json:"method_used,omitempty"`
	ChargeID       string           `json:"charge_id,omitempty"`
	Attempts       []PaymentAttempt `json:"attempts"`
	AlreadySettled bool             `json:"already_settled,omitempty"`
}

// ChargeInput describes a payment to collect.
type ChargeInput struct {
	Amount          int64
	Currency        string
	Customer        CustomerRef
	PreferredMethod string
	Country         string
	InvoiceID       string
	Description     string
	// AttachPaymentMethodID is attached to the customer before rotating.
	AttachPaymentMethodID string
}

// RotationEngine collects a payment by trying the customer's preferred
// method and then the local alternatives for their country.
type RotationEngine struct {
	provider PaymentProviderClient
	logger   Logger
	cfg      Config
}

func NewRotationEngine(d Deps) *RotationEngine {
	d = d.withDefaults()
	return &RotationEngine{
		provider: d.Provider,
		logger:   d.Logger,
		cfg:      d.Config,
	}
}

// ChargeWithRotation tries each candidate method once. On exhaustion it
// returns the partial result together with a *RotationError.
func (e *RotationEngine) ChargeWithRotation(ctx context.Context, in ChargeInput) (*RotationResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidCharge)
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidCharge)
	}
	customerID := in.Customer.UpstreamCustomerID
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer has no upstream id", ErrInvalidCharge)
	}

	fields := Fields{"customer": customerID, "amount": in.Amount, "currency": currency, "invoice_id": in.InvoiceID}
	if in.AttachPaymentMethodID != "" {
		if err := e.provider.AttachPaymentMethod(ctx, in.AttachPaymentMethodID, customerID); err != nil {
			fields["error"] = err.Error()
			e.logger.Warn("failed to attach payment method, rotating without it", fields)
			delete(fields, "error")
		}
	}

	preferred := normalizeMethod(in.PreferredMethod)
	country := strings.ToUpper(strings.TrimSpace(in.Country))
	var customer *UpstreamCustomer
	if preferred == "" || country == "" {
		customer = e.lookupCustomer(ctx, customerID)
	}
	country = e.resolveCountry(country, currency, customer)
	if preferred == "" {
		preferred = e.preferredMethod(ctx, customerID, customer, country)
	}
	candidates := e.cfg.candidates(preferred, country)
	fields["country"] = country
	fields["candidates"] = strings.Join(candidates, ",")

	idempotencyBase := uuid.NewString()
	result := &RotationResult{}
	var lastErr error
	for i := 0; i < len(candidates); i++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		method := candidates[i]
		charge, err := e.provider.CreateCharge(ctx, ChargeRequest{
			Amount:         in.Amount,
			Currency:       currency,
			CustomerID:     customerID,
			MethodType:     method,
			InvoiceID:      in.InvoiceID,
			IdempotencyKey: fmt.Sprintf("%s-%d-%s", idempotencyBase, i, method),
			Description:    in.Description,
			Metadata: map[string]string{
				MetadataRotationOrigin: "true",
				MetadataInvoiceID:      in.InvoiceID,
			},
		})
		if err == nil {
			result.Attempts = append(result.Attempts, PaymentAttempt{MethodType: method, Outcome: AttemptSucceeded})
			result.Succeeded = true
			result.MethodUsed = method
			if charge != nil {
				result.ChargeID = charge.ID
			}
			metrics.RotationAttemptsTotal.WithLabelValues(method, AttemptSucceeded).Inc()
			metrics.RotationsTotal.WithLabelValues("succeeded").Inc()
			fields["method"] = method
			fields["attempts"] = len(result.Attempts)
			e.logger.Info("payment collected", fields)
			return result, nil
		}

		outcome := attemptOutcome(err)
		result.Attempts = append(result.Attempts, PaymentAttempt{
			MethodType:        method,
			Outcome:           outcome,
			ProviderErrorCode: ErrorCode(err),
			Error:             err.Error(),
		})
		metrics.RotationAttemptsTotal.WithLabelValues(method, outcome).Inc()
		lastErr = err

		e.logger.Warn("payment attempt failed", Fields{
			"customer": customerID,
			"method":   method,
			"outcome":  outcome,
			"code":     ErrorCode(err),
			"error":    err.Error(),
		})
		if outcome == AttemptCardDeclined && e.cfg.isCardClass(method) {
			candidates = e.cfg.pruneCardClass(candidates, i+1)
		}
	}

	metrics.RotationsTotal.WithLabelValues("exhausted").Inc()
	if lastErr == nil {
		lastErr = errors.New("no payment method candidates")
	}
	rotErr := &RotationError{Attempts: result.Attempts, Last: lastErr}
	fields["attempts"] = len(result.Attempts)
	fields["error"] = rotErr.Error()
	e.logger.Error("payment rotation exhausted", fields)
	return result, rotErr
}

// RetryInvoiceWithRotation collects an open invoice. Settled invoices return
// immediately with AlreadySettled and no attempts.
func (e *RotationEngine) RetryInvoiceWithRotation(ctx context.Context, invoiceID, preferredMethod string) (*RotationResult, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, fmt.Errorf("%w: invoice id is required", ErrInvalidCharge)
	}
	inv, err := e.provider.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice %s: %w", invoiceID, err)
	}
	if inv.IsSettled() {
		metrics.RotationsTotal.WithLabelValues("settled").Inc()
		e.logger.Info("invoice already settled, nothing to retry", Fields{"invoice_id": invoiceID, "status": inv.Status})
		return &RotationResult{Succeeded: true, AlreadySettled: true}, nil
	}

	return e.ChargeWithRotation(ctx, ChargeInput{
		Amount:          inv.AmountDue,
		Currency:        inv.Currency,
		Customer:        CustomerRef{UpstreamCustomerID: inv.CustomerID},
		PreferredMethod: preferredMethod,
		InvoiceID:       inv.ID,
		Description:     "Invoice " + inv.ID,
	})
}

// DetectPreferredMethod picks the first method to try: the customer's default
// instrument, then the most common saved method, then the country table, then
// the configured default. An empty country is taken from the customer, then
// from the currency.
func (e *RotationEngine) DetectPreferredMethod(ctx context.Context, upstreamCustomerID, country, currency string) string {
	customer := e.lookupCustomer(ctx, upstreamCustomerID)
	country = e.resolveCountry(country, currency, customer)
	return e.preferredMethod(ctx, upstreamCustomerID, customer, country)
}

func (e *RotationEngine) lookupCustomer(ctx context.Context, upstreamCustomerID string) *UpstreamCustomer {
	if upstreamCustomerID == "" {
		return nil
	}
	c, err := e.provider.GetCustomer(ctx, upstreamCustomerID)
	if err != nil {
		e.logger.Debug("customer lookup failed while preparing rotation", Fields{"customer": upstreamCustomerID, "error": err.Error()})
		return nil
	}
	return c
}

// resolveCountry prefers the explicit country, then the customer's billing
// country, then the country implied by currency.
func (e *RotationEngine) resolveCountry(country, currency string, customer *UpstreamCustomer) string {
	if cc := strings.ToUpper(strings.TrimSpace(country)); cc != "" {
		return cc
	}
	if customer != nil {
		if cc := strings.ToUpper(strings.TrimSpace(customer.Country)); cc != "" {
			return cc
		}
	}
	return e.cfg.countryFor("", currency)
}

func (e *RotationEngine) preferredMethod(ctx context.Context, upstreamCustomerID string, customer *UpstreamCustomer, country string) string {
	if customer != nil {
		if m := normalizeMethod(customer.DefaultPaymentMethodType); m != "" {
			return m
		}
	}
	if upstreamCustomerID != "" {
		methods, err := e.provider.ListPaymentMethods(ctx, upstreamCustomerID)
		if err == nil {
			if m := majorityMethodType(methods); m != "" {
				return m
			}
		} else {
			e.logger.Debug("listing payment methods failed while detecting payment method", Fields{"customer": upstreamCustomerID, "error": err.Error()})
		}
	}
	if methods := e.cfg.methodsFor(country); len(methods) > 0 {
		return methods[0]
	}
	return e.cfg.DefaultPaymentMethod
}

func attemptOutcome(err error) string {
	switch KindOf(err) {
	case ErrorKindDeclined:
		return AttemptCardDeclined
	case ErrorKindInvalidMethod:
		return AttemptInvalidMethod
	default:
		return AttemptUnknownError
	}
}
