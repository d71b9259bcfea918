package stripeprovider

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
	"github.com/ManuelReschke/PawDesk/internal/pkg/env"
)

// Client implements billing.PaymentProviderClient on top of the Stripe API.
// Requests always go to the platform account; no Stripe-Account header is set.
type Client struct {
	api *client.API
}

// New creates a client with its own API instance so the global stripe.Key is
// never touched. backends may be nil.
func New(secretKey string, backends *stripe.Backends) *Client {
	api := &client.API{}
	api.Init(strings.TrimSpace(secretKey), backends)
	return &Client{api: api}
}

// NewFromEnv reads STRIPE_SECRET_KEY.
func NewFromEnv() (*Client, error) {
	key := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	if key == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not set")
	}
	return New(key, nil), nil
}

var _ billing.PaymentProviderClient = (*Client)(nil)

func (c *Client) GetCustomer(ctx context.Context, upstreamCustomerID string) (*billing.UpstreamCustomer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddExpand("invoice_settings.default_payment_method")
	cust, err := c.api.Customers.Get(upstreamCustomerID, params)
	if err != nil {
		return nil, mapError(err)
	}
	return toUpstreamCustomer(cust), nil
}

func (c *Client) CreateCustomer(ctx context.Context, in billing.CreateCustomerParams) (*billing.UpstreamCustomer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	if in.Name != "" {
		params.Name = stripe.String(in.Name)
	}
	params.AddMetadata(billing.MetadataTenantID, strconv.FormatUint(uint64(in.TenantID), 10))
	cust, err := c.api.Customers.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	return toUpstreamCustomer(cust), nil
}

func (c *Client) GetSubscription(ctx context.Context, upstreamSubscriptionID string) (*billing.SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(upstreamSubscriptionID, params)
	if err != nil {
		return nil, mapError(err)
	}
	snap := toSnapshot(sub)
	return &snap, nil
}

// CreateCharge pays with a saved payment method of the requested type. Invoice
// charges pay the invoice itself so the subscription state follows.
func (c *Client) CreateCharge(ctx context.Context, req billing.ChargeRequest) (*billing.Charge, error) {
	pm, err := c.savedMethod(ctx, req.CustomerID, req.MethodType)
	if err != nil {
		return nil, err
	}
	if req.InvoiceID != "" {
		return c.payInvoice(ctx, req, pm)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		Customer:           stripe.String(req.CustomerID),
		PaymentMethod:      stripe.String(pm),
		PaymentMethodTypes: stripe.StringSlice([]string{req.MethodType}),
		Confirm:            stripe.Bool(true),
		OffSession:         stripe.Bool(true),
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		if v != "" {
			params.AddMetadata(k, v)
		}
	}
	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	if err := intentStatusError(pi); err != nil {
		return nil, err
	}
	return &billing.Charge{ID: pi.ID, Status: string(pi.Status), MethodType: req.MethodType}, nil
}

// payInvoice pays through the invoice. Stripe does not forward metadata to the
// invoice's PaymentIntent, so the request metadata is set on the invoice while
// the payment runs and removed afterwards; failure events raised by the
// payment carry it on the invoice object.
func (c *Client) payInvoice(ctx context.Context, req billing.ChargeRequest, paymentMethodID string) (*billing.Charge, error) {
	if len(req.Metadata) > 0 {
		if err := c.setInvoiceMetadata(ctx, req.InvoiceID, req.Metadata, false); err != nil {
			log.Warnf("[Stripe] Marking invoice %s before payment failed: %v", req.InvoiceID, err)
		} else {
			defer func() {
				if err := c.setInvoiceMetadata(context.WithoutCancel(ctx), req.InvoiceID, req.Metadata, true); err != nil {
					log.Warnf("[Stripe] Clearing payment marker on invoice %s failed: %v", req.InvoiceID, err)
				}
			}()
		}
	}

	params := &stripe.InvoicePayParams{
		PaymentMethod: stripe.String(paymentMethodID),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	inv, err := c.api.Invoices.Pay(req.InvoiceID, params)
	if err != nil {
		return nil, mapError(err)
	}
	return &billing.Charge{ID: inv.ID, Status: string(inv.Status), MethodType: req.MethodType}, nil
}

// setInvoiceMetadata sets the given keys, or unsets them when clear is true.
// Empty values are skipped.
func (c *Client) setInvoiceMetadata(ctx context.Context, invoiceID string, metadata map[string]string, clear bool) error {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	for k, v := range metadata {
		if v == "" {
			continue
		}
		if clear {
			v = ""
		}
		params.AddMetadata(k, v)
	}
	if _, err := c.api.Invoices.Update(invoiceID, params); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) ListPaymentMethods(ctx context.Context, upstreamCustomerID string) ([]billing.PaymentMethod, error) {
	return c.listPaymentMethods(ctx, upstreamCustomerID, "")
}

func (c *Client) listPaymentMethods(ctx context.Context, upstreamCustomerID, methodType string) ([]billing.PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(upstreamCustomerID),
	}
	params.Context = ctx
	if methodType != "" {
		params.Type = stripe.String(methodType)
	}
	var out []billing.PaymentMethod
	iter := c.api.PaymentMethods.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		out = append(out, billing.PaymentMethod{ID: pm.ID, Type: string(pm.Type)})
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (c *Client) savedMethod(ctx context.Context, customerID, methodType string) (string, error) {
	methods, err := c.listPaymentMethods(ctx, customerID, methodType)
	if err != nil {
		return "", err
	}
	for _, pm := range methods {
		if pm.Type == methodType {
			return pm.ID, nil
		}
	}
	return "", &billing.ProviderError{
		Kind:    billing.ErrorKindInvalidMethod,
		Code:    "payment_method_unavailable",
		Message: "customer has no saved " + methodType + " payment method",
	}
}

func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*billing.Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := c.api.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, mapError(err)
	}
	return toInvoice(inv), nil
}

func (c *Client) AttachPaymentMethod(ctx context.Context, paymentMethodID, upstreamCustomerID string) error {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(upstreamCustomerID),
	}
	params.Context = ctx
	if _, err := c.api.PaymentMethods.Attach(paymentMethodID, params); err != nil {
		return mapError(err)
	}
	return nil
}
