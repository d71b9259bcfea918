package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
	"github.com/ManuelReschke/PawDesk/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PawDesk/internal/pkg/metrics"
)

const defaultRequestTimeout = 15 * time.Second

// InvoiceRetryEnqueuer queues an operator-requested invoice retry.
type InvoiceRetryEnqueuer interface {
	Enqueue(ctx context.Context, payload jobqueue.InvoiceRetryJobPayload) (*jobqueue.Job, error)
}

// BillingController exposes the billing engine over HTTP.
type BillingController struct {
	engine        *billing.Engine
	retries       InvoiceRetryEnqueuer
	webhookSecret string
	timeout       time.Duration
	validate      *validator.Validate
}

func NewBillingController(engine *billing.Engine, retries InvoiceRetryEnqueuer, webhookSecret string, timeout time.Duration) *BillingController {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &BillingController{
		engine:        engine,
		retries:       retries,
		webhookSecret: strings.TrimSpace(webhookSecret),
		timeout:       timeout,
		validate:      validator.New(),
	}
}

// HandleStripeWebhook verifies and dispatches a provider event. Any non-2xx
// response makes the provider redeliver the event.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(statusLabel(c.Response().StatusCode())).Inc()
	}()

	if bc.webhookSecret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhook_not_configured"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_signature"})
	}
	if _, err := webhook.ConstructEventWithOptions(rawBody, signature, bc.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}); err != nil {
		ipv4, ipv6 := GetClientIP(c)
		log.Warnf("[Billing] Rejected webhook with invalid signature from %s%s: %v", ipv4, ipv6, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	raw, err := billing.ParseRawEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}
	raw.SignatureValid = true

	ctx, cancel := context.WithTimeout(context.Background(), bc.timeout)
	defer cancel()

	outcome, err := bc.engine.Dispatcher.Handle(ctx, raw)
	if err != nil {
		if errors.Is(err, billing.ErrMalformedEvent) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
		}
		log.Errorf("[Billing] Webhook %s (%s) failed: %v", raw.ID, raw.Type, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "status": outcome})
}

type createChargeRequest struct {
	TenantID        uint   `json:"tenant_id" validate:"required"`
	Amount          int64  `json:"amount" validate:"gt=0"`
	Currency        string `json:"currency" validate:"required,len=3"`
	PreferredMethod string `json:"preferred_method" validate:"omitempty,max=64"`
	Country         string `json:"country" validate:"omitempty,len=2"`
	Email           string `json:"email" validate:"omitempty,email"`
	Name            string `json:"name" validate:"omitempty,max=255"`
	InvoiceID       string `json:"invoice_id" validate:"omitempty,max=191"`
	Description     string `json:"description" validate:"omitempty,max=500"`
	PaymentMethodID string `json:"payment_method_id" validate:"omitempty,max=191"`
}

// HandleCreateCharge resolves the tenant's customer and collects a payment
// with method rotation.
func (bc *BillingController) HandleCreateCharge(c *fiber.Ctx) error {
	var req createChargeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}
	if err := bc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), bc.timeout)
	defer cancel()

	customer, err := bc.engine.Resolver.ResolveOrCreate(ctx, req.TenantID, req.Email, req.Name)
	if err != nil {
		log.Errorf("[Billing] Resolve customer for tenant %d failed: %v", req.TenantID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "customer_unavailable", "message": err.Error()})
	}

	res, err := bc.engine.Rotation.ChargeWithRotation(ctx, billing.ChargeInput{
		Amount:                req.Amount,
		Currency:              req.Currency,
		Customer:              customer,
		PreferredMethod:       req.PreferredMethod,
		Country:               req.Country,
		InvoiceID:             req.InvoiceID,
		Description:           req.Description,
		AttachPaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		var rotErr *billing.RotationError
		switch {
		case errors.As(err, &rotErr):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":    "payment_failed",
				"message":  err.Error(),
				"attempts": rotErr.Attempts,
			})
		case errors.Is(err, billing.ErrInvalidCharge):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_charge", "message": err.Error()})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_error", "message": err.Error()})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"customer_id":        customer.UpstreamCustomerID,
		"customer_recreated": customer.Recreated,
		"succeeded":          res.Succeeded,
		"method_used":        res.MethodUsed,
		"charge_id":          res.ChargeID,
		"attempts":           res.Attempts,
	})
}

type retryInvoiceRequest struct {
	PreferredMethod string `json:"preferred_method" validate:"omitempty,max=64"`
}

// HandleRetryInvoice queues a rotation retry for an open invoice.
func (bc *BillingController) HandleRetryInvoice(c *fiber.Ctx) error {
	invoiceID := strings.TrimSpace(c.Params("id"))
	if invoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invoice ID is required"})
	}

	var req retryInvoiceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
		}
	}
	if err := bc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), bc.timeout)
	defer cancel()

	job, err := bc.retries.Enqueue(ctx, jobqueue.InvoiceRetryJobPayload{
		InvoiceID:       invoiceID,
		PreferredMethod: req.PreferredMethod,
		Reason:          "operator_request",
	})
	if err != nil {
		log.Errorf("[Billing] Failed to queue retry for invoice %s: %v", invoiceID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue_unavailable"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true, "job_id": job.ID, "invoice_id": invoiceID})
}

type resyncRequest struct {
	ActorUserID *uint `json:"actor_user_id"`
}

// HandleResyncSubscription pulls a subscription from the provider and
// reconciles the local mirror.
func (bc *BillingController) HandleResyncSubscription(c *fiber.Ctx) error {
	subscriptionID := strings.TrimSpace(c.Params("id"))
	if subscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Subscription ID is required"})
	}

	var req resyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), bc.timeout)
	defer cancel()

	res, err := bc.engine.Reconciler.Resync(ctx, subscriptionID, req.ActorUserID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		log.Errorf("[Billing] Resync of %s failed: %v", subscriptionID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "resync_failed", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"subscription": res.Subscription,
		"change_type":  res.ChangeType,
		"skipped":      res.Skipped,
		"skip_reason":  res.SkipReason,
	})
}

// HandleReplayEvent re-runs a stored event that was never processed.
func (bc *BillingController) HandleReplayEvent(c *fiber.Ctx) error {
	eventID := strings.TrimSpace(c.Params("id"))
	if eventID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Event ID is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), bc.timeout)
	defer cancel()

	outcome, err := bc.engine.Dispatcher.Replay(ctx, eventID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Event not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "replay_failed", "message": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"event_id": eventID, "status": outcome})
}
