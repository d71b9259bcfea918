package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/PawDesk/app/models"
	"github.com/ManuelReschke/PawDesk/internal/pkg/metrics"
)

// Outcome is what Handle did with an event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInFlight  Outcome = "in_flight"
	OutcomeIgnored   Outcome = "ignored"
)

// Dispatcher is the entry point for provider events. It guarantees that an
// event id is handled successfully at most once, however often the provider
// delivers it.
type Dispatcher struct {
	events     EventStore
	reconciler *Reconciler
	resolver   *CustomerResolver
	rotation   *RotationEngine
	retries    InvoiceRetryScheduler
	archiver   PayloadArchiver
	logger     Logger
	clock      Clock
	cfg        Config
}

func NewDispatcher(d Deps, reconciler *Reconciler, resolver *CustomerResolver, rotation *RotationEngine) *Dispatcher {
	d = d.withDefaults()
	return &Dispatcher{
		events:     d.Events,
		reconciler: reconciler,
		resolver:   resolver,
		rotation:   rotation,
		retries:    d.RetryScheduler,
		archiver:   d.Archiver,
		logger:     d.Logger,
		clock:      d.Clock,
		cfg:        d.Config,
	}
}

// Handle records and processes one inbound event. A returned error means the
// event was not handled and must be redelivered.
func (d *Dispatcher) Handle(ctx context.Context, raw RawEvent) (Outcome, error) {
	if err := raw.validate(); err != nil {
		metrics.EventsTotal.WithLabelValues("unknown", "failed").Inc()
		return "", err
	}
	fields := Fields{"event_id": raw.ID, "event_type": raw.Type}

	processed, err := d.events.ExistsAndProcessed(ctx, raw.ID)
	if err != nil {
		return "", fmt.Errorf("check event %s: %w", raw.ID, err)
	}
	if processed {
		d.logger.Debug("event already processed, skipping", fields)
		metrics.EventsTotal.WithLabelValues(raw.Type, string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	now := d.clock.Now()
	created, err := d.events.InsertIfAbsent(ctx, &models.ProviderEvent{
		Provider:       d.cfg.Provider,
		EventID:        raw.ID,
		EventType:      raw.Type,
		PayloadJSON:    string(raw.Payload),
		SignatureValid: raw.SignatureValid,
		ClaimedAt:      &now,
		Attempts:       1,
	})
	if err != nil {
		return "", fmt.Errorf("record event %s: %w", raw.ID, err)
	}
	if created {
		d.archive(ctx, raw, fields)
	} else {
		claimed, err := d.events.Claim(ctx, raw.ID, now, now.Add(-d.cfg.EventClaimTTL))
		if err != nil {
			return "", fmt.Errorf("claim event %s: %w", raw.ID, err)
		}
		if !claimed {
			d.logger.Debug("event already being handled, skipping", fields)
			metrics.EventsTotal.WithLabelValues(raw.Type, string(OutcomeInFlight)).Inc()
			return OutcomeInFlight, nil
		}
	}

	return d.process(ctx, raw, fields)
}

// Replay re-runs a stored event that has not been processed yet.
func (d *Dispatcher) Replay(ctx context.Context, eventID string) (Outcome, error) {
	stored, err := d.events.Get(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("load event %s: %w", eventID, err)
	}
	fields := Fields{"event_id": stored.EventID, "event_type": stored.EventType, "replay": true}
	if stored.Processed {
		d.logger.Debug("event already processed, skipping", fields)
		return OutcomeDuplicate, nil
	}

	raw, err := ParseRawEvent([]byte(stored.PayloadJSON))
	if err != nil {
		return "", err
	}
	raw.SignatureValid = stored.SignatureValid

	now := d.clock.Now()
	claimed, err := d.events.Claim(ctx, stored.EventID, now, now.Add(-d.cfg.EventClaimTTL))
	if err != nil {
		return "", fmt.Errorf("claim event %s: %w", eventID, err)
	}
	if !claimed {
		return OutcomeInFlight, nil
	}
	return d.process(ctx, raw, fields)
}

// ReplayPending replays unprocessed events older than the configured minimum
// age. It returns how many events were processed.
func (d *Dispatcher) ReplayPending(ctx context.Context) (int, error) {
	pending, err := d.events.ListUnprocessed(ctx, d.clock.Now().Add(-d.cfg.ReplayMinAge), d.cfg.ReplayBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed events: %w", err)
	}
	var (
		done int
		errs []error
	)
	for _, ev := range pending {
		outcome, err := d.Replay(ctx, ev.EventID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.EventID, err))
			continue
		}
		if outcome == OutcomeProcessed || outcome == OutcomeIgnored {
			done++
		}
	}
	return done, errors.Join(errs...)
}

func (d *Dispatcher) process(ctx context.Context, raw RawEvent, fields Fields) (Outcome, error) {
	start := time.Now()
	outcome, err := d.dispatch(ctx, raw)
	// The claim must be settled even when the handler ran out of time.
	storeCtx := context.WithoutCancel(ctx)
	metrics.EventDuration.WithLabelValues(raw.Type).Observe(time.Since(start).Seconds())
	if err != nil {
		fields["error"] = err.Error()
		d.logger.Error("event handling failed", fields)
		metrics.EventsTotal.WithLabelValues(raw.Type, "failed").Inc()
		if relErr := d.events.Release(storeCtx, raw.ID, err); relErr != nil {
			fields["release_error"] = relErr.Error()
			d.logger.Error("failed to release event claim", fields)
		}
		return "", err
	}

	if err := d.events.MarkProcessed(storeCtx, raw.ID, d.clock.Now()); err != nil {
		return "", fmt.Errorf("mark event %s processed: %w", raw.ID, err)
	}
	metrics.EventsTotal.WithLabelValues(raw.Type, string(outcome)).Inc()
	fields["outcome"] = string(outcome)
	d.logger.Info("event handled", fields)
	return outcome, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, raw RawEvent) (Outcome, error) {
	event, err := DecodeEvent(raw)
	if err != nil {
		return "", err
	}
	origin := changeOrigin{eventType: raw.Type, eventID: raw.ID, changedBy: models.ChangedByWebhook}

	switch ev := event.(type) {
	case SubscriptionEvent:
		_, err = d.reconciler.reconcile(ctx, ev.Snapshot, origin)
	case InvoiceEvent:
		err = d.handleInvoice(ctx, ev, origin)
	case CheckoutEvent:
		err = d.handleCheckout(ctx, ev, origin)
	case CustomerEvent:
		err = d.handleCustomer(ctx, ev)
	case PaymentFailedEvent:
		err = d.handlePaymentFailed(ctx, ev)
	case OpaqueEvent:
		d.logger.Info("ignoring unhandled event type", Fields{"event_id": raw.ID, "event_type": raw.Type})
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("%w: unsupported event variant %T", ErrMalformedEvent, event)
	}
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// handleInvoice refreshes the invoice's subscription from the provider.
func (d *Dispatcher) handleInvoice(ctx context.Context, ev InvoiceEvent, origin changeOrigin) error {
	fields := Fields{"invoice_id": ev.InvoiceID, "event_type": ev.Type}
	if ev.SubscriptionID == "" {
		d.logger.Info("invoice has no subscription, nothing to reconcile", fields)
		return nil
	}
	snap, err := d.reconciler.fetchLive(ctx, ev.SubscriptionID)
	if KindOf(err) == ErrorKindNotFound {
		fields["subscription"] = ev.SubscriptionID
		d.logger.Warn("invoice subscription not found upstream, skipping", fields)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", ev.SubscriptionID, err)
	}
	_, err = d.reconciler.reconcile(ctx, *snap, origin)
	return err
}

// handleCheckout maps the tenant to the session's customer, or resolves one
// when the session has none, and then records the purchased subscription as new.
func (d *Dispatcher) handleCheckout(ctx context.Context, ev CheckoutEvent, origin changeOrigin) error {
	if ev.TenantID == 0 {
		return fmt.Errorf("%w: checkout session %s", ErrMissingTenant, ev.SessionID)
	}
	ref, err := d.resolver.AdoptUpstream(ctx, ev.TenantID, ev.CustomerID, ev.Email, ev.Name)
	if err != nil {
		return err
	}
	if ev.SubscriptionID == "" {
		d.logger.Info("checkout completed without subscription", Fields{"session_id": ev.SessionID, "tenant_id": ev.TenantID})
		return nil
	}

	snap, err := d.reconciler.fetchLive(ctx, ev.SubscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", ev.SubscriptionID, err)
	}
	if snap.TenantID == 0 {
		snap.TenantID = ev.TenantID
	}
	origin.customer = &ref
	_, err = d.reconciler.reconcile(ctx, *snap, origin)
	return err
}

func (d *Dispatcher) handleCustomer(ctx context.Context, ev CustomerEvent) error {
	fields := Fields{"upstream_customer_id": ev.CustomerID, "event_type": ev.Type}
	switch {
	case ev.Deleted:
		return d.resolver.ForgetUpstream(ctx, ev.CustomerID)
	case ev.TenantID != 0:
		_, err := d.resolver.AdoptUpstream(ctx, ev.TenantID, ev.CustomerID, ev.Email, ev.Name)
		return err
	default:
		d.logger.Info("customer event without tenant, nothing to resolve", fields)
		return nil
	}
}

// handlePaymentFailed hands the invoice to the retry scheduler, or rotates
// synchronously when none is configured.
func (d *Dispatcher) handlePaymentFailed(ctx context.Context, ev PaymentFailedEvent) error {
	fields := Fields{"invoice_id": ev.InvoiceID, "event_type": ev.Type, "failure_code": ev.FailureCode}
	if strings.TrimSpace(ev.InvoiceID) == "" {
		d.logger.Info("payment failure without invoice, nothing to retry", fields)
		return nil
	}
	if ev.FromRotation {
		d.logger.Debug("payment failure from rotation attempt, ignoring", fields)
		return nil
	}

	if d.retries != nil {
		scheduled, err := d.retries.ScheduleInvoiceRetry(ctx, ev.InvoiceID, ev.Type)
		if err != nil {
			return fmt.Errorf("schedule retry for invoice %s: %w", ev.InvoiceID, err)
		}
		fields["scheduled"] = scheduled
		d.logger.Info("invoice retry requested", fields)
		return nil
	}

	result, err := d.rotation.RetryInvoiceWithRotation(ctx, ev.InvoiceID, "")
	var rotErr *RotationError
	if errors.As(err, &rotErr) {
		fields["attempts"] = len(rotErr.Attempts)
		d.logger.Warn("invoice retry exhausted all payment methods", fields)
		return nil
	}
	if err != nil {
		return err
	}
	fields["method"] = result.MethodUsed
	fields["already_settled"] = result.AlreadySettled
	d.logger.Info("invoice retried", fields)
	return nil
}

func (d *Dispatcher) archive(ctx context.Context, raw RawEvent, fields Fields) {
	if d.archiver == nil {
		return
	}
	if err := d.archiver.ArchivePayload(ctx, raw.ID, raw.Type, raw.Payload); err != nil {
		d.logger.Warn("failed to archive event payload", Fields{"event_id": fields["event_id"], "error": err.Error()})
	}
}
