package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/PawDesk/app/models"
)

// ReconcileResult describes what a reconciliation did.
type ReconcileResult struct {
	Subscription *models.Subscription
	History      *models.SubscriptionHistory
	ChangeType   string
	Skipped      bool
	SkipReason   string
}

const (
	skipUnknownSubscription = "unknown_subscription"
	skipStaleSnapshot       = "stale_snapshot"
)

// changeOrigin carries who or what triggered a reconciliation.
type changeOrigin struct {
	eventType   string
	eventID     string
	changedBy   string
	actorUserID *uint
	// customer is the already resolved local customer, if the caller has one.
	customer *CustomerRef
}

// Reconciler mirrors upstream subscription snapshots into the local store
// and records every change in the subscription history.
type Reconciler struct {
	subs      SubscriptionStore
	history   HistoryStore
	customers CustomerStore
	provider  PaymentProviderClient
	notifier  EmailNotifier
	logger    Logger
	clock     Clock
	cfg       Config
}

func NewReconciler(d Deps) *Reconciler {
	d = d.withDefaults()
	return &Reconciler{
		subs:      d.Subscriptions,
		history:   d.History,
		customers: d.Customers,
		provider:  d.Provider,
		notifier:  d.Notifier,
		logger:    d.Logger,
		clock:     d.Clock,
		cfg:       d.Config,
	}
}

// Reconcile applies a webhook snapshot.
func (r *Reconciler) Reconcile(ctx context.Context, snap SubscriptionSnapshot, eventType string) (*ReconcileResult, error) {
	return r.reconcile(ctx, snap, changeOrigin{eventType: eventType, changedBy: models.ChangedByWebhook})
}

// Resync fetches the live subscription from the provider and reconciles it
// on behalf of an operator. Unknown subscriptions are created.
func (r *Reconciler) Resync(ctx context.Context, upstreamSubscriptionID string, actorUserID *uint) (*ReconcileResult, error) {
	id := strings.TrimSpace(upstreamSubscriptionID)
	if id == "" {
		return nil, errors.New("upstream subscription id is required")
	}
	snap, err := r.fetchLive(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", id, err)
	}
	return r.reconcile(ctx, *snap, changeOrigin{
		eventType:   "subscription.resync",
		changedBy:   models.ChangedByAPI,
		actorUserID: actorUserID,
	})
}

// fetchLive reads the current subscription from the provider. Snapshots
// without an upstream timestamp are stamped with the fetch time so the stale
// guard also covers events delivered after the fetch.
func (r *Reconciler) fetchLive(ctx context.Context, upstreamSubscriptionID string) (*SubscriptionSnapshot, error) {
	snap, err := r.provider.GetSubscription(ctx, upstreamSubscriptionID)
	if err != nil {
		return nil, err
	}
	if snap.UpstreamUpdatedAt == nil || snap.UpstreamUpdatedAt.IsZero() {
		fetchedAt := r.clock.Now()
		snap.UpstreamUpdatedAt = &fetchedAt
	}
	return snap, nil
}

func (r *Reconciler) reconcile(ctx context.Context, snap SubscriptionSnapshot, origin changeOrigin) (*ReconcileResult, error) {
	upstreamID := strings.TrimSpace(snap.UpstreamSubscriptionID)
	if upstreamID == "" {
		return nil, fmt.Errorf("%w: snapshot has no subscription id", ErrMalformedEvent)
	}
	fields := Fields{"subscription": upstreamID, "event_type": origin.eventType, "event_id": origin.eventID}

	sub, err := r.subs.GetByUpstreamID(ctx, upstreamID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		if origin.changedBy == models.ChangedByWebhook && !isCreationEventType(origin.eventType) {
			r.logger.Warn("subscription not found locally, skipping", fields)
			return &ReconcileResult{Skipped: true, SkipReason: skipUnknownSubscription}, nil
		}
		sub = &models.Subscription{UpstreamSubscriptionID: upstreamID}
		if err := r.assignOwner(ctx, sub, snap, origin); err != nil {
			return nil, err
		}
		created = true
	default:
		return nil, fmt.Errorf("load subscription %s: %w", upstreamID, err)
	}

	if !created && r.isStale(sub, snap) {
		fields["stored_updated_at"] = sub.UpstreamUpdatedAt
		fields["incoming_updated_at"] = snap.UpstreamUpdatedAt
		r.logger.Info("ignoring snapshot older than stored state", fields)
		return &ReconcileResult{Subscription: sub, Skipped: true, SkipReason: skipStaleSnapshot}, nil
	}

	var oldState *models.SubscriptionState
	if !created {
		st := sub.State()
		oldState = &st
	}
	newState := snap.State()
	newState.Status = normalizeStatus(newState.Status)
	sub.ApplyState(newState)
	if snap.UpstreamUpdatedAt != nil {
		t := *snap.UpstreamUpdatedAt
		sub.UpstreamUpdatedAt = &t
	}
	if sub.CustomerID == 0 && !created {
		r.attachCustomer(ctx, sub, snap.UpstreamCustomerID)
	}

	oldStatus := ""
	if oldState != nil {
		oldStatus = oldState.Status
	}
	changeType := classifyChange(origin.eventType, oldStatus, sub.Status, created)

	if err := r.subs.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subscription %s: %w", upstreamID, err)
	}

	entry := &models.SubscriptionHistory{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		ChangeType:     changeType,
		OldSnapshot:    oldState,
		NewSnapshot:    &newState,
		ChangedBy:      origin.changedBy,
		ActorUserID:    origin.actorUserID,
		Description:    describeChange(origin.eventType, changeType, oldStatus, sub.Status),
		EventID:        origin.eventID,
		CreatedAt:      r.clock.Now(),
	}
	if err := r.history.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history for %s: %w", upstreamID, err)
	}

	fields["change_type"] = changeType
	fields["status"] = sub.Status
	r.logger.Info("subscription reconciled", fields)

	if changeType == models.ChangeTypeCanceled {
		r.notifyCancellation(ctx, sub)
	}
	return &ReconcileResult{Subscription: sub, History: entry, ChangeType: changeType}, nil
}

// assignOwner sets tenant and customer on a new subscription row.
func (r *Reconciler) assignOwner(ctx context.Context, sub *models.Subscription, snap SubscriptionSnapshot, origin changeOrigin) error {
	sub.TenantID = snap.TenantID
	if origin.customer != nil {
		sub.CustomerID = origin.customer.ID
		if sub.TenantID == 0 {
			sub.TenantID = origin.customer.TenantID
		}
	}
	if sub.CustomerID == 0 && snap.UpstreamCustomerID != "" {
		c, err := r.customers.GetByUpstreamID(ctx, snap.UpstreamCustomerID)
		switch {
		case err == nil:
			sub.CustomerID = c.ID
			if sub.TenantID == 0 {
				sub.TenantID = c.TenantID
			}
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("load customer %s: %w", snap.UpstreamCustomerID, err)
		}
	}
	if sub.TenantID == 0 {
		return fmt.Errorf("%w: subscription %s", ErrMissingTenant, sub.UpstreamSubscriptionID)
	}
	if sub.CustomerID == 0 {
		if c, err := r.customers.GetByTenant(ctx, sub.TenantID); err == nil {
			sub.CustomerID = c.ID
		}
	}
	return nil
}

func (r *Reconciler) attachCustomer(ctx context.Context, sub *models.Subscription, upstreamCustomerID string) {
	if upstreamCustomerID == "" {
		return
	}
	if c, err := r.customers.GetByUpstreamID(ctx, upstreamCustomerID); err == nil && c.TenantID == sub.TenantID {
		sub.CustomerID = c.ID
	}
}

func (r *Reconciler) isStale(sub *models.Subscription, snap SubscriptionSnapshot) bool {
	if !r.cfg.RejectStaleSnapshots || sub.UpstreamUpdatedAt == nil || snap.UpstreamUpdatedAt == nil {
		return false
	}
	if sub.UpstreamUpdatedAt.IsZero() || snap.UpstreamUpdatedAt.IsZero() {
		return false
	}
	return snap.UpstreamUpdatedAt.Before(*sub.UpstreamUpdatedAt)
}

// notifyCancellation never fails the reconciliation; errors are logged.
func (r *Reconciler) notifyCancellation(ctx context.Context, sub *models.Subscription) {
	fields := Fields{"subscription": sub.UpstreamSubscriptionID, "tenant_id": sub.TenantID}
	if r.notifier == nil {
		r.logger.Debug("no email notifier configured, skipping cancellation notice", fields)
		return
	}

	var customer *models.Customer
	var err error
	if sub.CustomerID != 0 {
		customer, err = r.customers.GetByID(ctx, sub.CustomerID)
	} else {
		customer, err = r.customers.GetByTenant(ctx, sub.TenantID)
	}
	if err != nil {
		fields["error"] = err.Error()
		r.logger.Warn("no customer for cancellation notice", fields)
		return
	}
	if strings.TrimSpace(customer.Email) == "" {
		r.logger.Warn("customer has no email, skipping cancellation notice", fields)
		return
	}

	notice := CancellationNotice{
		TenantID:               sub.TenantID,
		Email:                  customer.Email,
		Name:                   customer.Name,
		UpstreamSubscriptionID: sub.UpstreamSubscriptionID,
		PlanID:                 sub.PlanID,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
	}
	if err := r.notifier.SendCancellationNotice(ctx, notice); err != nil {
		fields["error"] = err.Error()
		r.logger.Error("failed to send cancellation notice", fields)
	}
}

func describeChange(eventType, changeType, oldStatus, newStatus string) string {
	switch changeType {
	case models.ChangeTypeStatusChanged:
		return fmt.Sprintf("%s: status %s -> %s", eventType, oldStatus, newStatus)
	case models.ChangeTypeCreated:
		return fmt.Sprintf("%s: created with status %s", eventType, newStatus)
	case models.ChangeTypeCanceled:
		return fmt.Sprintf("%s: canceled", eventType)
	default:
		return fmt.Sprintf("%s: updated", eventType)
	}
}
