package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PawDesk/app/models"
)

func snapshot(id, status string) SubscriptionSnapshot {
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return SubscriptionSnapshot{
		UpstreamSubscriptionID: id,
		UpstreamCustomerID:     "cus_1",
		Status:                 status,
		PlanID:                 "price_pro",
		Amount:                 3000,
		Currency:               "USD",
		CurrentPeriodEnd:       &end,
		Metadata:               map[string]string{"seats": "3"},
	}
}

func TestClassifyChange(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		oldStatus string
		newStatus string
		created   bool
		want      string
	}{
		{name: "cancellation wins over status change", eventType: "customer.subscription.deleted", oldStatus: "active", newStatus: "canceled", want: models.ChangeTypeCanceled},
		{name: "cancellation of new record", eventType: "subscription.canceled", newStatus: "canceled", created: true, want: models.ChangeTypeCanceled},
		{name: "status change", eventType: "customer.subscription.updated", oldStatus: "active", newStatus: "past_due", want: models.ChangeTypeStatusChanged},
		{name: "new record", eventType: "customer.subscription.created", newStatus: "active", created: true, want: models.ChangeTypeCreated},
		{name: "plain update", eventType: "customer.subscription.updated", oldStatus: "active", newStatus: "active", want: models.ChangeTypeUpdated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyChange(tt.eventType, tt.oldStatus, tt.newStatus, tt.created))
		})
	}
}

func TestReconcileOverwritesAllMirroredFields(t *testing.T) {
	h := newHarness()
	h.subs.seed(models.Subscription{
		TenantID:               7,
		UpstreamSubscriptionID: "sub_1",
		Status:                 models.SubscriptionStatusActive,
		PlanID:                 "price_old",
		Amount:                 100,
		Currency:               "eur",
		CancelAtPeriodEnd:      true,
		Metadata:               map[string]string{"legacy": "1"},
	})

	snap := snapshot("sub_1", "active")
	res, err := h.engine.Reconciler.Reconcile(context.Background(), snap, "customer.subscription.updated")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeTypeUpdated, res.ChangeType)

	sub, err := h.subs.GetByUpstreamID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "price_pro", sub.PlanID)
	assert.Equal(t, int64(3000), sub.Amount)
	assert.Equal(t, "usd", sub.Currency)
	assert.False(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, snap.CurrentPeriodEnd, sub.CurrentPeriodEnd)
	assert.Equal(t, map[string]string{"seats": "3"}, sub.Metadata)

	entries := h.history.all()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].OldSnapshot)
	assert.Equal(t, "price_old", entries[0].OldSnapshot.PlanID)
	assert.Equal(t, "price_pro", entries[0].NewSnapshot.PlanID)
	assert.Equal(t, models.ChangedByWebhook, entries[0].ChangedBy)
	assert.Nil(t, entries[0].ActorUserID)
}

func TestReconcileSkipsUnknownSubscriptionOnUpdate(t *testing.T) {
	h := newHarness()

	res, err := h.engine.Reconciler.Reconcile(context.Background(), snapshot("sub_missing", "active"), "customer.subscription.updated")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, h.history.all())
	assert.Equal(t, 0, h.subs.saves)
	assert.True(t, h.logger.has("warn", "subscription not found locally, skipping"))
}

func TestReconcileCreatesSubscriptionFromCustomerMapping(t *testing.T) {
	h := newHarness()
	c := h.customers.seed(11, "cus_1", "owner@clinic.test")

	res, err := h.engine.Reconciler.Reconcile(context.Background(), snapshot("sub_new", "trialing"), "customer.subscription.created")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeTypeCreated, res.ChangeType)
	assert.Equal(t, uint(11), res.Subscription.TenantID)
	assert.Equal(t, c.ID, res.Subscription.CustomerID)
	assert.Nil(t, res.History.OldSnapshot)
}

func TestReconcileCreationWithoutTenantFails(t *testing.T) {
	h := newHarness()
	snap := snapshot("sub_orphan", "active")
	snap.UpstreamCustomerID = "cus_unknown"

	_, err := h.engine.Reconciler.Reconcile(context.Background(), snap, "customer.subscription.created")
	assert.ErrorIs(t, err, ErrMissingTenant)
	assert.Empty(t, h.history.all())
}

func TestReconcileCancellationNotifiesAndSurvivesNotifierFailure(t *testing.T) {
	h := newHarness()
	c := h.customers.seed(7, "cus_1", "owner@clinic.test")
	h.subs.seed(models.Subscription{
		TenantID:               7,
		CustomerID:             c.ID,
		UpstreamSubscriptionID: "sub_1",
		Status:                 models.SubscriptionStatusActive,
	})
	h.notifier.err = errBoom

	res, err := h.engine.Reconciler.Reconcile(context.Background(), snapshot("sub_1", "canceled"), "customer.subscription.deleted")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeTypeCanceled, res.ChangeType)
	assert.Equal(t, models.SubscriptionStatusCanceled, res.Subscription.Status)

	require.Len(t, h.notifier.notices, 1)
	assert.Equal(t, "owner@clinic.test", h.notifier.notices[0].Email)
	assert.True(t, h.logger.has("error", "failed to send cancellation notice"))
}

func TestReconcileRejectsStaleSnapshot(t *testing.T) {
	h := newHarness()
	newer := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)
	h.subs.seed(models.Subscription{
		TenantID:               7,
		UpstreamSubscriptionID: "sub_1",
		Status:                 models.SubscriptionStatusCanceled,
		UpstreamUpdatedAt:      &newer,
	})

	snap := snapshot("sub_1", "active")
	snap.UpstreamUpdatedAt = &older
	res, err := h.engine.Reconciler.Reconcile(context.Background(), snap, "customer.subscription.updated")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, skipStaleSnapshot, res.SkipReason)
	assert.Empty(t, h.history.all())

	sub, err := h.subs.GetByUpstreamID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
}

func TestReconcileStaleGuardCanBeDisabled(t *testing.T) {
	h := newHarness(func(d *Deps) { d.Config.RejectStaleSnapshots = false })
	newer := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)
	h.subs.seed(models.Subscription{
		TenantID:               7,
		UpstreamSubscriptionID: "sub_1",
		Status:                 models.SubscriptionStatusCanceled,
		UpstreamUpdatedAt:      &newer,
	})

	snap := snapshot("sub_1", "active")
	snap.UpstreamUpdatedAt = &older
	res, err := h.engine.Reconciler.Reconcile(context.Background(), snap, "customer.subscription.updated")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, models.ChangeTypeStatusChanged, res.ChangeType)
}

func TestResyncRecordsOperator(t *testing.T) {
	h := newHarness()
	h.subs.seed(models.Subscription{TenantID: 7, UpstreamSubscriptionID: "sub_1", Status: models.SubscriptionStatusPastDue})
	live := snapshot("sub_1", "active")
	h.provider.subscriptions["sub_1"] = &live
	actor := uint(99)

	res, err := h.engine.Reconciler.Resync(context.Background(), "sub_1", &actor)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeTypeStatusChanged, res.ChangeType)
	assert.Equal(t, models.ChangedByAPI, res.History.ChangedBy)
	require.NotNil(t, res.History.ActorUserID)
	assert.Equal(t, uint(99), *res.History.ActorUserID)

	_, err = h.engine.Reconciler.Resync(context.Background(), "sub_gone", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
