package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/PawDesk/app/models"
	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProviderEvent{},
		&models.Subscription{},
		&models.SubscriptionHistory{},
		&models.Customer{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestEventRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(newTestDB(t), models.ProviderStripe)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	created, err := repo.InsertIfAbsent(ctx, &models.ProviderEvent{
		EventID:     "evt_1",
		EventType:   "customer.subscription.updated",
		PayloadJSON: `{"id":"evt_1"}`,
		ClaimedAt:   &now,
		Attempts:    1,
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.InsertIfAbsent(ctx, &models.ProviderEvent{
		EventID:     "evt_1",
		EventType:   "customer.subscription.updated",
		PayloadJSON: `{"id":"evt_1"}`,
	})
	require.NoError(t, err)
	assert.False(t, created)

	claimed, err := repo.Claim(ctx, "evt_1", now.Add(time.Minute), now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed, "fresh claim must block a second handler")

	require.NoError(t, repo.Release(ctx, "evt_1", errors.New("provider timeout")))
	ev, err := repo.Get(ctx, "evt_1")
	require.NoError(t, err)
	assert.Nil(t, ev.ClaimedAt)
	assert.Equal(t, "provider timeout", ev.ProcessingError)

	claimed, err = repo.Claim(ctx, "evt_1", now.Add(time.Minute), now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)

	processed, err := repo.ExistsAndProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, repo.MarkProcessed(ctx, "evt_1", now.Add(2*time.Minute)))
	processed, err = repo.ExistsAndProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)

	ev, err = repo.Get(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, 2, ev.Attempts)
	assert.Empty(t, ev.ProcessingError)
	require.NotNil(t, ev.ProcessedAt)

	claimed, err = repo.Claim(ctx, "evt_1", now.Add(time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed, "processed events are never claimed again")

	_, err = repo.Get(ctx, "evt_missing")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestEventRepositoryStaleClaimCanBeTakenOver(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(newTestDB(t), models.ProviderStripe)
	claimedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.InsertIfAbsent(ctx, &models.ProviderEvent{EventID: "evt_s", EventType: "x", PayloadJSON: "{}", ClaimedAt: &claimedAt})
	require.NoError(t, err)

	claimed, err := repo.Claim(ctx, "evt_s", claimedAt.Add(10*time.Minute), claimedAt.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestEventRepositoryListUnprocessed(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(newTestDB(t), models.ProviderStripe)

	for _, id := range []string{"evt_a", "evt_b", "evt_c"} {
		_, err := repo.InsertIfAbsent(ctx, &models.ProviderEvent{EventID: id, EventType: "x", PayloadJSON: "{}"})
		require.NoError(t, err)
	}
	require.NoError(t, repo.MarkProcessed(ctx, "evt_b", time.Now()))

	pending, err := repo.ListUnprocessed(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "evt_a", pending[0].EventID)
	assert.Equal(t, "evt_c", pending[1].EventID)

	pending, err = repo.ListUnprocessed(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubscriptionAndHistoryRepositories(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	subs := NewSubscriptionRepository(db)
	history := NewHistoryRepository(db)

	_, err := subs.GetByUpstreamID(ctx, "sub_1")
	assert.ErrorIs(t, err, billing.ErrNotFound)

	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		TenantID:               3,
		UpstreamSubscriptionID: "sub_1",
		Status:                 models.SubscriptionStatusActive,
		PlanID:                 "price_pro",
		Amount:                 3000,
		Currency:               "usd",
		CurrentPeriodEnd:       &end,
		Metadata:               map[string]string{"seats": "2"},
	}
	require.NoError(t, subs.Save(ctx, sub))
	require.NotZero(t, sub.ID)

	sub.Status = models.SubscriptionStatusPastDue
	require.NoError(t, subs.Save(ctx, sub))

	stored, err := subs.GetByUpstreamID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)
	assert.Equal(t, models.SubscriptionStatusPastDue, stored.Status)
	assert.Equal(t, map[string]string{"seats": "2"}, stored.Metadata)

	old := models.SubscriptionState{Status: models.SubscriptionStatusActive}
	next := stored.State()
	require.NoError(t, history.Append(ctx, &models.SubscriptionHistory{
		SubscriptionID: stored.ID,
		TenantID:       3,
		ChangeType:     models.ChangeTypeStatusChanged,
		OldSnapshot:    &old,
		NewSnapshot:    &next,
		ChangedBy:      models.ChangedByWebhook,
		EventID:        "evt_1",
	}))

	entries, err := history.ListBySubscription(ctx, stored.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].OldSnapshot)
	assert.Equal(t, models.SubscriptionStatusActive, entries[0].OldSnapshot.Status)
	assert.Equal(t, models.SubscriptionStatusPastDue, entries[0].NewSnapshot.Status)
	assert.Nil(t, entries[0].ActorUserID)
}

func TestCustomerRepositorySoftDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(newTestDB(t))

	upstream := "cus_placeholder"
	old := &models.Customer{TenantID: 9, UpstreamCustomerID: &upstream, Email: "a@b.test"}
	require.NoError(t, repo.Create(ctx, old))

	found, err := repo.GetByTenant(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, old.ID, found.ID)

	require.NoError(t, repo.SoftDelete(ctx, old.ID))
	_, err = repo.GetByTenant(ctx, 9)
	assert.ErrorIs(t, err, billing.ErrNotFound)
	_, err = repo.GetByUpstreamID(ctx, upstream)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	fresh := "cus_real"
	replacement := &models.Customer{TenantID: 9, UpstreamCustomerID: &fresh}
	require.NoError(t, repo.Create(ctx, replacement))

	found, err = repo.GetByTenant(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, found.ID)
	found, err = repo.GetByID(ctx, replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_real", found.UpstreamID())
}

func TestFactoryReturnsSameRepositories(t *testing.T) {
	f := NewFactory(newTestDB(t), models.ProviderStripe)
	first := f.GetRepositories()
	assert.Same(t, first, f.GetRepositories())
	assert.NotNil(t, first.Events)
	assert.NotNil(t, first.Customers)
}
