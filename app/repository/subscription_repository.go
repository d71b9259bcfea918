package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PawDesk/app/models"
	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) billing.SubscriptionStore {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByUpstreamID(ctx context.Context, upstreamSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("upstream_subscription_id = ?", upstreamSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// Save inserts new rows and overwrites every column of existing ones.
func (r *subscriptionRepository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) billing.HistoryStore {
	return &historyRepository{db: db}
}

func (r *historyRepository) Append(ctx context.Context, entry *models.SubscriptionHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *historyRepository) ListBySubscription(ctx context.Context, subscriptionID uint) ([]models.SubscriptionHistory, error) {
	var entries []models.SubscriptionHistory
	err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Order("id ASC").Find(&entries).Error
	return entries, err
}
