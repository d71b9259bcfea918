package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

// Repositories holds the gorm-backed billing stores.
type Repositories struct {
	Events        billing.EventStore
	Subscriptions billing.SubscriptionStore
	History       billing.HistoryStore
	Customers     billing.CustomerStore
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB, provider string) *Repositories {
	return &Repositories{
		Events:        NewEventRepository(db, provider),
		Subscriptions: NewSubscriptionRepository(db),
		History:       NewHistoryRepository(db),
		Customers:     NewCustomerRepository(db),
	}
}

// translate maps gorm's not-found error onto billing.ErrNotFound.
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return billing.ErrNotFound
	}
	return err
}
