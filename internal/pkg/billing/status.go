package billing

import (
	"strings"

	"github.com/ManuelReschke/PawDesk/app/models"
)

var creationEventTypes = map[string]struct{}{
	"customer.subscription.created":           {},
	"subscription.created":                    {},
	"checkout.session.completed":              {},
	"checkout.session.async_payment_succeeded": {},
	"checkout.completed":                      {},
}

var cancellationEventTypes = map[string]struct{}{
	"customer.subscription.deleted": {},
	"subscription.deleted":          {},
	"subscription.canceled":         {},
}

func isCreationEventType(eventType string) bool {
	_, ok := creationEventTypes[eventType]
	return ok
}

func isCancellationEventType(eventType string) bool {
	_, ok := cancellationEventTypes[eventType]
	return ok
}

// classifyChange picks the history change type; the first matching rule wins.
func classifyChange(eventType, oldStatus, newStatus string, created bool) string {
	switch {
	case isCancellationEventType(eventType):
		return models.ChangeTypeCanceled
	case !created && oldStatus != newStatus:
		return models.ChangeTypeStatusChanged
	case created:
		return models.ChangeTypeCreated
	default:
		return models.ChangeTypeUpdated
	}
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case "cancelled":
		return models.SubscriptionStatusCanceled
	case "":
		return models.SubscriptionStatusIncomplete
	default:
		return s
	}
}
