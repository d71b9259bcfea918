package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/PawDesk/app/models"
	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

const maxProcessingErrorLen = 2000

// eventRepository implements billing.EventStore. The unique index on
// (provider, event_id) and the conditional claim update are the only
// concurrency control for event handling.
type eventRepository struct {
	db       *gorm.DB
	provider string
}

// NewEventRepository creates an event store scoped to one provider.
func NewEventRepository(db *gorm.DB, provider string) billing.EventStore {
	return &eventRepository{db: db, provider: provider}
}

func (r *eventRepository) scoped(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.ProviderEvent{}).Where("provider = ?", r.provider)
}

func (r *eventRepository) ExistsAndProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.scoped(ctx).Where("event_id = ? AND processed = ?", eventID, true).Count(&count).Error
	return count > 0, err
}

func (r *eventRepository) InsertIfAbsent(ctx context.Context, event *models.ProviderEvent) (bool, error) {
	event.Provider = r.provider
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *eventRepository) Claim(ctx context.Context, eventID string, now, staleBefore time.Time) (bool, error) {
	tx := r.scoped(ctx).
		Where("event_id = ? AND processed = ? AND (claimed_at IS NULL OR claimed_at < ?)", eventID, false, staleBefore).
		Updates(map[string]interface{}{
			"claimed_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *eventRepository) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	return r.scoped(ctx).Where("event_id = ?", eventID).Updates(map[string]interface{}{
		"processed":        true,
		"processed_at":     at,
		"claimed_at":       nil,
		"processing_error": "",
	}).Error
}

func (r *eventRepository) Release(ctx context.Context, eventID string, processingErr error) error {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
		if len(msg) > maxProcessingErrorLen {
			msg = msg[:maxProcessingErrorLen]
		}
	}
	return r.scoped(ctx).Where("event_id = ? AND processed = ?", eventID, false).Updates(map[string]interface{}{
		"claimed_at":       nil,
		"processing_error": msg,
	}).Error
}

func (r *eventRepository) Get(ctx context.Context, eventID string) (*models.ProviderEvent, error) {
	var ev models.ProviderEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND event_id = ?", r.provider, eventID).First(&ev).Error; err != nil {
		return nil, translate(err)
	}
	return &ev, nil
}

func (r *eventRepository) ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]models.ProviderEvent, error) {
	var events []models.ProviderEvent
	q := r.db.WithContext(ctx).
		Where("provider = ? AND processed = ? AND created_at <= ?", r.provider, false, createdBefore).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}
