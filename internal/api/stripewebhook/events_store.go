package stripewebhooks

import (
	"context"
	"time"

	"gateflow/internal/domain/billing"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormEventStore claims events by inserting against the unique
// (provider, provider_event_id) index with ON CONFLICT DO NOTHING. Zero rows
// affected means another delivery got there first, which closes the
// check-then-act race without any extra locking.
type gormEventStore struct {
	db *gorm.DB
}

func NewGormEventStore(db *gorm.DB) EventStore {
	return &gormEventStore{db: db}
}

func (s *gormEventStore) Claim(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error) {
	rec := billing.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *gormEventStore) MarkOutcome(ctx context.Context, provider, eventID string, processErr error) error {
	now := time.Now()
	updates := map[string]interface{}{"processed_at": &now}
	if processErr != nil {
		updates["processing_error"] = processErr.Error()
	}
	return s.db.WithContext(ctx).
		Model(&billing.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Updates(updates).Error
}
