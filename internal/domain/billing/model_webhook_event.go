package billing

import "time"

// WebhookEvent is the idempotency record for inbound provider webhooks, keyed
// by the provider's globally unique event ID. The unique index is what closes
// the duplicate-delivery race: claiming an event is an insert, not a
// check-then-act.
type WebhookEvent struct {
	ID              uint   `gorm:"primaryKey"`
	Provider        string `gorm:"type:varchar(20);not null;uniqueIndex:idx_webhook_events_provider_event,priority:1"`
	ProviderEventID string `gorm:"type:varchar(191);not null;uniqueIndex:idx_webhook_events_provider_event,priority:2"`
	EventType       string `gorm:"type:varchar(100);not null;index"`
	PayloadJSON     string `gorm:"type:text"`
	ProcessedAt     *time.Time
	ProcessingError string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
