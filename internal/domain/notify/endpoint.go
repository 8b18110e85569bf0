package notify

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEndpoint is an outbound subscriber that receives platform events
// (purchase.completed, purchase.refunded, ...). Deliveries are best-effort.
type WebhookEndpoint struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	URL    string    `gorm:"not null" json:"url"`
	Secret string    `gorm:"not null" json:"-"`

	// Comma-separated event filter; empty subscribes to everything.
	Events string `json:"events"`

	Active bool `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *WebhookEndpoint) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return
}

// Subscribed reports whether the endpoint wants the given event name.
func (e *WebhookEndpoint) Subscribed(event string) bool {
	if strings.TrimSpace(e.Events) == "" {
		return true
	}
	for _, want := range strings.Split(e.Events, ",") {
		if strings.TrimSpace(want) == event {
			return true
		}
	}
	return false
}
