package access

import (
	"time"

	"gateflow/internal/domain/products"
	"gateflow/internal/domain/users"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Grant is a user's entitlement to a product. It is derived state: created
// when the owning Transaction completes and hard-deleted when that
// Transaction is refunded or disputed. Revocation is immediate and
// destructive on purpose.
type Grant struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_grants_user_product,priority:1" json:"user_id"`
	User      *users.User `gorm:"foreignKey:UserID" json:"-"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_grants_user_product,priority:2" json:"product_id"`
	Product   *products.Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"` // nil = unlimited
	DurationDays int        `json:"duration_days"`

	// Session that paid for the grant; empty for manual admin grants.
	SourceSessionID string `json:"source_session_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Grant) BeforeCreate(tx *gorm.DB) (err error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return
}

// Expired reports whether a time-boxed grant has lapsed.
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}
