package billing

import (
	"time"

	"gateflow/internal/domain/products"
	"gateflow/internal/domain/users"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
	StatusDisputed  = "disputed"
)

// Transaction is the aggregate root for one purchase attempt, 1:1 with a
// Stripe Checkout Session. Status moves pending -> completed -> refunded or
// disputed and never backwards; refunded/disputed are terminal.
type Transaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	SessionID string    `gorm:"not null;uniqueIndex:idx_transactions_session_id" json:"session_id"`

	ProductID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"product_id"`
	Product       *products.Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	BumpProductID *uuid.UUID        `gorm:"type:uuid" json:"bump_product_id,omitempty"`
	CouponID      *uuid.UUID        `gorm:"type:uuid" json:"coupon_id,omitempty"`

	CustomerEmail string      `gorm:"index" json:"customer_email"`
	UserID        *uint       `gorm:"index" json:"user_id,omitempty"` // nil for guest purchases
	User          *users.User `gorm:"foreignKey:UserID" json:"-"`

	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"type:varchar(3);not null" json:"currency"`
	Status      string `gorm:"type:varchar(12);not null;default:'pending';index" json:"status"`

	StripePaymentIntentID *string `gorm:"column:stripe_payment_intent_id;index" json:"stripe_payment_intent_id,omitempty"`

	// Filled by the dispute applier for manual review.
	DisputeID     *string `gorm:"column:dispute_id" json:"dispute_id,omitempty"`
	DisputeReason *string `gorm:"column:dispute_reason" json:"dispute_reason,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	DisputedAt  *time.Time `json:"disputed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

// Terminal reports whether the transaction can no longer change state.
func (t *Transaction) Terminal() bool {
	return t.Status == StatusRefunded || t.Status == StatusDisputed
}
