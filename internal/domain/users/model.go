package users

import (
	"time"
)

type User struct {
	ID           uint `gorm:"primaryKey"`
	Name         string
	Email        string  `gorm:"not null;uniqueIndex:idx_users_email"`
	Password     *string `gorm:""`
	AuthProvider string  `gorm:"type:varchar(20);not null;default:'local'"` // local | google | magic
	GoogleSub    *string `gorm:"uniqueIndex:idx_users_google_sub"`
	Role         string

	StripeCustomerID *string `gorm:"column:stripe_customer_id;uniqueIndex:idx_users_stripe_customer_id"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MagicLinkToken is a single-use login token mailed to guest purchasers and
// to existing customers who bought while logged out.
type MagicLinkToken struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"not null;index"`
	User      User
	Token     string `gorm:"not null;uniqueIndex:idx_magic_tokens_token"`
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
