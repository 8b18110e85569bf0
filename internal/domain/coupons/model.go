package coupons

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// Coupon codes are case-insensitive and stored uppercase. ProductID nil means
// the coupon applies to every product.
type Coupon struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Code          string     `gorm:"not null;uniqueIndex:idx_coupons_code" json:"code"`
	ProductID     *uuid.UUID `gorm:"type:uuid;index" json:"product_id,omitempty"`
	DiscountType  string     `gorm:"type:varchar(10);not null" json:"discount_type"`
	DiscountValue int64      `gorm:"not null" json:"discount_value"`

	MaxUses   int `gorm:"not null;default:0" json:"max_uses"` // 0 = unlimited
	UsedCount int `gorm:"not null;default:0" json:"used_count"`

	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// OneTime marks post-purchase OTO coupons generated by the platform.
	OneTime bool `gorm:"not null;default:false" json:"one_time"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (cp *Coupon) BeforeCreate(tx *gorm.DB) (err error) {
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	return
}
