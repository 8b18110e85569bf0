package coupons

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotYetValid      = errors.New("coupon is not valid yet")
	ErrExpired          = errors.New("coupon has expired")
	ErrUsageLimit       = errors.New("coupon usage limit reached")
	ErrWrongProduct     = errors.New("coupon does not apply to this product")
	ErrInvalidDiscount  = errors.New("coupon has an invalid discount")
)

// NormalizeCode uppercases and trims a user-supplied coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks whether the coupon can be redeemed for the given product at
// the given time. It does not mutate usage counters.
func (cp *Coupon) Validate(productID uuid.UUID, now time.Time) error {
	if cp.ProductID != nil && *cp.ProductID != productID {
		return ErrWrongProduct
	}
	if cp.ValidFrom != nil && now.Before(*cp.ValidFrom) {
		return ErrNotYetValid
	}
	if cp.ExpiresAt != nil && now.After(*cp.ExpiresAt) {
		return ErrExpired
	}
	if cp.MaxUses > 0 && cp.UsedCount >= cp.MaxUses {
		return ErrUsageLimit
	}
	switch cp.DiscountType {
	case DiscountPercent:
		if cp.DiscountValue <= 0 || cp.DiscountValue > 100 {
			return ErrInvalidDiscount
		}
	case DiscountFixed:
		if cp.DiscountValue <= 0 {
			return ErrInvalidDiscount
		}
	default:
		return ErrInvalidDiscount
	}
	return nil
}

// Apply returns the discounted price in cents, floored at zero.
func (cp *Coupon) Apply(priceCents int64) int64 {
	var discounted int64
	switch cp.DiscountType {
	case DiscountPercent:
		discounted = priceCents - priceCents*cp.DiscountValue/100
	case DiscountFixed:
		discounted = priceCents - cp.DiscountValue
	default:
		return priceCents
	}
	if discounted < 0 {
		return 0
	}
	return discounted
}
