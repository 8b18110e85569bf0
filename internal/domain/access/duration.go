package access

import "time"

// ResolveDuration picks the access duration in days for a purchased product:
// a bump-level override wins over the product's own setting. 0 means
// unlimited access.
func ResolveDuration(productDays int, bumpOverride *int) int {
	if bumpOverride != nil {
		return *bumpOverride
	}
	return productDays
}

// ExpiryFrom converts a duration in days to an absolute expiry. A zero or
// negative duration yields nil (unlimited).
func ExpiryFrom(now time.Time, durationDays int) *time.Time {
	if durationDays <= 0 {
		return nil
	}
	t := now.AddDate(0, 0, durationDays)
	return &t
}
