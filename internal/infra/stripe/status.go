package stripe

import "strings"

// Stripe-ish normalization used ONLY for checkout session payment_status
func NormalizePaymentStatus(s string) string {
	switch strings.TrimSpace(s) {
	case "paid", "no_payment_required":
		return "paid"
	case "unpaid":
		return "unpaid"
	case "":
		return "none"
	default:
		return strings.TrimSpace(s)
	}
}

// MajorUnits converts a Stripe minor-unit amount (cents) to major units.
func MajorUnits(amountCents int64) float64 {
	return float64(amountCents) / 100.0
}
