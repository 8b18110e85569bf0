package stripewebhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v75"
)

func (h *Handler) handleChargeRefunded(ctx context.Context, event stripe.Event) (bool, string, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return false, "", fmt.Errorf("parse charge: %w", err)
	}

	paymentIntentID := ""
	if charge.PaymentIntent != nil {
		paymentIntentID = charge.PaymentIntent.ID
	}
	if paymentIntentID == "" {
		return false, "Refunded charge missing payment intent", nil
	}

	res, err := h.Purchases.Refund(ctx, paymentIntentID, "")
	if err != nil {
		return false, "", err
	}
	if !res.Found {
		// Money already moved at the processor regardless; a missing
		// transaction is a data anomaly to investigate, not a retryable
		// failure.
		return false, "No transaction for refunded payment intent " + paymentIntentID, nil
	}
	if res.AlreadyDone {
		return true, "Transaction already refunded", nil
	}

	if h.Notifier != nil {
		h.Notifier.Trigger(ctx, "purchase.refunded", map[string]interface{}{
			"session_id":     res.SessionID,
			"product_id":     res.ProductID.String(),
			"access_revoked": res.AccessRevoked,
		})
	}
	return true, "Refund processed, access revoked", nil
}
