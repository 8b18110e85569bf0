package stripewebhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v75"
)

func (h *Handler) handleDisputeCreated(ctx context.Context, event stripe.Event) (bool, string, error) {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return false, "", fmt.Errorf("parse dispute: %w", err)
	}

	paymentIntentID := ""
	if dispute.PaymentIntent != nil {
		paymentIntentID = dispute.PaymentIntent.ID
	}
	if paymentIntentID == "" {
		return false, "Dispute missing payment intent", nil
	}

	res, err := h.Purchases.Dispute(ctx, paymentIntentID, "", dispute.ID, string(dispute.Reason))
	if err != nil {
		return false, "", err
	}
	if !res.Found {
		return false, "No transaction for disputed payment intent " + paymentIntentID, nil
	}
	if res.AlreadyDone {
		return true, "Transaction already refunded or disputed", nil
	}

	if h.Notifier != nil {
		h.Notifier.Trigger(ctx, "purchase.disputed", map[string]interface{}{
			"session_id":     res.SessionID,
			"product_id":     res.ProductID.String(),
			"dispute_id":     dispute.ID,
			"dispute_reason": string(dispute.Reason),
			"access_revoked": res.AccessRevoked,
		})
	}
	return true, "Dispute recorded, access revoked", nil
}
