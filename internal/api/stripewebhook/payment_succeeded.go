package stripewebhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gateflow/internal/purchases"

	"github.com/stripe/stripe-go/v75"
)

func (h *Handler) handlePaymentSucceeded(ctx context.Context, event stripe.Event) (bool, string, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return false, "", fmt.Errorf("parse payment intent: %w", err)
	}
	if pi.ID == "" {
		return false, "Payment intent missing id", nil
	}

	res, err := h.Purchases.CompleteByPaymentIntent(ctx, pi.ID, pi.ReceiptEmail, pi.Amount, string(pi.Currency))
	if errors.Is(err, purchases.ErrNotFound) {
		// The session-completed event usually lands first and records the
		// payment intent; with no transaction to attach to there is nothing
		// to do here.
		return false, "No transaction for payment intent " + pi.ID, nil
	}
	if errors.Is(err, purchases.ErrMissingCustomer) {
		return false, "Payment intent missing customer email", nil
	}
	if err != nil {
		return false, "", err
	}

	return true, h.finishCompletion(ctx, res, res.SessionID), nil
}
