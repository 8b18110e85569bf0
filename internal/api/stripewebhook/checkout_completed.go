package stripewebhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gateflow/internal/purchases"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v75"
)

func (h *Handler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) (bool, string, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return false, "", fmt.Errorf("parse checkout session: %w", err)
	}

	in, err := completionInputFromSession(&session)
	if err != nil {
		// Payload lacks the identifiers needed to act; retried delivery
		// carries the same payload, so acknowledge and log.
		return false, err.Error(), nil
	}

	res, err := h.Purchases.Complete(ctx, in)
	if errors.Is(err, purchases.ErrMissingCustomer) {
		return false, "Checkout session missing customer email", nil
	}
	if err != nil {
		return false, "", err
	}

	return true, h.finishCompletion(ctx, res, in.SessionID), nil
}

// finishCompletion runs the post-commit side channel: magic-link email and
// outbound notifications. Both are best-effort and never affect the already
// committed purchase.
func (h *Handler) finishCompletion(ctx context.Context, res *purchases.CompletionResult, sessionID string) string {
	if res.AlreadyProcessed {
		return "Purchase already processed"
	}

	if res.RequiresLogin && res.MagicLinkToken != "" && h.SendMagicLink != nil {
		h.SendMagicLink(res.CustomerEmail, res.MagicLinkToken)
	}

	if h.Notifier != nil {
		h.Notifier.Trigger(ctx, "purchase.completed", map[string]interface{}{
			"session_id":     sessionID,
			"scenario":       res.Scenario,
			"user_id":        res.UserID,
			"customer_email": res.CustomerEmail,
			"access_granted": res.AccessGranted,
		})
	}
	return "Purchase completed"
}

// completionInputFromSession maps a Checkout Session and its metadata to the
// completion applier's input.
func completionInputFromSession(session *stripe.CheckoutSession) (purchases.CompletionInput, error) {
	in := purchases.CompletionInput{
		SessionID:   session.ID,
		AmountCents: session.AmountTotal,
		Currency:    string(session.Currency),
	}

	if session.ID == "" {
		return in, errors.New("checkout session missing id")
	}

	productIDStr := session.Metadata["product_id"]
	if productIDStr == "" {
		return in, errors.New("checkout session missing product_id metadata")
	}
	productID, err := uuid.Parse(productIDStr)
	if err != nil {
		return in, fmt.Errorf("invalid product_id metadata %q", productIDStr)
	}
	in.ProductID = productID

	if raw := session.Metadata["bump_product_id"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return in, fmt.Errorf("invalid bump_product_id metadata %q", raw)
		}
		in.BumpProductID = &id
	}
	if raw := session.Metadata["coupon_id"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return in, fmt.Errorf("invalid coupon_id metadata %q", raw)
		}
		in.CouponID = &id
	}

	if raw := userIDFromSessionOrRef(session); raw != "" {
		uid64, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return in, fmt.Errorf("invalid user_id %q", raw)
		}
		uid := uint(uid64)
		in.UserID = &uid
	}

	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		in.CustomerEmail = session.CustomerDetails.Email
	} else {
		in.CustomerEmail = session.CustomerEmail
	}

	if session.PaymentIntent != nil {
		in.PaymentIntentID = session.PaymentIntent.ID
	}

	return in, nil
}

// Identify user: metadata.user_id preferred, else ClientReferenceID
func userIDFromSessionOrRef(session *stripe.CheckoutSession) string {
	if session.Metadata != nil && session.Metadata["user_id"] != "" {
		return session.Metadata["user_id"]
	}
	return session.ClientReferenceID
}
