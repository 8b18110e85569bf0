package stripewebhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"gateflow/internal/infra/metrics"
	"gateflow/internal/purchases"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
)

const providerStripe = "stripe"

// EventStore is the idempotency boundary. Claim must be race-free: two
// near-simultaneous deliveries of the same event ID may yield at most one
// fresh claim.
type EventStore interface {
	Claim(ctx context.Context, provider, eventID, eventType string, payload []byte) (fresh bool, err error)
	MarkOutcome(ctx context.Context, provider, eventID string, processErr error) error
}

// PurchaseService is implemented by purchases.Service; tests substitute a fake.
type PurchaseService interface {
	Complete(ctx context.Context, in purchases.CompletionInput) (*purchases.CompletionResult, error)
	CompleteByPaymentIntent(ctx context.Context, paymentIntentID, customerEmail string, amountCents int64, currency string) (*purchases.CompletionResult, error)
	Refund(ctx context.Context, paymentIntentID, sessionID string) (*purchases.RevocationResult, error)
	Dispute(ctx context.Context, paymentIntentID, sessionID, disputeID, reason string) (*purchases.RevocationResult, error)
}

// Notifier dispatches best-effort outbound events; it must never block or
// fail the webhook response.
type Notifier interface {
	Trigger(ctx context.Context, event string, payload map[string]interface{})
}

// Handler ingests Stripe webhooks. Dependencies are injected once at startup;
// there is no package-level client state.
type Handler struct {
	Secret    string
	Events    EventStore
	Purchases PurchaseService
	Notifier  Notifier

	// SendMagicLink is invoked for purchases whose scenario requires a login
	// email. Wired to the auth emailer in production.
	SendMagicLink func(email, token string)

	// verify is swappable in tests; defaults to Stripe's constructor over the
	// raw, unparsed body bytes.
	verify func(payload []byte, sigHeader, secret string) (stripe.Event, error)
}

func NewHandler(secret string, events EventStore, svc PurchaseService, notifier Notifier, sendMagicLink func(email, token string)) *Handler {
	return &Handler{
		Secret:        secret,
		Events:        events,
		Purchases:     svc,
		Notifier:      notifier,
		SendMagicLink: sendMagicLink,
		verify: func(payload []byte, sigHeader, secret string) (stripe.Event, error) {
			return webhook.ConstructEventWithOptions(
				payload,
				sigHeader,
				secret,
				webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
			)
		},
	}
}

// Handle implements POST /webhooks/stripe. 400 is reserved for signature
// failures; everything after verification answers 200 so the processor does
// not retry deliveries that retrying cannot fix.
func (h *Handler) Handle(c *gin.Context) {
	payload, err := readBody(c, 65536)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := h.verify(payload, c.GetHeader("Stripe-Signature"), h.Secret)
	if err != nil {
		log.Warn().Err(err).Msg("stripe signature verification failed")
		metrics.IncWebhookEvent("unknown", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	eventType := string(event.Type)

	fresh, err := h.Events.Claim(c.Request.Context(), providerStripe, event.ID, eventType, payload)
	if err != nil {
		// Idempotency store down: still answer 200, which stops the processor
		// from redelivering. The payment reconciler re-checks the pending
		// session later, so the purchase is not lost with the delivery.
		log.Error().Err(err).Str("event_id", event.ID).Msg("idempotency claim failed")
		metrics.IncWebhookEvent(eventType, "failed")
		c.JSON(http.StatusOK, h.ack(event, false, "", "idempotency store unavailable"))
		return
	}
	if !fresh {
		metrics.IncWebhookEvent(eventType, "duplicate")
		c.JSON(http.StatusOK, h.ack(event, true, "Event already processed", ""))
		return
	}

	processed, message, perr := h.dispatch(c.Request.Context(), event)

	if err := h.Events.MarkOutcome(c.Request.Context(), providerStripe, event.ID, perr); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("failed to record event outcome")
	}

	if perr != nil {
		log.Error().Err(perr).
			Str("event_id", event.ID).
			Str("event_type", eventType).
			Msg("webhook handler failed")
		metrics.IncWebhookEvent(eventType, "failed")
		c.JSON(http.StatusOK, h.ack(event, false, "", perr.Error()))
		return
	}

	if processed {
		metrics.IncWebhookEvent(eventType, "processed")
	} else {
		metrics.IncWebhookEvent(eventType, "ignored")
	}
	c.JSON(http.StatusOK, h.ack(event, processed, message, ""))
}

// dispatch routes a verified event to its applier. Handler panics are
// converted to errors here so a bad payload can never take the endpoint down.
func (h *Handler) dispatch(ctx context.Context, event stripe.Event) (processed bool, message string, err error) {
	defer func() {
		if r := recover(); r != nil {
			processed = false
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	switch string(event.Type) {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, event)
	case "payment_intent.succeeded":
		return h.handlePaymentSucceeded(ctx, event)
	case "charge.refunded":
		return h.handleChargeRefunded(ctx, event)
	case "charge.dispute.created":
		return h.handleDisputeCreated(ctx, event)
	default:
		return true, "Unhandled event type: " + string(event.Type), nil
	}
}

func (h *Handler) ack(event stripe.Event, processed bool, message, errMsg string) gin.H {
	body := gin.H{
		"received":   true,
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"processed":  processed,
	}
	if message != "" {
		body["message"] = message
	}
	if errMsg != "" {
		body["error"] = errMsg
	}
	return body
}

func readBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}

// MethodNotAllowed answers non-POST requests on the webhook path.
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}
