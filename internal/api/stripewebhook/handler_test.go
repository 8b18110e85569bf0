package stripewebhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gateflow/internal/purchases"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const testSecret = "whsec_test_secret"

// --- Fakes ---

type fakeEventStore struct {
	mu         sync.Mutex
	claimed    map[string]bool
	claimCalls int
	claimErr   error
	outcomes   map[string]error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{claimed: map[string]bool{}, outcomes: map[string]error{}}
}

func (s *fakeEventStore) Claim(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	if s.claimErr != nil {
		return false, s.claimErr
	}
	if s.claimed[provider+":"+eventID] {
		return false, nil
	}
	s.claimed[provider+":"+eventID] = true
	return true, nil
}

func (s *fakeEventStore) MarkOutcome(ctx context.Context, provider, eventID string, processErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[provider+":"+eventID] = processErr
	return nil
}

type fakePurchases struct {
	mu              sync.Mutex
	completeCalls   int
	completeInputs  []purchases.CompletionInput
	completeResult  *purchases.CompletionResult
	completeErr     error
	refundCalls     int
	refundResult    *purchases.RevocationResult
	refundErr       error
	disputeCalls    int
	disputeResult   *purchases.RevocationResult
	byIntentCalls   int
	byIntentResult  *purchases.CompletionResult
	byIntentErr     error
	lastIntentID    string
	lastRefundPI    string
	lastDisputeID   string
	lastDisputeWhy  string
}

func (f *fakePurchases) Complete(ctx context.Context, in purchases.CompletionInput) (*purchases.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	f.completeInputs = append(f.completeInputs, in)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if f.completeResult != nil {
		return f.completeResult, nil
	}
	return &purchases.CompletionResult{SessionID: in.SessionID, Scenario: purchases.ScenarioLoggedIn, AccessGranted: true}, nil
}

func (f *fakePurchases) CompleteByPaymentIntent(ctx context.Context, paymentIntentID, customerEmail string, amountCents int64, currency string) (*purchases.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIntentCalls++
	f.lastIntentID = paymentIntentID
	if f.byIntentErr != nil {
		return nil, f.byIntentErr
	}
	if f.byIntentResult != nil {
		return f.byIntentResult, nil
	}
	return &purchases.CompletionResult{SessionID: "cs_from_pi", Scenario: purchases.ScenarioLoggedIn, AccessGranted: true}, nil
}

func (f *fakePurchases) Refund(ctx context.Context, paymentIntentID, sessionID string) (*purchases.RevocationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	f.lastRefundPI = paymentIntentID
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	if f.refundResult != nil {
		return f.refundResult, nil
	}
	return &purchases.RevocationResult{Found: true, AccessRevoked: true, SessionID: "cs_1"}, nil
}

func (f *fakePurchases) Dispute(ctx context.Context, paymentIntentID, sessionID, disputeID, reason string) (*purchases.RevocationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disputeCalls++
	f.lastDisputeID = disputeID
	f.lastDisputeWhy = reason
	if f.disputeResult != nil {
		return f.disputeResult, nil
	}
	return &purchases.RevocationResult{Found: true, AccessRevoked: true, SessionID: "cs_1"}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Trigger(ctx context.Context, event string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

// --- Helpers ---

func signPayload(t *testing.T, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventJSON(t *testing.T, id, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": eventType,
		"data": map[string]interface{}{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func postWebhook(h *Handler, payload []byte, sig string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/stripe", h.Handle)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", sig)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeAck(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func newTestHandler(store *fakeEventStore, svc *fakePurchases, n *fakeNotifier) *Handler {
	return NewHandler(testSecret, store, svc, n, nil)
}

// --- Tests ---

func TestHandleRejectsBadSignature(t *testing.T) {
	store := newFakeEventStore()
	svc := &fakePurchases{}
	h := newTestHandler(store, svc, nil)

	payload := eventJSON(t, "evt_sig", "checkout.session.completed", map[string]interface{}{"id": "cs_1"})
	sig := signPayload(t, payload)

	// Tamper with the payload after signing.
	tampered := []byte(strings.Replace(string(payload), "cs_1", "cs_2", 1))

	rr := postWebhook(h, tampered, sig)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if store.claimCalls != 0 {
		t.Errorf("event store touched %d times on bad signature, want 0", store.claimCalls)
	}
	if svc.completeCalls != 0 {
		t.Errorf("purchase service called on bad signature")
	}
}

func TestHandleMissingSignatureHeader(t *testing.T) {
	store := newFakeEventStore()
	h := newTestHandler(store, &fakePurchases{}, nil)

	payload := eventJSON(t, "evt_nosig", "checkout.session.completed", map[string]interface{}{"id": "cs_1"})
	rr := postWebhook(h, payload, "")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if store.claimCalls != 0 {
		t.Errorf("event store touched on missing signature")
	}
}

func TestHandleCheckoutCompleted(t *testing.T) {
	productID := uuid.New()

	session := map[string]interface{}{
		"id":           "cs_ok",
		"amount_total": 2900,
		"currency":     "usd",
		"metadata":     map[string]string{"product_id": productID.String(), "user_id": "7"},
		"customer_details": map[string]interface{}{
			"email": "buyer@example.com",
		},
		"payment_intent": map[string]interface{}{"id": "pi_1"},
	}

	t.Run("grants access and notifies", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{}
		notifier := &fakeNotifier{}
		h := newTestHandler(store, svc, notifier)

		payload := eventJSON(t, "evt_ok", "checkout.session.completed", session)
		rr := postWebhook(h, payload, signPayload(t, payload))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		body := decodeAck(t, rr)
		if body["processed"] != true {
			t.Errorf("processed = %v, want true", body["processed"])
		}
		if svc.completeCalls != 1 {
			t.Fatalf("Complete calls = %d, want 1", svc.completeCalls)
		}
		in := svc.completeInputs[0]
		if in.SessionID != "cs_ok" || in.ProductID != productID {
			t.Errorf("unexpected completion input %+v", in)
		}
		if in.UserID == nil || *in.UserID != 7 {
			t.Errorf("user id not extracted from metadata: %+v", in.UserID)
		}
		if in.CustomerEmail != "buyer@example.com" {
			t.Errorf("email = %q", in.CustomerEmail)
		}
		if in.PaymentIntentID != "pi_1" {
			t.Errorf("payment intent = %q", in.PaymentIntentID)
		}
		if len(notifier.events) != 1 || notifier.events[0] != "purchase.completed" {
			t.Errorf("notifier events = %v", notifier.events)
		}
	})

	t.Run("duplicate event short-circuits", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{}
		h := newTestHandler(store, svc, nil)

		payload := eventJSON(t, "evt_dup", "checkout.session.completed", session)
		sig := signPayload(t, payload)

		first := postWebhook(h, payload, sig)
		second := postWebhook(h, payload, sig)

		if first.Code != http.StatusOK || second.Code != http.StatusOK {
			t.Fatalf("statuses = %d, %d, want 200, 200", first.Code, second.Code)
		}
		if svc.completeCalls != 1 {
			t.Errorf("Complete calls = %d, want 1 (duplicate must not re-run)", svc.completeCalls)
		}
		body := decodeAck(t, second)
		if body["processed"] != true || body["message"] != "Event already processed" {
			t.Errorf("duplicate ack = %v", body)
		}
	})

	t.Run("missing customer acks without processing", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{completeErr: purchases.ErrMissingCustomer}
		h := newTestHandler(store, svc, nil)

		payload := eventJSON(t, "evt_nocust", "checkout.session.completed", session)
		rr := postWebhook(h, payload, signPayload(t, payload))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		body := decodeAck(t, rr)
		if body["processed"] != false {
			t.Errorf("processed = %v, want false", body["processed"])
		}
	})

	t.Run("magic link sent for scenarios that need login", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{completeResult: &purchases.CompletionResult{
			SessionID:      "cs_ok",
			Scenario:       purchases.ScenarioGuestNew,
			AccessGranted:  true,
			RequiresLogin:  true,
			CustomerEmail:  "buyer@example.com",
			MagicLinkToken: "tok123",
		}}
		var sentTo, sentToken string
		h := NewHandler(testSecret, store, svc, nil, func(email, token string) {
			sentTo, sentToken = email, token
		})

		payload := eventJSON(t, "evt_magic", "checkout.session.completed", session)
		postWebhook(h, payload, signPayload(t, payload))

		if sentTo != "buyer@example.com" || sentToken != "tok123" {
			t.Errorf("magic link sent to %q token %q", sentTo, sentToken)
		}
	})
}

func TestHandleMissingProductMetadata(t *testing.T) {
	store := newFakeEventStore()
	svc := &fakePurchases{}
	h := newTestHandler(store, svc, nil)

	payload := eventJSON(t, "evt_nometa", "checkout.session.completed", map[string]interface{}{
		"id":       "cs_nometa",
		"metadata": map[string]string{},
	})
	rr := postWebhook(h, payload, signPayload(t, payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeAck(t, rr)
	if body["processed"] != false {
		t.Errorf("processed = %v, want false", body["processed"])
	}
	if svc.completeCalls != 0 {
		t.Errorf("Complete called despite missing product metadata")
	}
}

func TestHandlePaymentIntentSucceeded(t *testing.T) {
	t.Run("completes by payment intent", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{}
		h := newTestHandler(store, svc, &fakeNotifier{})

		payload := eventJSON(t, "evt_pi", "payment_intent.succeeded", map[string]interface{}{
			"id":            "pi_77",
			"amount":        4900,
			"currency":      "usd",
			"receipt_email": "buyer@example.com",
		})
		rr := postWebhook(h, payload, signPayload(t, payload))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if svc.byIntentCalls != 1 || svc.lastIntentID != "pi_77" {
			t.Errorf("CompleteByPaymentIntent calls = %d id = %q", svc.byIntentCalls, svc.lastIntentID)
		}
	})

	t.Run("unknown payment intent acks as anomaly", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{byIntentErr: purchases.ErrNotFound}
		h := newTestHandler(store, svc, nil)

		payload := eventJSON(t, "evt_pi_miss", "payment_intent.succeeded", map[string]interface{}{
			"id": "pi_missing",
		})
		rr := postWebhook(h, payload, signPayload(t, payload))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		body := decodeAck(t, rr)
		if body["processed"] != false {
			t.Errorf("processed = %v, want false", body["processed"])
		}
	})
}

func TestHandleChargeRefunded(t *testing.T) {
	charge := map[string]interface{}{
		"id":             "ch_1",
		"payment_intent": map[string]interface{}{"id": "pi_55"},
	}

	t.Run("revokes access and notifies", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{}
		notifier := &fakeNotifier{}
		h := newTestHandler(store, svc, notifier)

		payload := eventJSON(t, "evt_rf", "charge.refunded", charge)
		rr := postWebhook(h, payload, signPayload(t, payload))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if svc.refundCalls != 1 || svc.lastRefundPI != "pi_55" {
			t.Errorf("Refund calls = %d pi = %q", svc.refundCalls, svc.lastRefundPI)
		}
		if len(notifier.events) != 1 || notifier.events[0] != "purchase.refunded" {
			t.Errorf("notifier events = %v", notifier.events)
		}
	})

	t.Run("repeat refund is a no-op ack", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{refundResult: &purchases.RevocationResult{Found: true, AlreadyDone: true}}
		notifier := &fakeNotifier{}
		h := newTestHandler(store, svc, notifier)

		payload := eventJSON(t, "evt_rf2", "charge.refunded", charge)
		rr := postWebhook(h, payload, signPayload(t, payload))

		body := decodeAck(t, rr)
		if body["processed"] != true {
			t.Errorf("processed = %v, want true", body["processed"])
		}
		if len(notifier.events) != 0 {
			t.Errorf("no notification expected on repeat refund, got %v", notifier.events)
		}
	})

	t.Run("unknown transaction is an anomaly not an error", func(t *testing.T) {
		store := newFakeEventStore()
		svc := &fakePurchases{refundResult: &purchases.RevocationResult{Found: false}}
		h := newTestHandler(store, svc, nil)

		payload := eventJSON(t, "evt_rf3", "charge.refunded", charge)
		rr := postWebhook(h, payload, signPayload(t, payload))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		body := decodeAck(t, rr)
		if body["processed"] != false {
			t.Errorf("processed = %v, want false", body["processed"])
		}
	})
}

func TestHandleDisputeCreated(t *testing.T) {
	store := newFakeEventStore()
	svc := &fakePurchases{}
	notifier := &fakeNotifier{}
	h := newTestHandler(store, svc, notifier)

	payload := eventJSON(t, "evt_dp", "charge.dispute.created", map[string]interface{}{
		"id":             "dp_9",
		"reason":         "fraudulent",
		"payment_intent": map[string]interface{}{"id": "pi_88"},
	})
	rr := postWebhook(h, payload, signPayload(t, payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if svc.disputeCalls != 1 || svc.lastDisputeID != "dp_9" || svc.lastDisputeWhy != "fraudulent" {
		t.Errorf("Dispute calls = %d id = %q reason = %q", svc.disputeCalls, svc.lastDisputeID, svc.lastDisputeWhy)
	}
	if len(notifier.events) != 1 || notifier.events[0] != "purchase.disputed" {
		t.Errorf("notifier events = %v", notifier.events)
	}
}

func TestHandleUnknownEventType(t *testing.T) {
	store := newFakeEventStore()
	svc := &fakePurchases{}
	h := newTestHandler(store, svc, nil)

	payload := eventJSON(t, "evt_unk", "customer.created", map[string]interface{}{"id": "cus_1"})
	rr := postWebhook(h, payload, signPayload(t, payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeAck(t, rr)
	if body["processed"] != true {
		t.Errorf("processed = %v, want true", body["processed"])
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "customer.created") {
		t.Errorf("message = %q, want mention of event type", msg)
	}
	if svc.completeCalls+svc.refundCalls+svc.disputeCalls+svc.byIntentCalls != 0 {
		t.Errorf("purchase service called for unknown event type")
	}
}

func TestHandleClaimFailureStillAcks(t *testing.T) {
	store := newFakeEventStore()
	store.claimErr = fmt.Errorf("connection refused")
	svc := &fakePurchases{}
	h := newTestHandler(store, svc, nil)

	payload := eventJSON(t, "evt_down", "checkout.session.completed", map[string]interface{}{"id": "cs_1"})
	rr := postWebhook(h, payload, signPayload(t, payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 so the processor retries later", rr.Code)
	}
	body := decodeAck(t, rr)
	if body["processed"] != false {
		t.Errorf("processed = %v, want false", body["processed"])
	}
	if svc.completeCalls != 0 {
		t.Errorf("handler ran without a successful claim")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/webhooks/stripe", MethodNotAllowed)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}
