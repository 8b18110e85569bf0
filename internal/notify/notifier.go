package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"gateflow/internal/domain/notify"
	"gateflow/internal/infra/kafka"
	"gateflow/internal/infra/metrics"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Notifier fans platform events out to webhook subscribers, the marketing
// conversion API and (optionally) Kafka. Every delivery is fire-and-forget:
// a detached goroutine with its own error boundary, decoupled from the
// committed purchase mutation it announces.
type Notifier struct {
	db       *gorm.DB
	client   *http.Client
	producer *kafka.Producer
	pixel    *PixelClient
}

func NewNotifier(db *gorm.DB, producer *kafka.Producer, pixel *PixelClient) *Notifier {
	return &Notifier{
		db:       db,
		client:   &http.Client{Timeout: 10 * time.Second},
		producer: producer,
		pixel:    pixel,
	}
}

// Trigger returns immediately; callers on the webhook critical path never
// wait for deliveries.
func (n *Notifier) Trigger(ctx context.Context, event string, payload map[string]interface{}) {
	go n.deliver(event, payload)
}

func (n *Notifier) deliver(event string, payload map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", event).Msg("notifier panic")
		}
	}()

	body := map[string]interface{}{
		"event":      event,
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"data":       payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("notifier marshal failed")
		return
	}

	n.deliverSubscribers(event, data)

	if n.producer != nil {
		if err := n.producer.Publish(event, body); err != nil {
			metrics.IncNotifierDelivery("kafka", "error")
			log.Error().Err(err).Str("event", event).Msg("kafka publish failed")
		} else {
			metrics.IncNotifierDelivery("kafka", "ok")
		}
	}

	if n.pixel != nil && event == "purchase.completed" {
		if email, ok := payload["customer_email"].(string); ok {
			n.pixel.TrackPurchase(email, payload)
		}
	}
}

func (n *Notifier) deliverSubscribers(event string, body []byte) {
	if n.db == nil {
		return
	}

	var endpoints []notify.WebhookEndpoint
	if err := n.db.Where("active = ?", true).Find(&endpoints).Error; err != nil {
		log.Error().Err(err).Msg("failed to load webhook endpoints")
		return
	}

	for _, ep := range endpoints {
		if !ep.Subscribed(event) {
			continue
		}
		if err := n.post(ep, event, body); err != nil {
			metrics.IncNotifierDelivery("webhook", "error")
			log.Error().Err(err).
				Str("event", event).
				Str("endpoint", ep.URL).
				Msg("subscriber delivery failed")
			continue
		}
		metrics.IncNotifierDelivery("webhook", "ok")
	}
}

func (n *Notifier) post(ep notify.WebhookEndpoint, event string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GateFlow-Event", event)
	req.Header.Set("X-GateFlow-Signature", Sign(ep.Secret, body))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &DeliveryError{Status: resp.StatusCode, URL: ep.URL}
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 signature subscribers verify deliveries
// with.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type DeliveryError struct {
	Status int
	URL    string
}

func (e *DeliveryError) Error() string {
	return "subscriber " + e.URL + " answered " + http.StatusText(e.Status)
}
