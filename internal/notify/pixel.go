package notify

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"gateflow/internal/infra/metrics"

	"github.com/rs/zerolog/log"
)

const metaGraphURL = "https://graph.facebook.com/v18.0"

// PixelClient posts purchase conversions to the Meta Conversions API. PII is
// SHA-256 hashed before it leaves the process, and nothing is sent unless the
// consent flag was enabled in configuration.
type PixelClient struct {
	pixelID     string
	accessToken string
	consent     bool
	client      *http.Client

	// baseURL is overridable in tests.
	baseURL string
}

func NewPixelClient(pixelID, accessToken string, consent bool) *PixelClient {
	return &PixelClient{
		pixelID:     pixelID,
		accessToken: accessToken,
		consent:     consent,
		client:      &http.Client{Timeout: 10 * time.Second},
		baseURL:     metaGraphURL,
	}
}

// TrackPurchase reports one conversion. Errors are logged only; marketing
// tracking must never surface into commerce state.
func (p *PixelClient) TrackPurchase(email string, payload map[string]interface{}) {
	if !p.consent || p.pixelID == "" || p.accessToken == "" {
		return
	}

	event := map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"event_name":   "Purchase",
				"event_time":   time.Now().Unix(),
				"action_source": "website",
				"user_data": map[string]interface{}{
					"em": []string{HashPII(email)},
				},
				"custom_data": payload,
			},
		},
		"access_token": p.accessToken,
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("pixel marshal failed")
		return
	}

	url := p.baseURL + "/" + p.pixelID + "/events"
	resp, err := p.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		metrics.IncNotifierDelivery("pixel", "error")
		log.Error().Err(err).Msg("pixel conversion post failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.IncNotifierDelivery("pixel", "error")
		log.Error().Int("status", resp.StatusCode).Msg("pixel conversion rejected")
		return
	}
	metrics.IncNotifierDelivery("pixel", "ok")
}

// HashPII normalizes and SHA-256 hashes an identifier the way the
// conversion API expects.
func HashPII(value string) string {
	norm := strings.ToLower(strings.TrimSpace(value))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
