package email

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookDeliverer hands rendered newsletters to an external sending
// service over HTTP. The payload carries the full HTML; the receiving end
// owns actual SMTP delivery.
type WebhookDeliverer struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhookDeliverer creates a webhook deliverer. secret may be empty to
// skip request signing.
func NewWebhookDeliverer(url, secret string) *WebhookDeliverer {
	return &WebhookDeliverer{
		client: &http.Client{Timeout: 30 * time.Second},
		url:    url,
		secret: secret,
	}
}

func (w *WebhookDeliverer) Name() string { return "webhook" }

type webhookPayload struct {
	CampaignID int64  `json:"campaign_id"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
}

func (w *WebhookDeliverer) Deliver(ctx context.Context, m *Message) error {
	body, err := json.Marshal(webhookPayload{
		CampaignID: m.CampaignID,
		To:         m.To,
		Subject:    m.Subject,
		HTML:       m.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "storydigest/1.0")

	// HMAC signature for verification.
	if w.secret != "" {
		mac := hmac.New(sha256.New, []byte(w.secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Signature-256", "sha256="+sig)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	return nil
}
