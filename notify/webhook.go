package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/keyfate/keyfate/interfaces"
)

// WebhookChannel delivers notifications by posting a signed JSON payload to
// a user-configured URL. The contact point's address holds the target URL.
type WebhookChannel struct {
	signingKey []byte
	client     *http.Client
	log        *slog.Logger
	now        func() time.Time
}

// webhookPayload is the body posted to webhook receivers.
type webhookPayload struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	CheckInURL string `json:"checkInUrl,omitempty"`
	SentAt     int64  `json:"sentAt"`
}

// NewWebhookChannel creates a webhook channel. signingKey may be empty, in
// which case payloads are sent unsigned.
func NewWebhookChannel(signingKey []byte, log *slog.Logger) *WebhookChannel {
	return &WebhookChannel{
		signingKey: signingKey,
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        log,
		now:        time.Now,
	}
}

// Kind returns interfaces.ChannelWebhook.
func (c *WebhookChannel) Kind() interfaces.ChannelKind {
	return interfaces.ChannelWebhook
}

// Send posts the notification to the contact point's URL. Receivers signal
// acceptance with any 2xx status; the returned message id is synthesized
// from the delivery timestamp since webhooks have no gateway-side id.
func (c *WebhookChannel) Send(ctx context.Context, n interfaces.Notification) (string, error) {
	sentAt := c.now()
	payload, err := json.Marshal(webhookPayload{
		Subject:    n.Subject,
		Body:       n.Body,
		CheckInURL: n.CheckInURL,
		SentAt:     sentAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.To.Address, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(c.signingKey) > 0 {
		req.Header.Set("X-Keyfate-Signature", c.sign(payload))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook receiver returned status %d", resp.StatusCode)
	}

	c.log.Debug("Webhook accepted", slog.Int("status", resp.StatusCode))
	return "webhook-" + strconv.FormatInt(sentAt.UnixMilli(), 10), nil
}

func (c *WebhookChannel) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
