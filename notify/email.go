package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/keyfate/keyfate/interfaces"
)

// EmailChannel delivers notifications through an HTTP email gateway. The
// gateway owns transport-level concerns (SMTP, templating, suppression
// lists); this client only posts the structured content.
type EmailChannel struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	log      *slog.Logger
}

// NewEmailChannel creates an email channel posting to the given gateway
// endpoint.
func NewEmailChannel(endpoint, apiKey, from string, log *slog.Logger) *EmailChannel {
	return &EmailChannel{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

// Kind returns interfaces.ChannelEmail.
func (c *EmailChannel) Kind() interfaces.ChannelKind {
	return interfaces.ChannelEmail
}

// Send posts the notification to the gateway and returns the gateway's
// message id.
func (c *EmailChannel) Send(ctx context.Context, n interfaces.Notification) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"from":    c.from,
		"to":      n.To.Address,
		"subject": n.Subject,
		"text":    n.Body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("email gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("email gateway returned status %d", resp.StatusCode)
	}

	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.MessageID == "" {
		// Some gateways answer with an empty body on success.
		return "", nil
	}

	c.log.Debug("Email accepted by gateway", slog.String("message_id", result.MessageID))
	return result.MessageID, nil
}
