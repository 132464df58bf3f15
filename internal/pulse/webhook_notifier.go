package pulse

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HerbHall/loginwatch/internal/version"
)

// Compile-time interface guard.
var _ Notifier = (*WebhookNotifier)(nil)

// webhookPayload is the JSON body accepted by Webex/Slack-style incoming webhooks.
type webhookPayload struct {
	Text string `json:"text"`
}

// WebhookNotifier posts the rendered alert text to a chat webhook URL.
type WebhookNotifier struct {
	client *http.Client
	cfg    WebhookConfig
}

// NewWebhookNotifier creates a new webhook notifier with the given config.
func NewWebhookNotifier(cfg WebhookConfig, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

// Notify sends the alert body as {"text": ...}. Any non-2xx response is a
// delivery error.
func (w *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{Text: alert.Body})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	// Add HMAC-SHA256 signature if secret is configured.
	if w.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook POST: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	return nil
}

// Type returns the notifier type identifier.
func (w *WebhookNotifier) Type() string {
	return "webhook"
}
