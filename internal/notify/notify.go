package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"video-clipper/internal/logging"
	"video-clipper/internal/metrics"
)

// Config holds the downstream callback settings.
type Config struct {
	// CallbackURL receives the completion POST. Empty disables
	// notification entirely.
	CallbackURL string
	// Token is the bearer credential for the callback.
	Token string
	// Timeout bounds the single delivery attempt.
	Timeout time.Duration
}

// Payload is the completion callback body.
type Payload struct {
	UserID        string `json:"user_id"`
	VideoID       string `json:"video_id"`
	ClipURL       string `json:"clipUrl"`
	PrivacyStatus string `json:"privacyStatus"`
}

// Notifier delivers completion callbacks to the downstream consumer.
// Delivery is single-attempt: by the time the notifier runs the clip
// is already durably stored, so a failed callback must never unwind
// the job. Retry policy, if any, belongs to the consumer.
type Notifier struct {
	url    string
	token  string
	client *http.Client
}

// New creates a Notifier. Returns a disabled notifier when no callback
// URL is configured.
func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Notifier{
		url:    cfg.CallbackURL,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a callback URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Notify posts the completion payload. One attempt, no retries.
// The response body is informational only and is discarded.
func (n *Notifier) Notify(ctx context.Context, p Payload) error {
	if !n.Enabled() {
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("callback delivery failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Debug("failed to close callback response body: %v", err)
		}
	}()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.NotificationsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	metrics.NotificationsTotal.WithLabelValues("success").Inc()
	return nil
}
