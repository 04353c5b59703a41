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
	"net/http"
	"time"

	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/monitoring"
	"github.com/rs/zerolog"
)

// WebhookSink POSTs notification events to a configured endpoint, signing the
// payload with HMAC-SHA256 when a secret is configured.
type WebhookSink struct {
	cfg    *config.WebhookConfig
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookSink creates a webhook notification sink.
func NewWebhookSink(cfg *config.WebhookConfig, logger zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
		logger: logger.With().Str("component", "webhook-sink").Logger(),
	}
}

// Name identifies the sink in logs and metrics.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver posts the event, retrying with linear backoff up to the configured
// retry budget.
func (s *WebhookSink) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	maxRetries := s.cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := s.post(ctx, event, body); err != nil {
			lastErr = err
			s.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("event_id", event.ID).
				Msg("Webhook delivery attempt failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			continue
		}

		monitoring.RecordNotification(s.Name(), "delivered")
		return nil
	}

	monitoring.RecordNotification(s.Name(), "failed")
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", maxRetries, lastErr)
}

func (s *WebhookSink) post(ctx context.Context, event *Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Chainraise-Event", string(event.Level))
	if s.cfg.Secret != "" {
		req.Header.Set("X-Chainraise-Signature", sign(s.cfg.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (s *WebhookSink) Close() error { return nil }

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
