// Package notify pushes license lifecycle events to configured webhook
// endpoints.
//
// Deliveries are fire-and-forget: a failed endpoint is retried with
// backoff, then logged and dropped. Payloads are HMAC-signed when a
// shared secret is configured.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ipvlabs/vendord/internal/idgen"
	"github.com/ipvlabs/vendord/internal/metrics"
	"github.com/ipvlabs/vendord/internal/retry"
	"github.com/ipvlabs/vendord/internal/security"
)

const (
	deliveryTimeout  = 10 * time.Second
	deliveryAttempts = 3
	deliveryBackoff  = 500 * time.Millisecond
)

// Event is the payload delivered to webhook endpoints.
type Event struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Emitter delivers events to a fixed set of webhook URLs.
type Emitter struct {
	urls   []string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewEmitter creates a webhook emitter. An empty URL list disables
// delivery without disabling the Emit call sites. Endpoints pointing at
// private or loopback addresses are rejected up front.
func NewEmitter(urls []string, secret string, logger *slog.Logger) *Emitter {
	accepted := make([]string, 0, len(urls))
	for _, u := range urls {
		if err := security.ValidateEndpointURL(u); err != nil {
			logger.Warn("rejecting webhook endpoint", "url", u, "error", err)
			continue
		}
		accepted = append(accepted, u)
	}
	return &Emitter{
		urls:   accepted,
		secret: secret,
		client: &http.Client{Timeout: deliveryTimeout},
		logger: logger,
	}
}

// Emit delivers an event to every configured endpoint. Delivery happens
// in the background; the caller's request context is not used so an HTTP
// response finishing does not cancel in-flight deliveries.
func (e *Emitter) Emit(ctx context.Context, event string, payload interface{}) {
	if len(e.urls) == 0 {
		return
	}

	evt := Event{
		ID:        idgen.WithPrefix("evt_"),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		e.logger.Error("failed to marshal webhook event", "event", event, "error", err)
		return
	}

	for _, url := range e.urls {
		go e.deliver(url, event, body)
	}
}

func (e *Emitter) deliver(url, event string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := retry.Do(ctx, deliveryAttempts, deliveryBackoff, func() error {
		return e.send(ctx, url, event, body)
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "failed").Inc()
		e.logger.Warn("webhook delivery failed", "url", url, "event", event, "error", err)
		return
	}

	metrics.NotificationsTotal.WithLabelValues(event, "delivered").Inc()
	e.logger.Debug("webhook delivered", "url", url, "event", event)
}

func (e *Emitter) send(ctx context.Context, url, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vendord-Event", event)
	req.Header.Set("X-Vendord-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if e.secret != "" {
		req.Header.Set("X-Vendord-Signature", sign(body, e.secret))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// The endpoint rejected the payload; retrying cannot help.
		return retry.Permanent(fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode))
	}
	return fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
