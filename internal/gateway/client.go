package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ipvlabs/vendord/internal/circuitbreaker"
	"github.com/ipvlabs/vendord/internal/metrics"
	"github.com/ipvlabs/vendord/internal/traces"
)

const maxResponseSize = 5 * 1024 * 1024 // 5MB

// Client talks to one upstream provider with a pool of API keys.
type Client struct {
	name         string
	baseURL      string
	ring         *keyring
	http         *http.Client
	breaker      *circuitbreaker.Breaker
	pollInterval time.Duration
	pollMax      int
	logger       *slog.Logger
}

// ClientConfig configures a provider client.
type ClientConfig struct {
	Name            string
	BaseURL         string
	Keys            []string
	RotationMode    RotationMode
	PollInterval    time.Duration
	PollMaxAttempts int
	Timeout         time.Duration
}

// NewClient creates a provider client. Zero poll settings fall back to the
// package defaults.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = DefaultPollMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		name:         cfg.Name,
		baseURL:      cfg.BaseURL,
		ring:         newKeyring(cfg.Keys, cfg.RotationMode),
		http:         &http.Client{Timeout: cfg.Timeout},
		breaker:      circuitbreaker.New(5, 30*time.Second),
		pollInterval: cfg.PollInterval,
		pollMax:      cfg.PollMaxAttempts,
		logger:       logger,
	}
}

// Name returns the provider name used in logs and metrics.
func (c *Client) Name() string { return c.name }

// Transcript fetches a transcript, following async job handoffs.
func (c *Client) Transcript(ctx context.Context, req TranscriptRequest) (*TranscriptResult, error) {
	env, err := c.request(ctx, "/transcript", req)
	if err != nil {
		return nil, err
	}
	return &TranscriptResult{
		Content:        env.Content,
		Lang:           env.Lang,
		AvailableLangs: env.AvailableLangs,
	}, nil
}

// Describe generates a description for the supplied content.
func (c *Client) Describe(ctx context.Context, req DescribeRequest) (*DescribeResult, error) {
	env, err := c.request(ctx, "/describe", req)
	if err != nil {
		return nil, err
	}
	return &DescribeResult{
		Content: env.Content,
		Model:   env.Model,
	}, nil
}

// request walks the key order for one logical request. Only quota and
// rate-limit responses advance to the next key; every other failure is
// returned as-is. Async acknowledgements are polled on the key that
// accepted the job.
func (c *Client) request(ctx context.Context, path string, payload interface{}) (*jobEnvelope, error) {
	if c.ring.empty() {
		return nil, &Error{Kind: KindProviderHTTP, Message: "no API keys configured"}
	}
	if !c.breaker.Allow(c.name) {
		return nil, &Error{Kind: KindProviderHTTP, Message: "provider temporarily unavailable"}
	}

	var lastErr error
	for _, key := range c.ring.order() {
		status, body, err := c.post(ctx, key, path, payload)
		if err != nil {
			c.breaker.RecordFailure(c.name)
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
			return nil, err
		}
		// Any HTTP response means the provider itself is up; only transport
		// failures and 5xx responses count against the circuit.
		if status >= 500 {
			c.breaker.RecordFailure(c.name)
		} else {
			c.breaker.RecordSuccess(c.name)
		}

		switch {
		case status == http.StatusPaymentRequired:
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "quota").Inc()
			metrics.KeyRotationsTotal.WithLabelValues("quota").Inc()
			c.logger.Warn("provider key exhausted, rotating", "provider", c.name)
			lastErr = &Error{Kind: KindQuotaExceeded, StatusCode: status, Message: "API key quota exhausted"}
			continue

		case status == http.StatusTooManyRequests:
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "rate_limited").Inc()
			metrics.KeyRotationsTotal.WithLabelValues("rate_limit").Inc()
			c.logger.Warn("provider key throttled, rotating", "provider", c.name)
			lastErr = &Error{Kind: KindRateLimited, StatusCode: status, Message: "API key rate limited"}
			continue

		case status == http.StatusPartialContent:
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "unavailable").Inc()
			return nil, &Error{Kind: KindNativeUnavailable, StatusCode: status,
				Message: "no native transcript available for this content"}

		case status == http.StatusAccepted:
			var env jobEnvelope
			if err := json.Unmarshal(body, &env); err != nil || env.JobID == "" {
				metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
				return nil, &Error{Kind: KindProviderHTTP, StatusCode: status,
					Message: "async acknowledgement without job id"}
			}
			return c.poll(ctx, key, path, env.JobID)

		case status >= 200 && status < 300:
			var env jobEnvelope
			if err := json.Unmarshal(body, &env); err != nil {
				metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
				return nil, &Error{Kind: KindProviderHTTP, StatusCode: status,
					Message: fmt.Sprintf("unparseable provider response: %v", err)}
			}
			if env.JobID != "" && env.Content == "" {
				return c.poll(ctx, key, path, env.JobID)
			}
			if env.Content == "" {
				metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
				return nil, &Error{Kind: KindEmptyContent, StatusCode: status,
					Message: "provider returned no content"}
			}
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "success").Inc()
			return &env, nil

		default:
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
			return nil, &Error{Kind: KindProviderHTTP, StatusCode: status,
				Message: fmt.Sprintf("provider returned HTTP %d: %s", status, truncate(body, 200))}
		}
	}

	return nil, lastErr
}

// poll waits for an async job on the key that accepted it. The first check
// is immediate; subsequent checks wait out the poll interval.
func (c *Client) poll(ctx context.Context, key, path, jobID string) (*jobEnvelope, error) {
	ctx, span := traces.StartSpan(ctx, "gateway.poll", traces.JobID(jobID))
	defer span.End()

	for attempt := 1; attempt <= c.pollMax; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pollInterval):
			}
		}

		metrics.JobPollsTotal.Inc()
		status, body, err := c.get(ctx, key, path+"/"+jobID)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
			return nil, &Error{Kind: KindProviderHTTP, StatusCode: status,
				Message: fmt.Sprintf("job poll returned HTTP %d", status)}
		}

		var env jobEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
			return nil, &Error{Kind: KindProviderHTTP, StatusCode: status,
				Message: fmt.Sprintf("unparseable job status: %v", err)}
		}

		switch env.Status {
		case jobQueued, jobActive:
			continue
		case jobFailed:
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
			return nil, &Error{Kind: KindJobFailed, Message: jobFailureMessage(env.Error)}
		case jobCompleted:
			if env.Content == "" {
				metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
				return nil, &Error{Kind: KindEmptyContent, Message: "job completed without content"}
			}
			metrics.ProviderRequestsTotal.WithLabelValues(c.name, "success").Inc()
			return &env, nil
		default:
			// Some job responses omit the status field once the payload is
			// ready.
			if env.Content != "" {
				metrics.ProviderRequestsTotal.WithLabelValues(c.name, "success").Inc()
				return &env, nil
			}
			continue
		}
	}

	metrics.ProviderRequestsTotal.WithLabelValues(c.name, "error").Inc()
	return nil, &Error{Kind: KindJobTimeout,
		Message: fmt.Sprintf("job %s still pending after %d checks", jobID, c.pollMax)}
}

func (c *Client) post(ctx context.Context, key, path string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key)

	return c.do(req)
}

func (c *Client) get(ctx context.Context, key, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", key)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("read provider response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func jobFailureMessage(detail string) string {
	if detail == "" {
		return "provider reported job failure"
	}
	return detail
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
