// Package gateway brokers requests to upstream AI providers.
//
// Flow:
//  1. Handler validates the license and reserves credits
//  2. Client picks an API key (fixed or round-robin) and forwards
//  3. Quota and rate-limit responses rotate to the next key
//  4. Async jobs are polled on the same key until completion
//
// Transcripts are cached by source URL for a configurable TTL so a retried
// page load does not burn a second credit.
package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider failures. The set is closed; handlers map
// each kind to exactly one HTTP status.
type ErrorKind string

const (
	KindQuotaExceeded     ErrorKind = "quota_exceeded"     // upstream 402, key exhausted
	KindRateLimited       ErrorKind = "rate_limited"       // upstream 429
	KindNativeUnavailable ErrorKind = "native_unavailable" // upstream 206, no transcript exists
	KindProviderHTTP      ErrorKind = "provider_error"     // any other non-2xx
	KindJobFailed         ErrorKind = "job_failed"         // async job reported failure
	KindJobTimeout        ErrorKind = "job_timeout"        // polling budget exhausted
	KindEmptyContent      ErrorKind = "empty_content"      // job completed with nothing in it
)

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
}

// AsError extracts a gateway Error from err, or nil.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return nil
}

// rotatable reports whether a failure should advance to the next API key.
// Only quota and rate-limit responses rotate; everything else is terminal.
func (e *Error) rotatable() bool {
	return e.Kind == KindQuotaExceeded || e.Kind == KindRateLimited
}

// RotationMode selects how keys are picked for each request.
type RotationMode string

const (
	// ModeFixed always starts from the first key and only moves on when a
	// key is exhausted or throttled.
	ModeFixed RotationMode = "fixed"
	// ModeRoundRobin spreads load by advancing the starting key on every
	// request.
	ModeRoundRobin RotationMode = "round-robin"
)

// Defaults for the async job poller.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxAttempts = 30
)

// TranscriptRequest asks for the transcript of a video or audio URL.
type TranscriptRequest struct {
	URL  string `json:"url" binding:"required"`
	Lang string `json:"lang"`
	Text bool   `json:"text"`
}

// TranscriptResult is the provider's transcript payload.
type TranscriptResult struct {
	Content        string   `json:"content"`
	Lang           string   `json:"lang,omitempty"`
	AvailableLangs []string `json:"available_langs,omitempty"`
	Cached         bool     `json:"cached,omitempty"`
}

// DescribeRequest asks the AI provider to describe or summarize content.
type DescribeRequest struct {
	Content string `json:"content" binding:"required"`
	Prompt  string `json:"prompt"`
	Lang    string `json:"lang"`
}

// DescribeResult is the AI provider's generated description.
type DescribeResult struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// jobEnvelope is the async acknowledgement and poll response shape.
type jobEnvelope struct {
	JobID          string   `json:"jobId"`
	Status         string   `json:"status"`
	Content        string   `json:"content"`
	Lang           string   `json:"lang"`
	AvailableLangs []string `json:"availableLangs"`
	Model          string   `json:"model"`
	Error          string   `json:"error"`
}

// Async job states reported by the provider.
const (
	jobQueued    = "queued"
	jobActive    = "active"
	jobCompleted = "completed"
	jobFailed    = "failed"
)
