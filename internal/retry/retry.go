// Package retry implements bounded retries with exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do gives up on it immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do runs fn up to maxAttempts times. The delay between attempts starts
// at baseDelay, doubles each round, and carries +-25% jitter so callers
// retrying the same endpoint do not sleep in lockstep. It returns early
// on success, on a *PermanentError (unwrapped), or when ctx ends.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := baseDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var pe *PermanentError
		if errors.As(lastErr, &pe) {
			return pe.Err
		}
		if attempt == maxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay)):
		}
		delay *= 2
	}
}

// jittered spreads d over [0.75d, 1.25d].
func jittered(d time.Duration) time.Duration {
	quarter := int64(d / 4)
	if quarter <= 0 {
		return d
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	offset := int64(binary.LittleEndian.Uint64(b[:])>>1) % (2*quarter + 1)
	return d - time.Duration(quarter) + time.Duration(offset)
}
