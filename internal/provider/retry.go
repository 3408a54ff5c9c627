package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxAttempts = 3
	baseDelay   = 500 * time.Millisecond
	callTimeout = 30 * time.Second
)

// retryable reports whether an error is worth retrying within the same
// call. Not-found, auth and cursor errors are definitive; everything that
// looks like a network hiccup or rate limit gets another attempt.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuth) || errors.Is(err, ErrCursorExpired) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "ratelimitexceeded"),
		strings.Contains(errStr, "quota"),
		strings.Contains(errStr, "429"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "temporary"),
		strings.Contains(errStr, "backend"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "502"),
		strings.Contains(errStr, "500"):
		return true
	}
	return false
}

// withRetry runs op with a per-attempt timeout and exponential backoff.
// The parent context bounds the whole call; a cancelled parent stops the
// retry loop immediately.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		err := op(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
	}

	return fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}
