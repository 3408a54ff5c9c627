package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", fmt.Errorf("%w: gone", ErrNotFound), false},
		{"auth", fmt.Errorf("%w: token revoked", ErrAuth), false},
		{"cursor expired", fmt.Errorf("%w: 410", ErrCursorExpired), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"rate limit", errors.New("rate limit: googleapi 403"), true},
		{"rateLimitExceeded", errors.New("googleapi: Error 403: rateLimitExceeded"), true},
		{"quota", errors.New("quota exceeded for calendar"), true},
		{"429", errors.New("unexpected status 429"), true},
		{"timeout", errors.New("net/http: request timeout"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"backend error", errors.New("googleapi: Error 500: Backend Error"), true},
		{"503", errors.New("unexpected status 503"), true},
		{"validation", errors.New("missing summary"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("fatal error not retried", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), func(ctx context.Context) error {
			attempts++
			return fmt.Errorf("%w: event gone", ErrNotFound)
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("recovers after transient error", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts == 1 {
				return errors.New("unexpected status 503")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("exhausted attempts wrap ErrUnavailable", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("connection refused")
		})
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		if attempts != maxAttempts {
			t.Errorf("attempts = %d, want %d", attempts, maxAttempts)
		}
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := withRetry(ctx, func(ctx context.Context) error {
			attempts++
			cancel()
			return errors.New("unexpected status 502")
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})
}
