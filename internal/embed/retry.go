package embed

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// RetryConfig configures the exponential-backoff retrier.
type RetryConfig struct {
	NumTries int           // Total attempts, minimum 1
	MinDelay time.Duration // Delay before the first retry
	MaxDelay time.Duration // Cap on the backoff delay
	Backoff  float64       // Multiplier per attempt (default 2)

	// Retryable decides whether an error is worth another attempt. When
	// nil, DefaultRetryable is used.
	Retryable func(error) bool
}

// DefaultRetryConfig returns a sensible default configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		NumTries: 3,
		MinDelay: 1 * time.Second,
		MaxDelay: 30 * time.Second,
		Backoff:  2,
	}
}

// RetryProvider wraps a Provider with exponential-backoff retries. Errors
// outside the retryable set are re-raised immediately; once attempts are
// exhausted the last error is surfaced as an *Error.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps an existing provider with retry logic.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.NumTries < 1 {
		config.NumTries = 1
	}
	if config.Backoff <= 0 {
		config.Backoff = 2
	}
	return &RetryProvider{inner: inner, config: config}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string { return r.inner.Name() }

// Embed calls the inner provider up to NumTries times, sleeping
// min(MinDelay * Backoff^attempt, MaxDelay) between attempts.
func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	retryable := r.config.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var lastErr error
	for attempt := 0; attempt < r.config.NumTries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.delay(attempt - 1)):
			}
		}

		vectors, err := r.inner.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, &Error{Provider: r.inner.Name(), Attempts: r.config.NumTries, Cause: lastErr}
}

func (r *RetryProvider) delay(attempt int) time.Duration {
	d := float64(r.config.MinDelay)
	for i := 0; i < attempt; i++ {
		d *= r.config.Backoff
		if time.Duration(d) >= r.config.MaxDelay {
			return r.config.MaxDelay
		}
	}
	if limit := float64(r.config.MaxDelay); r.config.MaxDelay > 0 && d > limit {
		d = limit
	}
	return time.Duration(d)
}

// DefaultRetryable retries timeouts, rate limits and server errors; caller
// cancellation and other client errors fail immediately.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := err.Error()
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") {
		return true
	}
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(errStr, code) {
			return true
		}
	}
	for _, code := range []string{"400", "401", "403", "404"} {
		if strings.Contains(errStr, code) {
			return false
		}
	}
	return true
}
