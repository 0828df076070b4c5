// Package embed wraps remote embedding APIs with retry, backoff and request
// pacing.
package embed

import (
	"context"
	"fmt"
)

// Provider is the interface all embedding backends must implement.
type Provider interface {
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "openai").
	Name() string
}

// Error reports an embedding call that failed after exhausting retries.
type Error struct {
	Provider string
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding via %s failed after %d attempts: %v", e.Provider, e.Attempts, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }
