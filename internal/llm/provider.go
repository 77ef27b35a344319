// Package llm adapts hosted model APIs to the two capabilities the rest of the
// service consumes: text completion and text embedding.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Request is a single completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Embedder turns texts into fixed-length vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// ProviderError describes a failed provider call.
type ProviderError struct {
	Provider  string
	Op        string
	Timeout   bool
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "error"
	if e.Timeout {
		kind = "timeout"
	}
	return fmt.Sprintf("%s %s %s: %v", e.Provider, e.Op, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// wrapErr classifies err for provider/op. Deadline expiry becomes a timeout.
func wrapErr(provider, op string, err error, retryable bool) error {
	if err == nil {
		return nil
	}
	timeout := errors.Is(err, context.DeadlineExceeded)
	return &ProviderError{
		Provider:  provider,
		Op:        op,
		Timeout:   timeout,
		Retryable: retryable || timeout,
		Err:       err,
	}
}

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Timeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3

// withTimeout derives a context bounded by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
