package detector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig represents retry configuration for detector calls
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Factor      float64
	Jitter      float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Factor:      2.0,
		Jitter:      0.1,
	}
}

// Error represents a detector API error. Status 0 means the detector
// was unreachable at the transport level.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("detector unreachable: %s", e.Message)
	}
	return fmt.Sprintf("detector error %d: %s", e.Status, e.Message)
}

// IsRetryableError determines if a detector error should be retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var derr *Error
	if errors.As(err, &derr) {
		if derr.Status == 0 {
			return true
		}
		switch derr.Status {
		case 429, // Too Many Requests
			500, // Internal Server Error
			502, // Bad Gateway
			503, // Service Unavailable
			504: // Gateway Timeout
			return true
		}
	}

	return false
}

// RetryWithResult wraps a function returning a result with bounded
// exponential backoff. Non-retryable errors and context cancellation
// end the attempts immediately.
func RetryWithResult[T any](ctx context.Context, fn func(context.Context) (T, error), config *RetryConfig) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var (
		result T
		err    error
		wait   = config.InitialWait
	)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}

		if !IsRetryableError(err) {
			return result, err
		}

		if attempt == config.MaxRetries {
			return result, fmt.Errorf("max retries exceeded: %w", err)
		}

		// Exponential backoff with jitter, capped at MaxWait
		jitter := 1.0 + (config.Jitter * (2*rand.Float64() - 1))
		wait = time.Duration(float64(wait) * config.Factor * jitter)
		if wait > config.MaxWait {
			wait = config.MaxWait
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
			continue
		}
	}

	return result, err
}
