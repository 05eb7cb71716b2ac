// Package retry provides bounded retry with backoff for transient failures.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // total attempts including the first; minimum 1
	InitialWait time.Duration // wait before the second attempt
	MaxWait     time.Duration // cap on a single wait
	Multiplier  float64       // backoff multiplier between attempts
}

// DefaultConfig returns the defaults used for idempotent API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: time.Second,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryableError wraps an error that should be retried.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string { return e.Err.Error() }

func (e RetryableError) Unwrap() error { return e.Err }

// Retryable marks an error as retryable.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err}
}

// IsRetryable reports whether the error was marked retryable.
func IsRetryable(err error) bool {
	var retryable RetryableError
	return errors.As(err, &retryable)
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. Waits are interruptible via ctx.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt-1))
		if cfg.MaxWait > 0 && wait > float64(cfg.MaxWait) {
			wait = float64(cfg.MaxWait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(wait)):
		}
	}

	return lastErr
}
