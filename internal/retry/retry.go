// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry provides the single retry policy used across the engine:
// the store's document writes, the cache's merge-and-write cycle, and the
// analyze stage's per-item retry pass all share it instead of carrying
// their own backoff loops.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Backoff computes the wait before the given retry attempt (1-based).
type Backoff func(attempt int) time.Duration

// Exponential doubles the base delay each attempt: base, 2·base, 4·base.
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base << (attempt - 1)
	}
}

// Linear grows the delay by base each attempt: base, 2·base, 3·base.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// Policy parameterizes retryable work: how many total attempts, how long to
// wait between them, and which errors are worth retrying.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff computes the wait before each retry. Nil means no wait.
	Backoff Backoff

	// Retryable reports whether the error may succeed on a later attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, the policy is exhausted, a non-retryable
// error occurs, or the context is cancelled. The returned error is the
// last error from fn, wrapped with the attempt count when retries ran out.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && p.Backoff != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff(attempt - 1)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}

	if attempts > 1 {
		return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
	}
	return lastErr
}
