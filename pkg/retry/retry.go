// Package retry provides a small retry combinator: an explicit
// retryable/fatal classification plus a combinator taking (max attempts,
// per-attempt action), replacing the original's try/except-driven retry
// loops (original_source/crawler/clients/oj_client.py's submit_code
// retry block).
package retry

import (
	"context"
	"errors"
	"fmt"
)

// Retryable marks an error as safe to retry. Errors that don't implement
// this interface (or implement it returning false) are treated as fatal
// and abort the retry loop immediately.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err should be retried: true if it (or
// something it wraps) implements Retryable and returns true from it.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Do runs action up to maxAttempts times, rotating between attempts via
// whatever side effect action itself performs (e.g. the account pool's
// round-robin Next). It stops as soon as action returns nil or a
// non-retryable error, and otherwise surfaces the last error once
// maxAttempts is exhausted.
func Do(ctx context.Context, maxAttempts int, action func(ctx context.Context, attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := action(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("retry: exhausted %d attempts: %w", maxAttempts, lastErr)
}
