// Package remote is the HTTP client for the authoritative store. One
// [Client] serves one collection and implements the sync engine's
// RemoteClient contract, mapping transport failures, structured rejections
// and unparseable bodies onto the engine's error kinds. Transient failures
// are retried with the exponential-backoff [Retry] helper.
package remote

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const (
	// defaultMaxAttempts is the number of tries before Retry gives up.
	defaultMaxAttempts = 3

	// baseDelay is the first backoff interval before jitter.
	baseDelay = 500 * time.Millisecond

	// maxDelay caps the backoff interval.
	maxDelay = 5 * time.Second
)

// after is swapped by tests to skip real sleeps.
var after = time.After

// permanentError stops Retry early.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped error
// as soon as fn reports it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a [Permanent] error, or
// maxAttempts calls have failed. Waits between attempts grow exponentially
// with jitter and end early when ctx is done. A permanent failure is
// returned unwrapped; exhaustion wraps the last failure.
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	var last error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), last))
			case <-after(backoffDelay(attempt - 1)):
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", errors.Join(err, last))
		}

		last = fn()
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxAttempts, last)
}

// backoffDelay is the wait after the given zero-based attempt: baseDelay
// doubled per attempt, capped at maxDelay, then jittered uniformly into
// [d/2, d).
func backoffDelay(attempt int) time.Duration {
	d := baseDelay << attempt
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half))) //nolint:gosec // jitter does not need crypto/rand
}
