// Package retry centralizes the retry-with-backoff policy used by every
// component that talks to an external collaborator (remote event store,
// travel estimation). One policy, applied uniformly, instead of ad hoc
// retry loops scattered through callers.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy controls retry behavior for transient errors.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      int
}

// DefaultPolicy is the standard policy for remote I/O: up to 3 attempts
// with exponential backoff starting at 1s, doubling each attempt.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	Factor:      2,
}

// Transient marks an error as retryable. Errors not wrapped with Transient
// stop the retry loop immediately.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so the retry loop treats it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked
// retryable via Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do executes fn up to p.MaxAttempts times, sleeping between attempts with
// exponential backoff. It returns nil on the first success, the error
// immediately if it is not transient, and the last error once attempts are
// exhausted. The sleep respects ctx cancellation.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= time.Duration(p.Factor)
	}
	return lastErr
}
