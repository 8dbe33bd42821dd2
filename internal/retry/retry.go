// Package retry runs operations with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = time.Second
	DefaultMaxDelay      = 10 * time.Second
	DefaultBackoffFactor = 2.0
)

// Policy controls how many times an operation runs and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// OnRetry is called before sleeping with the failed attempt number
	// (1-based), its error and the delay about to be applied.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep waits out the delay between attempts. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns 3 attempts starting at 1s, doubling, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   DefaultMaxAttempts,
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		BackoffFactor: DefaultBackoffFactor,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	return p
}

// Delay returns min(InitialDelay * BackoffFactor^(attempt-1), MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// itself, not the marker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// retryable is implemented by errors that know whether a retry can help.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether Do would try again after err.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	policy = policy.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
		if !IsRetryable(err) || attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, delay)
		}
		wait := policy.Sleep
		if wait == nil {
			wait = sleep
		}
		if err := wait(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
