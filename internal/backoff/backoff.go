// Package backoff implements the retry policy used for every external
// call: exponential delay with a cap and a bounded attempt count.
package backoff

import (
	"context"
	"errors"
	"time"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	Base        time.Duration // delay before the second attempt
	Factor      float64       // multiplier per attempt
	Cap         time.Duration // maximum delay between attempts
	MaxAttempts int           // total attempts, including the first
}

// Default is the standard policy for transient external failures:
// 500 ms base, doubling, capped at 8 s, 5 attempts.
func Default() Policy {
	return Policy{
		Base:        500 * time.Millisecond,
		Factor:      2,
		Cap:         8 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before attempt n (0-based). Attempt 0 has no delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
		if time.Duration(d) >= p.Cap {
			return p.Cap
		}
	}
	if time.Duration(d) > p.Cap {
		return p.Cap
	}
	return time.Duration(d)
}

// Permanent wraps an error so Do stops retrying immediately.
type Permanent struct {
	Err error
}

func (e Permanent) Error() string { return e.Err.Error() }
func (e Permanent) Unwrap() error { return e.Err }

// Do runs fn until it succeeds, returns a Permanent error, the attempts
// are exhausted, or the context is cancelled. Cancellation is checked
// before every attempt and during every wait.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err
	}
	return lastErr
}
