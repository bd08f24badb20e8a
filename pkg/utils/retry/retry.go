package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrRetry = errors.New("retry")

// ErrExhausted is returned by Do when f keeps asking to retry.
var ErrExhausted = errors.New("retry count exhausted")

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// NoBackoff retries immediately, unless the context is done.
var NoBackoff Backoff = func(ctx context.Context) error {
	return ctx.Err()
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			i := float64(interval) * r
			interval = time.Duration(int64(i))
			return nil
		}
	}
}

// Do calls f at most `attempts` times.
//
// f is called at once. When f returns an error wrapping ErrRetry,
// Do waits for the backoff and calls f again.
//
// # Returns
//
// - T: last return value of f
//
// - error: nil if f succeeded. When all attempts are used, the last error wrapped with ErrExhausted.
// Any other error from f or from the backoff is returned as is.
func Do[T any](ctx context.Context, attempts int, b Backoff, f func() (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var last T
	var err error
	for n := 0; n < attempts; n++ {
		if 0 < n {
			if berr := b(ctx); berr != nil {
				return last, berr
			}
		}

		last, err = f()
		if err == nil {
			return last, nil
		}
		if !errors.Is(err, ErrRetry) {
			return last, err
		}
	}
	return last, fmt.Errorf("%w (%d attempts): %w", ErrExhausted, attempts, err)
}
