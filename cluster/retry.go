package cluster

import (
	"context"
	"time"
)

// RetryPolicy configures the Retry Harness: Interval between attempts,
// and MaxRetries (0 means unbounded — the harness retries until the
// operation succeeds or the context is cancelled).
type RetryPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// Retry wraps op with the bounded/unbounded retry convention of spec.md
// §4.3: op returns (result, success). On success the full result returns
// immediately. On failure the harness sleeps Interval and retries. When
// MaxRetries is positive and reached, the last result is returned even if
// it is a failure. Retry never panics; it surfaces the last result to the
// caller. This collapses the source's decorator-based "success from tuple
// first element" convention into an explicit generic, per spec.md §9.
//
// Retry is cancellable: ctx cancellation during the interval sleep
// returns the last result immediately, so no retry loop can outlive an
// orderly shutdown.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, bool)) (T, bool) {
	var last T
	var ok bool
	attempt := 0
	for {
		last, ok = op()
		if ok {
			return last, true
		}
		attempt++
		if policy.MaxRetries > 0 && attempt >= policy.MaxRetries {
			return last, false
		}
		select {
		case <-ctx.Done():
			return last, false
		case <-time.After(policy.Interval):
		}
	}
}
