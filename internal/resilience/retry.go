package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy says how many times to try a call and how long to wait between
// tries.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff returns the wait before retry n, where n starts at 1.
	Backoff func(n int) time.Duration
	// Retryable reports whether an error is worth another try. Nil means
	// IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each wait.
	OnRetry func(n int, delay time.Duration, err error)
}

// Doubling waits 2^n units before retry n: 2u, 4u, 8u, and so on.
func Doubling(attempts int, unit time.Duration) Policy {
	return Policy{
		Attempts: max(attempts, 1),
		Backoff: func(n int) time.Duration {
			return unit << min(n, 30)
		},
	}
}

// Retry calls fn until it succeeds, returns an error p does not retry, or
// p runs out of attempts. It stops early when ctx is done and returns the
// last error fn produced.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	attempts := max(p.Attempts, 1)

	var zero T
	for n := 1; ; n++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if n >= attempts || ctx.Err() != nil || !retryable(err) {
			return zero, err
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(n)
		}
		if p.OnRetry != nil {
			p.OnRetry(n, delay, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// RetryLogger returns an OnRetry hook that logs each retry.
func RetryLogger(service, operation string) func(int, time.Duration, error) {
	return func(n int, delay time.Duration, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("retry", n),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
}
