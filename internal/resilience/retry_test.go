package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast(attempts int) Policy {
	return Doubling(attempts, time.Microsecond)
}

func TestRetry_FirstTry(t *testing.T) {
	var calls int
	v, err := Retry(context.Background(), fast(3), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	var calls int
	v, err := Retry(context.Background(), fast(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("temporary"), 503)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetry_Exhausts(t *testing.T) {
	var calls int
	v, err := Retry(context.Background(), fast(3), func(context.Context) (int, error) {
		calls++
		return 9, NewTransientError(errors.New("always"), 500)
	})
	require.Error(t, err)
	assert.Zero(t, v)
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), fast(3), func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: 404}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Doubling(5, 20*time.Millisecond)

	var calls int
	_, err := Retry(ctx, p, func(context.Context) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, NewTransientError(errors.New("fail"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_CustomRetryable(t *testing.T) {
	p := fast(3)
	p.Retryable = func(err error) bool { return StatusCode(err) == 403 }

	var calls int
	_, err := Retry(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: 403}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	_, _ = Retry(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: 503}
	})
	assert.Equal(t, 1, calls)
}

func TestDoubling_Delays(t *testing.T) {
	p := Doubling(4, time.Millisecond)

	var retries []int
	var delays []time.Duration
	p.OnRetry = func(n int, d time.Duration, _ error) {
		retries = append(retries, n)
		delays = append(delays, d)
	}
	_, _ = Retry(context.Background(), p, func(context.Context) (int, error) {
		return 0, NewTransientError(errors.New("fail"), 500)
	})

	assert.Equal(t, []int{1, 2, 3}, retries)
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond}, delays)
	assert.Equal(t, 32*time.Second, Doubling(6, time.Second).Backoff(5))
	assert.Equal(t, 1, Doubling(0, time.Second).Attempts)
}

func TestRetryLogger(t *testing.T) {
	RetryLogger("http", "get")(1, time.Second, errors.New("test error"))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "transient", ClassifyError(NewTransientError(errors.New("x"), 503)))
	assert.Equal(t, "permanent", ClassifyError(errors.New("bad request")))
}
