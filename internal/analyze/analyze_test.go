package analyze

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/time-capsule/internal/resilience"
	"github.com/sells-group/time-capsule/pkg/anthropic"
	"github.com/sells-group/time-capsule/pkg/anthropic/mocks"
)

func tasks(n int) []Task {
	out := make([]Task, n)
	for i := range out {
		out[i] = Task{ItemID: fmt.Sprintf("%d", i+1), Title: fmt.Sprintf("Story %d", i+1), Prompt: fmt.Sprintf("prompt %d", i+1)}
	}
	return out
}

func TestDispatcher_AllSucceed(t *testing.T) {
	a := AnalyzerFunc(func(_ context.Context, model, prompt string) (string, error) {
		assert.Equal(t, "m", model)
		return "resp for " + prompt, nil
	})
	d := NewDispatcher(a, Options{Model: "m", Workers: 3})

	var seen int
	results := d.Run(context.Background(), tasks(7), func(Result) { seen++ })
	require.Len(t, results, 7)
	assert.Equal(t, 7, seen)

	byID := map[string]Result{}
	for _, r := range results {
		byID[r.ItemID] = r
	}
	for i := 1; i <= 7; i++ {
		r := byID[fmt.Sprintf("%d", i)]
		require.True(t, r.OK())
		assert.Equal(t, fmt.Sprintf("resp for prompt %d", i), r.Response)
		assert.Equal(t, fmt.Sprintf("Story %d", i), r.Title)
	}
}

func TestDispatcher_FailureIsolated(t *testing.T) {
	a := AnalyzerFunc(func(_ context.Context, _, prompt string) (string, error) {
		if prompt == "prompt 2" {
			return "", errors.New("bad request")
		}
		return "ok", nil
	})
	d := NewDispatcher(a, Options{Workers: 2})

	results := d.Run(context.Background(), tasks(4), nil)
	require.Len(t, results, 4)

	var failed []string
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r.ItemID)
			assert.Empty(t, r.Response)
		}
	}
	assert.Equal(t, []string{"2"}, failed)
}

func TestDispatcher_RespectsWorkerBound(t *testing.T) {
	var inFlight, peak int32
	a := AnalyzerFunc(func(context.Context, string, string) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "ok", nil
	})
	d := NewDispatcher(a, Options{Workers: 2})

	results := d.Run(context.Background(), tasks(8), nil)
	assert.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDispatcher_CompletionOrder(t *testing.T) {
	a := AnalyzerFunc(func(_ context.Context, _, prompt string) (string, error) {
		if prompt == "prompt 1" {
			time.Sleep(50 * time.Millisecond)
		}
		return prompt, nil
	})
	d := NewDispatcher(a, Options{Workers: 2})

	results := d.Run(context.Background(), tasks(2), nil)
	require.Len(t, results, 2)
	assert.Equal(t, "2", results[0].ItemID)
	assert.Equal(t, "1", results[1].ItemID)
}

func TestDispatcher_Timeout(t *testing.T) {
	a := AnalyzerFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	d := NewDispatcher(a, Options{Workers: 1, Timeout: 10 * time.Millisecond})

	results := d.Run(context.Background(), tasks(1), nil)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestDispatcher_CircuitOpensOnConsecutiveOutages(t *testing.T) {
	var calls int32
	a := AnalyzerFunc(func(context.Context, string, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", resilience.NewTransientError(errors.New("overloaded"), 529)
	})
	d := NewDispatcher(a, Options{
		Workers: 1,
		Circuit: resilience.BreakerFromConfig(2, 60),
	})

	results := d.Run(context.Background(), tasks(5), nil)
	require.Len(t, results, 5)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	for _, r := range results[2:] {
		assert.ErrorIs(t, r.Err, resilience.ErrCircuitOpen)
	}
	assert.Equal(t, resilience.Open, d.Breaker().State())
}

func TestDispatcher_PermanentErrorsDoNotTrip(t *testing.T) {
	a := AnalyzerFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("invalid prompt")
	})
	d := NewDispatcher(a, Options{Workers: 1, Circuit: resilience.BreakerFromConfig(1, 60)})

	results := d.Run(context.Background(), tasks(3), nil)
	for _, r := range results {
		assert.NotErrorIs(t, r.Err, resilience.ErrCircuitOpen)
	}
	assert.Equal(t, resilience.Closed, d.Breaker().State())
}

func TestDispatcher_CanceledContext(t *testing.T) {
	var calls int32
	a := AnalyzerFunc(func(context.Context, string, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewDispatcher(a, Options{Workers: 2}).Run(ctx, tasks(3), nil)
	assert.Len(t, results, 3)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDispatcher_Empty(t *testing.T) {
	d := NewDispatcher(AnalyzerFunc(func(context.Context, string, string) (string, error) {
		t.Fatal("should not be called")
		return "", nil
	}), Options{})
	assert.Empty(t, d.Run(context.Background(), nil, nil))
}

func TestTitlePrefix(t *testing.T) {
	assert.Equal(t, "short", titlePrefix("short"))
	long := "äöü" + "0123456789012345678901234567890123456789012345678901234"
	got := titlePrefix(long)
	assert.Len(t, []rune(got), 50)
	assert.True(t, len(got) > 50, "prefix is cut on runes, not bytes")
}

func TestAnthropic_Analyze(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Complete", mock.Anything, anthropic.Request{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 16000,
		Prompt:    "the prompt",
	}).Return(&anthropic.Completion{
		Text:  "part one, part two",
		Usage: anthropic.Usage{Input: 100, Output: 20},
	}, nil)

	a := NewAnthropic(client, 16000)
	out, err := a.Analyze(withItemID(context.Background(), "42"), "claude-sonnet-4-5-20250929", "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "part one, part two", out)
}

func TestAnthropic_TruncatedStillReturned(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Complete", mock.Anything, mock.Anything).
		Return(&anthropic.Completion{Text: "half an answ", StopReason: anthropic.StopMaxTokens}, nil)

	out, err := NewAnthropic(client, 10).Analyze(context.Background(), "m", "p")
	require.NoError(t, err)
	assert.Equal(t, "half an answ", out)
}

func TestAnthropic_OverloadIsTransient(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Complete", mock.Anything, mock.Anything).
		Return(nil, &sdk.Error{StatusCode: 529})

	_, err := NewAnthropic(client, 100).Analyze(context.Background(), "m", "p")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, 529, resilience.StatusCode(err))
}

func TestAnthropic_OtherErrorIsPermanent(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Complete", mock.Anything, mock.Anything).
		Return(nil, errors.New("invalid_request_error"))

	_, err := NewAnthropic(client, 100).Analyze(context.Background(), "m", "p")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "analyze: create message")
}
