package analyze

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/time-capsule/internal/resilience"
)

const titleLogRunes = 50

// Task is one prompt to analyze.
type Task struct {
	ItemID string
	Title  string
	Prompt string
}

// Result is the tagged outcome of one Task. Exactly one of Response or Err
// is meaningful.
type Result struct {
	ItemID   string
	Title    string
	Response string
	Err      error
}

// OK reports whether the task produced a response.
func (r Result) OK() bool { return r.Err == nil }

// Options configures a Dispatcher.
type Options struct {
	Model   string
	Workers int
	Timeout time.Duration
	Circuit resilience.BreakerConfig
}

// Dispatcher runs analysis tasks concurrently up to a worker bound.
type Dispatcher struct {
	analyzer Analyzer
	opts     Options
	breaker  *resilience.Breaker
}

// NewDispatcher creates a Dispatcher. A non-positive worker count means 1.
func NewDispatcher(a Analyzer, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	cb := opts.Circuit
	if cb.Trips == nil {
		cb.Trips = collaboratorDown
	}
	if cb.OnChange == nil {
		cb.OnChange = func(from, to resilience.State) {
			zap.L().Warn("analyze: circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &Dispatcher{analyzer: a, opts: opts, breaker: resilience.NewBreaker(cb)}
}

// Run analyzes every task and returns results in completion order.
// onResult, when non-nil, is called once per task as it finishes; calls are
// serialized so the callback may write to shared state without locking.
// Task failures are captured in Result.Err and logged; Run never fails.
func (d *Dispatcher) Run(ctx context.Context, tasks []Task, onResult func(Result)) []Result {
	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(tasks))
	)

	g := new(errgroup.Group)
	g.SetLimit(d.opts.Workers)

	for _, task := range tasks {
		g.Go(func() error {
			res := d.runOne(ctx, task)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
			if onResult != nil {
				onResult(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) runOne(ctx context.Context, task Task) Result {
	log := zap.L().With(
		zap.String("item_id", task.ItemID),
		zap.String("title", titlePrefix(task.Title)),
	)
	res := Result{ItemID: task.ItemID, Title: task.Title}

	if err := ctx.Err(); err != nil {
		res.Err = err
		log.Warn("analyze: skipped, context done", zap.Error(err))
		return res
	}

	start := time.Now()
	tctx := withItemID(ctx, task.ItemID)
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(tctx, d.opts.Timeout)
		defer cancel()
	}

	text, err := resilience.Guard(tctx, d.breaker, func(ctx context.Context) (string, error) {
		return d.analyzer.Analyze(ctx, d.opts.Model, task.Prompt)
	})
	if err != nil {
		res.Err = err
		log.Error("analyze: task failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return res
	}

	res.Response = text
	log.Info("analyze: task complete",
		zap.Int("response_chars", len([]rune(text))),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

// collaboratorDown reports failures that say nothing about the prompt
// itself: overload, rate limiting, or a call that ran out its timeout.
func collaboratorDown(err error) bool {
	return resilience.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// Breaker exposes the dispatcher's circuit breaker.
func (d *Dispatcher) Breaker() *resilience.Breaker { return d.breaker }

func titlePrefix(title string) string {
	r := []rune(title)
	if len(r) > titleLogRunes {
		return string(r[:titleLogRunes])
	}
	return title
}

type ctxKey struct{}

func withItemID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func itemIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
