package main

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/time-capsule/internal/analyze"
	"github.com/sells-group/time-capsule/internal/fetcher"
	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/pipeline"
	"github.com/sells-group/time-capsule/internal/publish"
	"github.com/sells-group/time-capsule/internal/render"
	"github.com/sells-group/time-capsule/internal/store"
	"github.com/sells-group/time-capsule/internal/thread"
	anthropicpkg "github.com/sells-group/time-capsule/pkg/anthropic"
)

// initLedger opens and migrates the sqlite run ledger.
func initLedger(ctx context.Context) (store.Store, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate ledger")
	}
	return st, nil
}

func newRenderer(items *itemstore.Store) *render.Renderer {
	return render.New(items, cfg.OutputDir, render.Options{YearsBack: cfg.Pipeline.YearsBack})
}

// newPipeline wires the collaborators from cfg. withAnalyzer controls
// whether an Anthropic client is built; it needs anthropic.key.
func newPipeline(ledger store.Store, withAnalyzer bool) *pipeline.Pipeline {
	items := itemstore.New(cfg.DataDir)

	fc := cfg.Fetch
	pages := fetcher.New(fetcher.Options{
		UserAgent:      fc.UserAgent,
		Timeout:        time.Duration(fc.TimeoutSecs) * time.Second,
		MaxRetries:     fc.MaxRetries,
		BackoffUnit:    time.Duration(fc.BackoffUnitMS) * time.Millisecond,
		MaxBodyBytes:   fc.MaxBodyBytes,
		RatePerHost:    fc.RatePerHost,
		SkipHosts:      fc.SkipHosts,
		SkipExtensions: fc.SkipExtensions,
	})
	threads := thread.New(pages, thread.Options{
		BaseURL:  cfg.Thread.APIBaseURL,
		Timeout:  time.Duration(cfg.Thread.TimeoutSecs) * time.Second,
		MaxDepth: cfg.Thread.MaxDepth,
	})

	deps := pipeline.Deps{
		Items:    items,
		Ledger:   ledger,
		Pages:    pages,
		Threads:  threads,
		Renderer: newRenderer(items),
	}
	if withAnalyzer {
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, opts...)
		deps.Analyzer = analyze.NewAnthropic(client, cfg.Anthropic.MaxTokens)
	}
	return pipeline.New(cfg, deps)
}

// publishSite uploads the output directory to the configured bucket.
func publishSite(ctx context.Context) (publish.Result, error) {
	if err := cfg.Validate("publish"); err != nil {
		return publish.Result{}, err
	}
	client, err := publish.NewS3Client(ctx, cfg.Publish.Region)
	if err != nil {
		return publish.Result{}, err
	}
	return publish.New(client, cfg.Publish.Bucket, cfg.Publish.Prefix).Publish(ctx, cfg.OutputDir)
}
