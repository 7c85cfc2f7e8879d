// Package pipeline drives one date through fetch, prompt, analyze, parse,
// and render. Every stage skips work whose output file already exists, so a
// run can be repeated after any interruption without redoing or
// re-billing completed work.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/analyze"
	"github.com/sells-group/time-capsule/internal/config"
	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/listing"
	"github.com/sells-group/time-capsule/internal/model"
	"github.com/sells-group/time-capsule/internal/render"
	"github.com/sells-group/time-capsule/internal/store"
)

// ErrNoListing is returned when a run needs a date's listing, the listing
// is not on disk, and the fetch stage was not requested.
var ErrNoListing = eris.New("pipeline: no listing for date")

// PageFetcher downloads article pages and the front-page listing.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) model.FetchOutcome
	FetchHTML(ctx context.Context, rawURL string) (string, error)
}

// ThreadSource retrieves an item's discussion.
type ThreadSource interface {
	Fetch(ctx context.Context, itemID string) (*model.Thread, error)
}

// Deps are the collaborators a Pipeline drives. Ledger and Analyzer may be
// nil; without an Analyzer the analyze stage fails.
type Deps struct {
	Items    *itemstore.Store
	Ledger   store.Store
	Pages    PageFetcher
	Threads  ThreadSource
	Analyzer analyze.Analyzer
	Renderer *render.Renderer
}

// Pipeline orchestrates the stages for one date at a time.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
}

// New creates a new Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps}
}

// Report summarizes one RunDate call.
type Report struct {
	RunID  string              `json:"run_id,omitempty"`
	Date   string              `json:"date"`
	Items  int                 `json:"items"`
	Stages []model.StageResult `json:"stages"`
}

// run carries per-invocation state through the stages.
type run struct {
	id    string
	date  string
	items []model.Item
}

// RunDate runs the selected stages (all when none are given) for date, in
// fixed order. It fails fast if another process holds the date. Per-item
// failures are counted in the stage results, not returned.
func (p *Pipeline) RunDate(ctx context.Context, date string, stages ...model.Stage) (*Report, error) {
	log := zap.L().With(zap.String("date", date))
	selected := selectStages(stages)
	report := &Report{Date: date}

	r := &run{date: date}
	if p.deps.Ledger != nil {
		lr, err := p.deps.Ledger.CreateRun(ctx, date)
		if err != nil {
			log.Warn("pipeline: failed to create ledger run", zap.Error(err))
		} else {
			r.id = lr.ID
			report.RunID = lr.ID
		}
	}

	finish := func(status model.RunStatus, runErr error) {
		if p.deps.Ledger == nil || r.id == "" {
			return
		}
		msg := ""
		if runErr != nil {
			msg = runErr.Error()
		}
		if err := p.deps.Ledger.FinishRun(context.WithoutCancel(ctx), r.id, status, report.Stages, msg); err != nil {
			log.Warn("pipeline: failed to finish ledger run", zap.Error(err))
		}
	}

	unlock, err := p.deps.Items.Lock(date)
	if err != nil {
		finish(model.RunStatusFailed, err)
		return report, err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Warn("pipeline: unlock failed", zap.Error(err))
		}
	}()

	log.Info("pipeline: starting", zap.Strings("stages", stageNames(selected)))

	items, err := p.loadListing(ctx, date, contains(selected, model.StageFetch))
	if err != nil {
		finish(model.RunStatusFailed, err)
		return report, err
	}
	r.items = items
	report.Items = len(items)

	for _, st := range selected {
		res, err := p.trackStage(ctx, r, st)
		report.Stages = append(report.Stages, res)
		if err == nil && ctx.Err() != nil {
			err = eris.Wrapf(ctx.Err(), "pipeline: interrupted during %s", st)
		}
		if err != nil {
			finish(model.RunStatusFailed, err)
			return report, err
		}
	}

	finish(model.RunStatusComplete, nil)
	log.Info("pipeline: complete", zap.Int("items", len(items)))
	return report, nil
}

// trackStage runs one stage and records it as a ledger phase.
func (p *Pipeline) trackStage(ctx context.Context, r *run, st model.Stage) (model.StageResult, error) {
	log := zap.L().With(zap.String("date", r.date), zap.String("stage", string(st)))

	var phase *model.RunPhase
	if p.deps.Ledger != nil && r.id != "" {
		ph, err := p.deps.Ledger.CreatePhase(ctx, r.id, st)
		if err != nil {
			log.Warn("pipeline: failed to create phase", zap.Error(err))
		}
		phase = ph
	}

	start := time.Now()
	var (
		res model.StageResult
		err error
	)
	switch st {
	case model.StageFetch:
		res = p.fetchStage(ctx, r)
	case model.StagePrompt:
		res = p.promptStage(ctx, r)
	case model.StageAnalyze:
		res, err = p.analyzeStage(ctx, r)
	case model.StageParse:
		res, err = p.parseStage(ctx, r)
	case model.StageRender:
		res, err = p.renderStage(r)
	default:
		err = eris.Errorf("pipeline: unknown stage %q", st)
	}
	res.Stage = st
	res.Duration = time.Since(start).Milliseconds()

	status := model.PhaseStatusComplete
	msg := ""
	if err != nil {
		status = model.PhaseStatusFailed
		msg = err.Error()
		log.Error("pipeline: stage failed",
			zap.Int64("duration_ms", res.Duration),
			zap.Error(err),
		)
	} else {
		log.Info("pipeline: stage complete",
			zap.Int("processed", res.Processed),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
			zap.Int64("duration_ms", res.Duration),
		)
	}

	if phase != nil {
		if cerr := p.deps.Ledger.CompletePhase(context.WithoutCancel(ctx), phase.ID, status, &res, msg); cerr != nil {
			log.Warn("pipeline: failed to complete phase", zap.Error(cerr))
		}
	}
	return res, err
}

// loadListing reads frontpage.json, fetching and saving it first when it
// is absent and fetching is allowed. The configured limit is applied to
// the in-memory list only.
func (p *Pipeline) loadListing(ctx context.Context, date string, allowFetch bool) ([]model.Item, error) {
	st := p.deps.Items
	if !st.Has(date, "", itemstore.FileListing) {
		if !allowFetch {
			return nil, eris.Wrapf(ErrNoListing, "date %s", date)
		}
		items, err := listing.Fetch(ctx, p.deps.Pages, p.cfg.Listing.BaseURL, date)
		if err != nil {
			return nil, err
		}
		if err := st.SaveListing(date, items); err != nil && !errors.Is(err, itemstore.ErrExists) {
			return nil, eris.Wrap(err, "pipeline: save listing")
		}
	}

	items, err := st.LoadListing(date)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load listing")
	}
	if n := p.cfg.Listing.Limit; n > 0 && len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// recordFailure adds a per-item failure to the ledger, if there is one.
func (p *Pipeline) recordFailure(ctx context.Context, r *run, id string, st model.Stage, class model.FailureClass, reason string) {
	if p.deps.Ledger == nil || r.id == "" {
		return
	}
	err := p.deps.Ledger.RecordFailure(ctx, model.FailureRecord{
		RunID:  r.id,
		Date:   r.date,
		ItemID: id,
		Stage:  st,
		Class:  class,
		Reason: reason,
	})
	if err != nil {
		zap.L().Warn("pipeline: failed to record failure",
			zap.String("date", r.date),
			zap.String("item_id", id),
			zap.Error(err),
		)
	}
}

// selectStages returns the requested stages in execution order.
func selectStages(stages []model.Stage) []model.Stage {
	if len(stages) == 0 {
		return model.AllStages()
	}
	var out []model.Stage
	for _, st := range model.AllStages() {
		if contains(stages, st) {
			out = append(out, st)
		}
	}
	return out
}

func contains(stages []model.Stage, st model.Stage) bool {
	for _, s := range stages {
		if s == st {
			return true
		}
	}
	return false
}

func stageNames(stages []model.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
