package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/extract"
	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/model"
	"github.com/sells-group/time-capsule/internal/resilience"
)

// fetchStage writes meta.json, the article body or its failure reason, and
// comments.json for every item, skipping whatever already exists. Items
// are processed one at a time in listing order.
func (p *Pipeline) fetchStage(ctx context.Context, r *run) model.StageResult {
	var res model.StageResult
	st := p.deps.Items

	for _, it := range r.items {
		if ctx.Err() != nil {
			break
		}
		log := zap.L().With(zap.String("date", r.date), zap.String("item_id", it.ItemID))
		did, failed := false, false

		if !st.Has(r.date, it.ItemID, itemstore.FileMeta) {
			if err := st.WriteJSONOnce(r.date, it.ItemID, itemstore.FileMeta, it); err != nil && !errors.Is(err, itemstore.ErrExists) {
				log.Error("pipeline: write meta", zap.Error(err))
				res.Failed++
				continue
			}
			did = true
		}

		if !st.HasOutcome(r.date, it.ItemID) {
			out, ok := p.fetchArticle(ctx, it)
			if !ok {
				// Interrupted; leave the outcome absent for the next run.
				break
			}
			if err := st.SaveOutcome(r.date, it.ItemID, out); err != nil && !errors.Is(err, itemstore.ErrExists) {
				log.Error("pipeline: write article", zap.Error(err))
				failed = true
			} else if !out.OK {
				log.Warn("pipeline: article not fetched", zap.String("url", it.SourceURL), zap.String("reason", out.Reason))
				p.recordFailure(ctx, r, it.ItemID, model.StageFetch, model.FailurePermanent, out.Reason)
				failed = true
			}
			did = true
		}

		if !st.Has(r.date, it.ItemID, itemstore.FileComments) {
			did = true
			t, err := p.deps.Threads.Fetch(ctx, it.ItemID)
			if err != nil && ctx.Err() != nil {
				break
			}
			if err != nil {
				// comments.json stays absent so the next run retries.
				log.Warn("pipeline: thread fetch failed", zap.Error(err))
				p.recordFailure(ctx, r, it.ItemID, model.StageFetch, model.FailureClass(resilience.ClassifyError(err)), err.Error())
				failed = true
			} else if err := st.WriteJSONOnce(r.date, it.ItemID, itemstore.FileComments, t.Comments()); err != nil && !errors.Is(err, itemstore.ErrExists) {
				log.Error("pipeline: write comments", zap.Error(err))
				failed = true
			} else {
				log.Debug("pipeline: comments saved", zap.Int("comments", t.Len()))
			}
		}

		switch {
		case failed:
			res.Failed++
		case did:
			res.Processed++
		default:
			res.Skipped++
		}
	}
	return res
}

// fetchArticle downloads and extracts one item's article. It reports false
// when ctx ended during the download, in which case nothing should be saved.
func (p *Pipeline) fetchArticle(ctx context.Context, it model.Item) (model.FetchOutcome, bool) {
	out := p.deps.Pages.Fetch(ctx, it.SourceURL)
	if ctx.Err() != nil {
		return model.FetchOutcome{}, false
	}
	if !out.OK {
		return out, true
	}
	text, err := extract.Article(out.Body, it.SourceURL, p.extractOptions())
	if err != nil {
		return model.Failure(extract.ErrTooShort.Error()), true
	}
	return model.Success(text), true
}

func (p *Pipeline) extractOptions() extract.Options {
	c := p.cfg.Extract
	return extract.Options{
		MinChars:      c.MinChars,
		MaxChars:      c.MaxChars,
		LookbackChars: c.LookbackChars,
		Readability:   c.ReadabilityFallback,
	}
}
