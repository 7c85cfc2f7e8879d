package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/model"
	"github.com/sells-group/time-capsule/internal/prompt"
)

// promptStage writes prompt.md for every item whose fetch markers
// (meta.json, an article outcome, comments.json) all exist and that has no
// prompt yet. Items whose article fetch failed are left out unless
// pipeline.analyze_failed_fetches is set.
func (p *Pipeline) promptStage(ctx context.Context, r *run) model.StageResult {
	var res model.StageResult
	st := p.deps.Items

	for _, it := range r.items {
		log := zap.L().With(zap.String("date", r.date), zap.String("item_id", it.ItemID))

		if st.Has(r.date, it.ItemID, itemstore.FilePrompt) {
			res.Skipped++
			continue
		}
		if !st.Has(r.date, it.ItemID, itemstore.FileMeta) ||
			!st.HasOutcome(r.date, it.ItemID) ||
			!st.Has(r.date, it.ItemID, itemstore.FileComments) {
			// Fetch is incomplete; the prompt waits for a later run.
			log.Debug("pipeline: fetch incomplete, skipping prompt")
			res.Skipped++
			continue
		}

		meta, err := st.LoadMeta(r.date, it.ItemID)
		if err != nil {
			log.Error("pipeline: read meta", zap.Error(err))
			p.recordFailure(ctx, r, it.ItemID, model.StagePrompt, model.FailurePermanent, err.Error())
			res.Failed++
			continue
		}

		out, ok, err := st.LoadOutcome(r.date, it.ItemID)
		if err != nil || !ok {
			log.Error("pipeline: read article", zap.Error(err))
			res.Failed++
			continue
		}
		if !out.OK && !p.cfg.Pipeline.AnalyzeFailedFetches {
			res.Skipped++
			continue
		}

		comments, err := st.LoadComments(r.date, it.ItemID)
		if err != nil {
			log.Error("pipeline: read comments", zap.Error(err))
			res.Failed++
			continue
		}

		text := prompt.Build(prompt.Input{
			Item:      meta,
			Outcome:   out,
			Thread:    model.NewThread(comments, p.cfg.Thread.MaxDepth),
			YearsBack: p.cfg.Pipeline.YearsBack,
		})
		if err := st.WriteOnce(r.date, it.ItemID, itemstore.FilePrompt, []byte(text)); err != nil {
			if errors.Is(err, itemstore.ErrExists) {
				res.Skipped++
				continue
			}
			log.Error("pipeline: write prompt", zap.Error(err))
			res.Failed++
			continue
		}
		res.Processed++
	}
	return res
}
