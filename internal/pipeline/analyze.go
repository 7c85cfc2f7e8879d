package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/analyze"
	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/model"
	"github.com/sells-group/time-capsule/internal/resilience"
)

// analyzeStage sends every prompt that has no response yet to the
// analyzer. Each response is written as soon as it arrives.
func (p *Pipeline) analyzeStage(ctx context.Context, r *run) (model.StageResult, error) {
	var res model.StageResult
	st := p.deps.Items

	var tasks []analyze.Task
	for _, it := range r.items {
		if !st.Has(r.date, it.ItemID, itemstore.FilePrompt) || st.Has(r.date, it.ItemID, itemstore.FileResponse) {
			res.Skipped++
			continue
		}
		b, err := st.Read(r.date, it.ItemID, itemstore.FilePrompt)
		if err != nil {
			zap.L().Error("pipeline: read prompt",
				zap.String("date", r.date),
				zap.String("item_id", it.ItemID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		tasks = append(tasks, analyze.Task{ItemID: it.ItemID, Title: it.Title, Prompt: string(b)})
	}

	if len(tasks) == 0 {
		return res, nil
	}
	if p.deps.Analyzer == nil {
		return res, eris.New("pipeline: analyze stage needs an analyzer")
	}

	c := p.cfg.Analyze
	d := analyze.NewDispatcher(p.deps.Analyzer, analyze.Options{
		Model:   p.cfg.Anthropic.Model,
		Workers: c.Workers,
		Timeout: time.Duration(c.TimeoutSecs) * time.Second,
		Circuit: resilience.BreakerFromConfig(c.CircuitFailureThreshold, c.CircuitResetSecs),
	})

	d.Run(ctx, tasks, func(out analyze.Result) {
		if !out.OK() {
			p.recordFailure(ctx, r, out.ItemID, model.StageAnalyze,
				model.FailureClass(resilience.ClassifyError(out.Err)), out.Err.Error())
			res.Failed++
			return
		}
		err := st.WriteOnce(r.date, out.ItemID, itemstore.FileResponse, []byte(out.Response))
		switch {
		case err == nil:
			res.Processed++
		case errors.Is(err, itemstore.ErrExists):
			res.Skipped++
		default:
			zap.L().Error("pipeline: write response",
				zap.String("date", r.date),
				zap.String("item_id", out.ItemID),
				zap.Error(err),
			)
			res.Failed++
		}
	})
	return res, nil
}
