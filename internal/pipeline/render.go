package pipeline

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/time-capsule/internal/model"
)

// renderStage renders every date on disk and the index so neighbor links
// pick up the new page. Failing to render the run's own date fails the stage.
func (p *Pipeline) renderStage(r *run) (model.StageResult, error) {
	var res model.StageResult
	if p.deps.Renderer == nil {
		return res, eris.New("pipeline: render stage needs a renderer")
	}

	dates, err := p.deps.Items.Dates()
	if err != nil {
		return res, err
	}

	done, err := p.deps.Renderer.All()
	res.Processed = len(done)
	res.Failed = len(dates) - len(done)
	if err != nil {
		return res, err
	}
	if !slices.Contains(done, r.date) {
		return res, eris.Errorf("pipeline: render %s failed", r.date)
	}
	return res, nil
}
