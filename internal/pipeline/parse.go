package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/grades"
	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/model"
)

// parseStage derives grades.json and score.json from each response, then
// rebuilds the date's all_grades.json from every grades.json present.
func (p *Pipeline) parseStage(_ context.Context, r *run) (model.StageResult, error) {
	var res model.StageResult
	st := p.deps.Items

	for _, it := range r.items {
		log := zap.L().With(zap.String("date", r.date), zap.String("item_id", it.ItemID))

		if !st.Has(r.date, it.ItemID, itemstore.FileResponse) {
			res.Skipped++
			continue
		}
		needGrades := !st.Has(r.date, it.ItemID, itemstore.FileGrades)
		needScore := !st.Has(r.date, it.ItemID, itemstore.FileScore)
		if !needGrades && !needScore {
			res.Skipped++
			continue
		}

		b, err := st.Read(r.date, it.ItemID, itemstore.FileResponse)
		if err != nil {
			log.Error("pipeline: read response", zap.Error(err))
			res.Failed++
			continue
		}
		text := string(b)

		ok := true
		if needGrades {
			if err := writeJSONOnce(st, r.date, it.ItemID, itemstore.FileGrades, grades.Parse(text)); err != nil {
				log.Error("pipeline: write grades", zap.Error(err))
				ok = false
			}
		}
		if needScore {
			score := model.Score{Interestingness: grades.InterestScore(text)}
			if err := writeJSONOnce(st, r.date, it.ItemID, itemstore.FileScore, score); err != nil {
				log.Error("pipeline: write score", zap.Error(err))
				ok = false
			}
		}
		if ok {
			res.Processed++
		} else {
			res.Failed++
		}
	}

	if err := p.rebuildAllGrades(r); err != nil {
		return res, err
	}
	return res, nil
}

// rebuildAllGrades rewrites all_grades.json from the per-item grade files.
func (p *Pipeline) rebuildAllGrades(r *run) error {
	st := p.deps.Items
	order := make([]string, 0, len(r.items))
	perItem := make(map[string]map[string]model.Grade, len(r.items))

	for _, it := range r.items {
		if !st.Has(r.date, it.ItemID, itemstore.FileGrades) {
			continue
		}
		var gs map[string]model.Grade
		if err := st.ReadJSON(r.date, it.ItemID, itemstore.FileGrades, &gs); err != nil {
			zap.L().Warn("pipeline: unreadable grades, leaving out of aggregate",
				zap.String("date", r.date),
				zap.String("item_id", it.ItemID),
				zap.Error(err),
			)
			continue
		}
		order = append(order, it.ItemID)
		perItem[it.ItemID] = gs
	}

	all := grades.Aggregate(order, perItem)
	if err := st.ReplaceJSON(r.date, "", itemstore.FileAllGrades, all); err != nil {
		return eris.Wrap(err, "pipeline: write all_grades")
	}
	zap.L().Info("pipeline: aggregated grades",
		zap.String("date", r.date),
		zap.Int("items", len(order)),
		zap.Int("users", len(all)),
	)
	return nil
}

func writeJSONOnce(st *itemstore.Store, date, id, name string, v any) error {
	if err := st.WriteJSONOnce(date, id, name, v); err != nil && !errors.Is(err, itemstore.ErrExists) {
		return err
	}
	return nil
}
