// Package store keeps the run ledger: a history of orchestrator runs, their
// stage phases, and per-item failures. The pipeline never reads it to
// decide what to skip.
package store

import (
	"context"

	"github.com/sells-group/time-capsule/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Date   string          `json:"date,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// FailureFilter specifies criteria for listing failures.
type FailureFilter struct {
	Date  string      `json:"date,omitempty"`
	RunID string      `json:"run_id,omitempty"`
	Stage model.Stage `json:"stage,omitempty"`
	Limit int         `json:"limit,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, date string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, stages []model.StageResult, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, stage model.Stage) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, status model.PhaseStatus, result *model.StageResult, errMsg string) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// Failures
	RecordFailure(ctx context.Context, f model.FailureRecord) error
	ListFailures(ctx context.Context, filter FailureFilter) ([]model.FailureRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
