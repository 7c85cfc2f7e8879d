package model

import "time"

// Stage names a pipeline stage. Order is fixed: fetch, prompt, analyze,
// parse, render.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StagePrompt  Stage = "prompt"
	StageAnalyze Stage = "analyze"
	StageParse   Stage = "parse"
	StageRender  Stage = "render"
)

// AllStages returns every stage in execution order.
func AllStages() []Stage {
	return []Stage{StageFetch, StagePrompt, StageAnalyze, StageParse, StageRender}
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, bool) {
	for _, st := range AllStages() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// StageResult counts what a stage did for one date.
type StageResult struct {
	Stage     Stage `json:"stage"`
	Processed int   `json:"processed"`
	Skipped   int   `json:"skipped"`
	Failed    int   `json:"failed"`
	Duration  int64 `json:"duration_ms"`
}

// RunStatus represents the current state of a ledger run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one orchestrator invocation for a date, as recorded in the run
// ledger. It is history only; stage progress lives in the item store.
type Run struct {
	ID        string        `json:"id"`
	Date      string        `json:"date"`
	Status    RunStatus     `json:"status"`
	Stages    []StageResult `json:"stages,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PhaseStatus represents the current state of a ledger phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// RunPhase is one stage execution within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Stage     Stage        `json:"stage"`
	Status    PhaseStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// FailureClass tags a recorded failure as worth retrying or not.
type FailureClass string

const (
	FailureTransient FailureClass = "transient"
	FailurePermanent FailureClass = "permanent"
)

// FailureRecord is one per-item stage failure kept in the run ledger for audit.
// Recording a failure never changes what the next run will retry.
type FailureRecord struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Date      string       `json:"date"`
	ItemID    string       `json:"item_id"`
	Stage     Stage        `json:"stage"`
	Class     FailureClass `json:"class"`
	Reason    string       `json:"reason"`
	CreatedAt time.Time    `json:"created_at"`
}
