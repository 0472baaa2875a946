package models

import "time"

// StageStatus is the terminal status of one stage execution attempt.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageExecutionRecord is an immutable audit entry describing one attempt to
// execute one stage for one thread. The ordered sequence of records for a
// thread reconstructs its stage-execution timeline.
type StageExecutionRecord struct {
	ID           string         `json:"id"`
	ThreadID     string         `json:"thread_id" validate:"required"`
	StageID      string         `json:"stage_id"  validate:"required"`
	StartedAt    time.Time      `json:"started_at"`
	Status       StageStatus    `json:"status"    validate:"required,oneof=completed failed skipped"`
	DurationMs   int64          `json:"duration_ms"`
	TokensIn     int64          `json:"tokens_in"`
	TokensOut    int64          `json:"tokens_out"`
	CostUSD      float64        `json:"cost_usd"`
	RetryCount   int            `json:"retry_count"`
	DryRun       bool           `json:"dry_run"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}
