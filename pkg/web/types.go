// Package web provides HTTP request and response types for the conversation
// pipeline API.
package web

import "github.com/drishiq/ddsa/pkg/models"

// SubmitTurnRequest represents the request body for submitting a turn.
type SubmitTurnRequest struct {
	UserID   string `json:"user_id"   validate:"required"`
	TenantID string `json:"tenant_id"`
	Message  string `json:"message"`
}

// TurnResponse represents the outcome of a processed turn. Stage is empty
// when no stage was eligible for the turn.
type TurnResponse struct {
	ThreadID   string                         `json:"thread_id"`
	Stage      string                         `json:"stage,omitempty"`
	Status     models.StageStatus             `json:"status,omitempty"`
	OutputText string                         `json:"output_text,omitempty"`
	Record     *models.StageExecutionRecord   `json:"record,omitempty"`
	Skipped    []*models.StageExecutionRecord `json:"skipped,omitempty"`
}

// CreateStageRequest represents the request body for creating a stage config.
type CreateStageRequest struct {
	StageID      string         `json:"stage_id"     validate:"required,min=1"`
	StageName    string         `json:"stage_name"   validate:"required,min=1"`
	StageType    string         `json:"stage_type"   validate:"required"`
	Position     int            `json:"position"`
	IsActive     bool           `json:"is_active"`
	IsRequired   bool           `json:"is_required"`
	DryRun       bool           `json:"dry_run"`
	Dependencies []string       `json:"dependencies"`
	Config       map[string]any `json:"config"`
}

// UpdateStageRequest represents the request body for patching a stage config.
// All fields are optional to support partial updates.
type UpdateStageRequest struct {
	StageName    *string         `json:"stage_name,omitempty"   validate:"omitempty,min=1"`
	Position     *int            `json:"position,omitempty"`
	IsActive     *bool           `json:"is_active,omitempty"`
	IsRequired   *bool           `json:"is_required,omitempty"`
	DryRun       *bool           `json:"dry_run,omitempty"`
	Dependencies *[]string       `json:"dependencies,omitempty"`
	Config       *map[string]any `json:"config,omitempty"`
}

// ReplayResponse represents the outcome of a stage replay.
type ReplayResponse struct {
	ThreadID string                       `json:"thread_id"`
	Record   *models.StageExecutionRecord `json:"record"`
}
