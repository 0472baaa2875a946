package models

import "time"

// StageConfig describes one named step of the guided-conversation pipeline.
// Configs are admin-managed and shared across all conversations; the engine
// treats them as read-only at execution time.
type StageConfig struct {
	StageID      string         `json:"stage_id"     validate:"required"`
	StageName    string         `json:"stage_name"   validate:"required,min=1"`
	StageType    string         `json:"stage_type"   validate:"required"`
	Position     int            `json:"position"`
	IsActive     bool           `json:"is_active"`
	IsRequired   bool           `json:"is_required"`
	DryRun       bool           `json:"dry_run"`
	Dependencies []string       `json:"dependencies"`
	Config       map[string]any `json:"config,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// StageConfigPatch carries a partial admin update to a stage config.
// Nil fields are left unchanged.
type StageConfigPatch struct {
	StageName    *string         `json:"stage_name,omitempty"   validate:"omitempty,min=1"`
	Position     *int            `json:"position,omitempty"`
	IsActive     *bool           `json:"is_active,omitempty"`
	IsRequired   *bool           `json:"is_required,omitempty"`
	DryRun       *bool           `json:"dry_run,omitempty"`
	Dependencies *[]string       `json:"dependencies,omitempty"`
	Config       *map[string]any `json:"config,omitempty"`
}

// Apply merges the patch into a copy of the config and returns it.
func (p StageConfigPatch) Apply(cfg StageConfig) StageConfig {
	if p.StageName != nil {
		cfg.StageName = *p.StageName
	}

	if p.Position != nil {
		cfg.Position = *p.Position
	}

	if p.IsActive != nil {
		cfg.IsActive = *p.IsActive
	}

	if p.IsRequired != nil {
		cfg.IsRequired = *p.IsRequired
	}

	if p.DryRun != nil {
		cfg.DryRun = *p.DryRun
	}

	if p.Dependencies != nil {
		cfg.Dependencies = *p.Dependencies
	}

	if p.Config != nil {
		cfg.Config = *p.Config
	}

	return cfg
}
