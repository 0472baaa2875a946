// Package persistence provides the data storage abstraction for conversation
// state, stage configuration, and the stage execution log.
package persistence

import (
	"context"
	"time"

	"github.com/drishiq/ddsa/pkg/models"
)

// ConversationRepository stores the durable per-thread state record.
// Load returns nil (and no error) when no record exists for the thread.
type ConversationRepository interface {
	Load(ctx context.Context, threadID string) (*models.ConversationState, error)
	Save(ctx context.Context, state *models.ConversationState) error
}

// StageConfigRepository stores the admin-managed stage pipeline configuration.
type StageConfigRepository interface {
	List(ctx context.Context) ([]*models.StageConfig, error)
	ListActive(ctx context.Context) ([]*models.StageConfig, error)
	GetByID(ctx context.Context, stageID string) (*models.StageConfig, error)
	Save(ctx context.Context, config *models.StageConfig) error
}

// ExecutionFilter narrows an execution-log query. Zero-valued fields match
// everything.
type ExecutionFilter struct {
	ThreadID  string
	ThreadIDs []string
	StageID   string
	From      *time.Time
	To        *time.Time
}

// ExecutionLogRepository is the append-only sink for stage execution records.
// Append must be durable before it returns nil. Records are never mutated.
type ExecutionLogRepository interface {
	Append(ctx context.Context, record *models.StageExecutionRecord) error
	Query(ctx context.Context, filter ExecutionFilter) ([]*models.StageExecutionRecord, error)
}

// Persistence aggregates the repositories backing the pipeline.
type Persistence interface {
	Conversations() ConversationRepository
	StageConfigs() StageConfigRepository
	ExecutionLog() ExecutionLogRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
