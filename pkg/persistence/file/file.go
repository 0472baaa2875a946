// Package file provides file-based persistence for conversation state, stage
// configuration, and the execution log. Intended for development and tests.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/drishiq/ddsa/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root          string
	conversations *ConversationRepository
	stages        *StageConfigRepository
	executions    *ExecutionLogRepository
}

// NewPersistence creates a file persistence layer rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		conversations: NewConversationRepository(cleanRoot),
		stages:        NewStageConfigRepository(cleanRoot),
		executions:    NewExecutionLogRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file persistence there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Conversations() persistence.ConversationRepository {
	return p.conversations
}

func (p *Persistence) StageConfigs() persistence.StageConfigRepository {
	return p.stages
}

func (p *Persistence) ExecutionLog() persistence.ExecutionLogRepository {
	return p.executions
}
