package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// ConversationRepository stores one JSON document per thread.
type ConversationRepository struct {
	root string
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(root string) *ConversationRepository {
	return &ConversationRepository{root: root}
}

func (r *ConversationRepository) dir() string {
	return filepath.Join(r.root, "conversations")
}

func (r *ConversationRepository) path(threadID string) string {
	return filepath.Join(r.dir(), threadID+".json")
}

// Load returns the state record for the thread, or nil when none exists.
func (r *ConversationRepository) Load(_ context.Context, threadID string) (*models.ConversationState, error) {
	data, err := os.ReadFile(r.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewConversationError("Load", threadID, err)
	}

	var state models.ConversationState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, persistence.NewConversationError("Load", threadID,
			fmt.Errorf("failed to decode conversation state: %w", err))
	}

	return &state, nil
}

// Save writes the state record durably. The write replaces the previous
// document atomically via a rename.
func (r *ConversationRepository) Save(_ context.Context, state *models.ConversationState) error {
	err := os.MkdirAll(r.dir(), 0o755)
	if err != nil {
		return persistence.NewConversationError("Save", state.ThreadID, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return persistence.NewConversationError("Save", state.ThreadID,
			fmt.Errorf("failed to encode conversation state: %w", err))
	}

	tmp := r.path(state.ThreadID) + ".tmp"

	err = os.WriteFile(tmp, data, 0o644)
	if err != nil {
		return persistence.NewConversationError("Save", state.ThreadID, err)
	}

	err = os.Rename(tmp, r.path(state.ThreadID))
	if err != nil {
		return persistence.NewConversationError("Save", state.ThreadID, err)
	}

	return nil
}
