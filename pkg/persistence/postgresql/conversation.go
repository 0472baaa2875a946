package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// ConversationRepository handles conversation-state database operations.
type ConversationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *sql.DB, logger *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, logger: logger}
}

// Load returns the state record for the thread, or nil when none exists.
func (r *ConversationRepository) Load(ctx context.Context, threadID string) (*models.ConversationState, error) {
	query := `
		SELECT
			thread_id
		  , user_id
		  , tenant_id
		  , recent_messages
		  , tokens_prompt
		  , tokens_completion
		  , tokens_total
		  , current_stage
		  , completed_stages
		  , created_at
		  , last_activity
		FROM conversation_states
		WHERE thread_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, threadID)

	var (
		state          models.ConversationState
		tenantID       sql.NullString
		currentStage   sql.NullString
		messagesJSON   []byte
		completedJSON  []byte
	)

	err := row.Scan(
		&state.ThreadID,
		&state.UserID,
		&tenantID,
		&messagesJSON,
		&state.TokensUsed.Prompt,
		&state.TokensUsed.Completion,
		&state.TokensUsed.Total,
		&currentStage,
		&completedJSON,
		&state.CreatedAt,
		&state.LastActivity,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewConversationError("Load", threadID,
			fmt.Errorf("failed to scan conversation state: %w", err))
	}

	if tenantID.Valid {
		state.TenantID = tenantID.String
	}

	if currentStage.Valid {
		state.CurrentStage = &currentStage.String
	}

	err = json.Unmarshal(messagesJSON, &state.RecentMessages)
	if err != nil {
		return nil, persistence.NewConversationError("Load", threadID,
			fmt.Errorf("failed to decode recent messages: %w", err))
	}

	err = json.Unmarshal(completedJSON, &state.CompletedStages)
	if err != nil {
		return nil, persistence.NewConversationError("Load", threadID,
			fmt.Errorf("failed to decode completed stages: %w", err))
	}

	return &state, nil
}

// Save upserts the state record.
func (r *ConversationRepository) Save(ctx context.Context, state *models.ConversationState) error {
	messagesJSON, err := json.Marshal(state.RecentMessages)
	if err != nil {
		return persistence.NewConversationError("Save", state.ThreadID,
			fmt.Errorf("failed to encode recent messages: %w", err))
	}

	completedJSON, err := json.Marshal(state.CompletedStages)
	if err != nil {
		return persistence.NewConversationError("Save", state.ThreadID,
			fmt.Errorf("failed to encode completed stages: %w", err))
	}

	var tenantID sql.NullString
	if state.TenantID != "" {
		tenantID = sql.NullString{String: state.TenantID, Valid: true}
	}

	var currentStage sql.NullString
	if state.CurrentStage != nil {
		currentStage = sql.NullString{String: *state.CurrentStage, Valid: true}
	}

	query := `
		INSERT INTO conversation_states (
			thread_id, user_id, tenant_id, recent_messages,
			tokens_prompt, tokens_completion, tokens_total,
			current_stage, completed_stages, created_at, last_activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (thread_id) DO UPDATE SET
			recent_messages = EXCLUDED.recent_messages,
			tokens_prompt = EXCLUDED.tokens_prompt,
			tokens_completion = EXCLUDED.tokens_completion,
			tokens_total = EXCLUDED.tokens_total,
			current_stage = EXCLUDED.current_stage,
			completed_stages = EXCLUDED.completed_stages,
			last_activity = EXCLUDED.last_activity
	`

	_, err = r.db.ExecContext(ctx, query,
		state.ThreadID,
		state.UserID,
		tenantID,
		messagesJSON,
		state.TokensUsed.Prompt,
		state.TokensUsed.Completion,
		state.TokensUsed.Total,
		currentStage,
		completedJSON,
		state.CreatedAt,
		state.LastActivity,
	)
	if err != nil {
		return persistence.NewConversationError("Save", state.ThreadID, err)
	}

	return nil
}
