package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drishiq/ddsa/pkg/engine"
	"github.com/drishiq/ddsa/pkg/eventbus"
	"github.com/drishiq/ddsa/pkg/events"
	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
	"github.com/drishiq/ddsa/pkg/session"
)

// Conversation exposes thread-level operations: turn intake, state reads,
// and session reset.
type Conversation struct {
	persistence persistence.Persistence
	sessions    *session.Manager
	engine      *engine.Engine
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewConversation creates a new conversation service.
func NewConversation(
	p persistence.Persistence,
	sessions *session.Manager,
	eng *engine.Engine,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Conversation {
	return &Conversation{
		persistence: p,
		sessions:    sessions,
		engine:      eng,
		publisher:   publisher,
		logger:      logger.With("module", "conversation-service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (c *Conversation) HealthCheck(ctx context.Context) (string, bool) {
	if c.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := c.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// SubmitTurnRequest is one inbound client turn.
type SubmitTurnRequest struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Message  string `json:"message"`
}

// SubmitTurn validates and executes one conversation turn through the engine.
func (c *Conversation) SubmitTurn(ctx context.Context, req SubmitTurnRequest) (*engine.TurnResult, error) {
	if req.ThreadID == "" {
		return nil, &ServiceError{Op: "SubmitTurn", Err: ErrEmptyThreadID}
	}

	if req.UserID == "" {
		return nil, &ServiceError{Op: "SubmitTurn", Err: ErrEmptyUserID}
	}

	return c.engine.ExecuteTurn(ctx, req.ThreadID, req.UserID, req.TenantID, req.Message)
}

// GetState returns a snapshot of the thread's conversation state.
func (c *Conversation) GetState(ctx context.Context, threadID string) (*models.ConversationState, error) {
	if threadID == "" {
		return nil, &ServiceError{Op: "GetState", Err: ErrEmptyThreadID}
	}

	state, err := c.persistence.Conversations().Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}

	if state == nil {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrThreadNotFound)
	}

	return state, nil
}

// Reset clears the thread's messages, counters, and stage progress while
// preserving its identity. The execution log is untouched.
func (c *Conversation) Reset(ctx context.Context, threadID string) error {
	if threadID == "" {
		return &ServiceError{Op: "Reset", Err: ErrEmptyThreadID}
	}

	err := c.sessions.WithThread(ctx, threadID, func(store *session.Store) error {
		err := store.InitExisting(ctx)
		if err != nil {
			return err
		}

		return store.Reset(ctx)
	})
	if err != nil {
		return err
	}

	if c.publisher != nil {
		err = c.publisher.Publish(ctx, threadID, events.SessionReset{
			BaseEvent: events.BaseEvent{
				ID:        uuid.NewString(),
				Type:      events.SessionResetEvent,
				Timestamp: time.Now().UTC(),
				ThreadID:  threadID,
			},
		})
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to publish session reset event", "thread_id", threadID, "error", err)
		}
	}

	c.logger.InfoContext(ctx, "Session reset", "thread_id", threadID)

	return nil
}

// Replay re-executes a stage for an existing thread, optionally in dry-run
// mode.
func (c *Conversation) Replay(ctx context.Context, threadID, stageID string, dryRun bool) (*models.StageExecutionRecord, error) {
	if threadID == "" {
		return nil, &ServiceError{Op: "Replay", Err: ErrEmptyThreadID}
	}

	if stageID == "" {
		return nil, &ServiceError{Op: "Replay", Err: ErrInvalidRequest}
	}

	return c.engine.Replay(ctx, threadID, stageID, dryRun)
}
