package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// Store is the mutable conversation state for one thread. All mutations are
// persisted fail-fast: a storage failure propagates to the caller without
// internal retries. A Store must only be used through its owning Manager,
// which serializes access per thread.
type Store struct {
	repo     persistence.ConversationRepository
	logger   *slog.Logger
	threadID string
	state    *models.ConversationState
}

func newStore(repo persistence.ConversationRepository, logger *slog.Logger, threadID string) *Store {
	return &Store{
		repo:     repo,
		logger:   logger.With("thread_id", threadID),
		threadID: threadID,
	}
}

// Init loads the persisted state for the thread or creates a fresh record.
// Idempotent: calling it again on an initialized store is a no-op.
func (s *Store) Init(ctx context.Context, userID, tenantID string) error {
	if s.state != nil {
		return nil
	}

	state, err := s.repo.Load(ctx, s.threadID)
	if err != nil {
		return &StorageError{Op: "Init", ThreadID: s.threadID, Err: err}
	}

	if state == nil {
		state = models.NewConversationState(s.threadID, userID, tenantID)

		err = s.repo.Save(ctx, state)
		if err != nil {
			return &StorageError{Op: "Init", ThreadID: s.threadID, Err: err}
		}

		s.logger.DebugContext(ctx, "Created conversation state", "user_id", userID)
	}

	s.state = state

	return nil
}

// InitExisting loads the persisted state for the thread and fails with
// persistence.ErrConversationNotFound when none exists. Used by operations
// that must not create a thread as a side effect, such as replay.
func (s *Store) InitExisting(ctx context.Context) error {
	if s.state != nil {
		return nil
	}

	state, err := s.repo.Load(ctx, s.threadID)
	if err != nil {
		return &StorageError{Op: "InitExisting", ThreadID: s.threadID, Err: err}
	}

	if state == nil {
		return fmt.Errorf("thread %q: %w", s.threadID, persistence.ErrConversationNotFound)
	}

	s.state = state

	return nil
}

// Initialized reports whether Init has completed.
func (s *Store) Initialized() bool {
	return s.state != nil
}

// AppendMessage appends to the recent-history window and persists.
func (s *Store) AppendMessage(ctx context.Context, role models.MessageRole, content string) error {
	if s.state == nil {
		return ErrNotInitialized
	}

	if !models.ValidRole(role) {
		return fmt.Errorf("unknown role %q: %w", role, ErrInvalidArgument)
	}

	s.state.AppendMessage(models.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	s.state.LastActivity = time.Now().UTC()

	return s.save(ctx, "AppendMessage")
}

// RecentMessages returns up to limit recent messages in chronological order.
func (s *Store) RecentMessages(limit int) ([]models.Message, error) {
	if s.state == nil {
		return nil, ErrNotInitialized
	}

	return s.state.Recent(limit), nil
}

// RecordUsage accumulates token counters and persists.
func (s *Store) RecordUsage(ctx context.Context, promptTokens, completionTokens int64) error {
	if s.state == nil {
		return ErrNotInitialized
	}

	if promptTokens < 0 || completionTokens < 0 {
		return fmt.Errorf("negative token count (%d, %d): %w", promptTokens, completionTokens, ErrInvalidArgument)
	}

	s.state.TokensUsed.Add(promptTokens, completionTokens)
	s.state.LastActivity = time.Now().UTC()

	return s.save(ctx, "RecordUsage")
}

// TokenUsage returns the running counters.
func (s *Store) TokenUsage() (models.TokenUsage, error) {
	if s.state == nil {
		return models.TokenUsage{}, ErrNotInitialized
	}

	return s.state.TokensUsed, nil
}

// Reset clears messages and counters, preserving thread identity and
// CreatedAt, and persists.
func (s *Store) Reset(ctx context.Context) error {
	if s.state == nil {
		return ErrNotInitialized
	}

	s.state.RecentMessages = []models.Message{}
	s.state.TokensUsed = models.TokenUsage{}
	s.state.CurrentStage = nil
	s.state.CompletedStages = []string{}
	s.state.LastActivity = time.Now().UTC()

	return s.save(ctx, "Reset")
}

// State returns a snapshot copy of the conversation state.
func (s *Store) State() (*models.ConversationState, error) {
	if s.state == nil {
		return nil, ErrNotInitialized
	}

	snapshot := *s.state
	snapshot.RecentMessages = append([]models.Message(nil), s.state.RecentMessages...)
	snapshot.CompletedStages = append([]string(nil), s.state.CompletedStages...)

	if s.state.CurrentStage != nil {
		stage := *s.state.CurrentStage
		snapshot.CurrentStage = &stage
	}

	return &snapshot, nil
}

// SetCurrentStage records the running stage and persists.
func (s *Store) SetCurrentStage(ctx context.Context, stageID *string) error {
	if s.state == nil {
		return ErrNotInitialized
	}

	s.state.CurrentStage = stageID
	s.state.LastActivity = time.Now().UTC()

	return s.save(ctx, "SetCurrentStage")
}

// CompleteStage marks the stage completed and persists.
func (s *Store) CompleteStage(ctx context.Context, stageID string) error {
	if s.state == nil {
		return ErrNotInitialized
	}

	s.state.MarkCompleted(stageID)
	s.state.LastActivity = time.Now().UTC()

	return s.save(ctx, "CompleteStage")
}

func (s *Store) save(ctx context.Context, op string) error {
	err := s.repo.Save(ctx, s.state)
	if err != nil {
		return &StorageError{Op: op, ThreadID: s.threadID, Err: err}
	}

	return nil
}
