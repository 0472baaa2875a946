package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrConversationNotFound indicates no state record exists for the thread.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrStageNotFound indicates no stage config exists for the given ID.
	ErrStageNotFound = errors.New("stage not found")

	// ErrStageAlreadyExists indicates a stage config with the same ID already exists.
	ErrStageAlreadyExists = errors.New("stage already exists")
)

// ConversationError wraps conversation-store errors with operation context.
type ConversationError struct {
	Op       string // Operation being performed (e.g., "Load", "Save")
	ThreadID string
	Err      error
}

func (e *ConversationError) Error() string {
	return fmt.Sprintf("%s operation failed for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

func (e *ConversationError) Unwrap() error {
	return e.Err
}

func (e *ConversationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewConversationError creates a conversation error with context.
func NewConversationError(op, threadID string, err error) *ConversationError {
	return &ConversationError{Op: op, ThreadID: threadID, Err: err}
}

// StageError wraps stage-config-store errors with operation context.
type StageError struct {
	Op      string
	StageID string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s operation failed for stage %s: %v", e.Op, e.StageID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsConversationNotFound checks if an error indicates a missing conversation record.
func IsConversationNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound)
}

// IsStageNotFound checks if an error indicates a missing stage config.
func IsStageNotFound(err error) bool {
	return errors.Is(err, ErrStageNotFound)
}
