package models

import "time"

// MaxRecentMessages bounds the recent-history window kept on a conversation.
// Older messages are dropped; archival is handled outside this component.
const MaxRecentMessages = 50

// DefaultRecentLimit is the number of messages returned when a reader does
// not ask for a specific window size.
const DefaultRecentLimit = 20

// ConversationState is the durable per-thread state record. One exists per
// conversation thread and is owned by a single writer at a time.
type ConversationState struct {
	ThreadID        string     `json:"thread_id"  validate:"required"`
	UserID          string     `json:"user_id"    validate:"required"`
	TenantID        string     `json:"tenant_id,omitempty"`
	RecentMessages  []Message  `json:"recent_messages"`
	TokensUsed      TokenUsage `json:"tokens_used"`
	CurrentStage    *string    `json:"current_stage,omitempty"`
	CompletedStages []string   `json:"completed_stages"`
	CreatedAt       time.Time  `json:"created_at"`
	LastActivity    time.Time  `json:"last_activity"`
}

// NewConversationState creates a fresh state record for a thread.
func NewConversationState(threadID, userID, tenantID string) *ConversationState {
	now := time.Now().UTC()

	return &ConversationState{
		ThreadID:        threadID,
		UserID:          userID,
		TenantID:        tenantID,
		RecentMessages:  []Message{},
		CompletedStages: []string{},
		CreatedAt:       now,
		LastActivity:    now,
	}
}

// AppendMessage adds a message to the recent-history window, dropping the
// oldest entries beyond MaxRecentMessages.
func (s *ConversationState) AppendMessage(msg Message) {
	s.RecentMessages = append(s.RecentMessages, msg)
	if len(s.RecentMessages) > MaxRecentMessages {
		s.RecentMessages = s.RecentMessages[len(s.RecentMessages)-MaxRecentMessages:]
	}
}

// Recent returns up to limit of the most recent messages in chronological
// order. A non-positive limit falls back to DefaultRecentLimit.
func (s *ConversationState) Recent(limit int) []Message {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	if limit > len(s.RecentMessages) {
		limit = len(s.RecentMessages)
	}

	out := make([]Message, limit)
	copy(out, s.RecentMessages[len(s.RecentMessages)-limit:])

	return out
}

// HasCompleted reports whether the given stage is in the completed set.
func (s *ConversationState) HasCompleted(stageID string) bool {
	for _, id := range s.CompletedStages {
		if id == stageID {
			return true
		}
	}

	return false
}

// MarkCompleted records the stage as completed, once.
func (s *ConversationState) MarkCompleted(stageID string) {
	if s.HasCompleted(stageID) {
		return
	}

	s.CompletedStages = append(s.CompletedStages, stageID)
}
