// Package models defines the core domain models for the staged-dialogue pipeline.
package models

import "time"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ValidRole reports whether the given role is one of the known message roles.
func ValidRole(role MessageRole) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is a single entry in a conversation's recent-history window.
type Message struct {
	Role      MessageRole `json:"role"      validate:"required,oneof=user assistant system"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// TokenUsage holds running token counters for a conversation.
// Total is always Prompt + Completion.
type TokenUsage struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// Add accumulates the given counts and recomputes the total.
func (u *TokenUsage) Add(prompt, completion int64) {
	u.Prompt += prompt
	u.Completion += completion
	u.Total = u.Prompt + u.Completion
}
