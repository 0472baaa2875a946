package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationState_AppendMessage_BoundedHistory(t *testing.T) {
	state := NewConversationState("thread-1", "user-1", "")

	for i := 1; i <= 60; i++ {
		state.AppendMessage(Message{
			Role:      RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: time.Now().UTC(),
		})
	}

	require.Len(t, state.RecentMessages, MaxRecentMessages)

	// The retained window is messages 11..60 in arrival order.
	assert.Equal(t, "message 11", state.RecentMessages[0].Content)
	assert.Equal(t, "message 60", state.RecentMessages[len(state.RecentMessages)-1].Content)
}

func TestConversationState_Recent_DefaultLimit(t *testing.T) {
	state := NewConversationState("thread-1", "user-1", "")

	for i := 1; i <= 30; i++ {
		state.AppendMessage(Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	recent := state.Recent(0)
	require.Len(t, recent, DefaultRecentLimit)
	assert.Equal(t, "m11", recent[0].Content)
	assert.Equal(t, "m30", recent[len(recent)-1].Content)
}

func TestConversationState_Recent_LimitLargerThanHistory(t *testing.T) {
	state := NewConversationState("thread-1", "user-1", "")
	state.AppendMessage(Message{Role: RoleUser, Content: "only"})

	recent := state.Recent(100)
	require.Len(t, recent, 1)
	assert.Equal(t, "only", recent[0].Content)
}

func TestTokenUsage_Add_TotalInvariant(t *testing.T) {
	var usage TokenUsage

	usage.Add(10, 0)
	assert.Equal(t, int64(10), usage.Total)

	usage.Add(7, 5)
	assert.Equal(t, int64(17), usage.Prompt)
	assert.Equal(t, int64(5), usage.Completion)
	assert.Equal(t, usage.Prompt+usage.Completion, usage.Total)
}

func TestConversationState_MarkCompleted_NoDuplicates(t *testing.T) {
	state := NewConversationState("thread-1", "user-1", "")

	state.MarkCompleted("greeting")
	state.MarkCompleted("greeting")

	assert.Equal(t, []string{"greeting"}, state.CompletedStages)
	assert.True(t, state.HasCompleted("greeting"))
	assert.False(t, state.HasCompleted("intent"))
}
