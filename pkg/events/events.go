// Package events defines event types for pipeline lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Topic carries all pipeline events.
const Topic = "ddsa.pipeline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound turns.
	TurnReceivedEvent EventType = "turn.received"

	// Stage execution lifecycle events.
	StageExecutionStartedEvent   EventType = "stage.execution.started"
	StageExecutionCompletedEvent EventType = "stage.execution.completed"
	StageExecutionFailedEvent    EventType = "stage.execution.failed"
	StageExecutionSkippedEvent   EventType = "stage.execution.skipped"

	// Session lifecycle events.
	SessionResetEvent EventType = "session.reset"

	// Admin configuration events.
	StageConfigUpdatedEvent EventType = "stage.config.updated"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ThreadID  string         `json:"thread_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TurnReceived is published when a client turn arrives for a thread.
type TurnReceived struct {
	BaseEvent

	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Message  string `json:"message"`
}

func (e TurnReceived) GetType() EventType {
	return TurnReceivedEvent
}

type StageExecutionStarted struct {
	BaseEvent

	StageID string `json:"stage_id"`
	Attempt int    `json:"attempt"`
	DryRun  bool   `json:"dry_run"`
}

func (e StageExecutionStarted) GetType() EventType {
	return StageExecutionStartedEvent
}

type StageExecutionCompleted struct {
	BaseEvent

	StageID    string  `json:"stage_id"`
	DurationMs int64   `json:"duration_ms"`
	TokensIn   int64   `json:"tokens_in"`
	TokensOut  int64   `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
	DryRun     bool    `json:"dry_run"`
}

func (e StageExecutionCompleted) GetType() EventType {
	return StageExecutionCompletedEvent
}

type StageExecutionFailed struct {
	BaseEvent

	StageID    string `json:"stage_id"`
	Error      string `json:"error"`
	RetryCount int    `json:"retry_count"`
}

func (e StageExecutionFailed) GetType() EventType {
	return StageExecutionFailedEvent
}

type StageExecutionSkipped struct {
	BaseEvent

	StageID string `json:"stage_id"`
}

func (e StageExecutionSkipped) GetType() EventType {
	return StageExecutionSkippedEvent
}

type SessionReset struct {
	BaseEvent
}

func (e SessionReset) GetType() EventType {
	return SessionResetEvent
}

type StageConfigUpdated struct {
	BaseEvent

	StageID string `json:"stage_id"`
}

func (e StageConfigUpdated) GetType() EventType {
	return StageConfigUpdatedEvent
}
