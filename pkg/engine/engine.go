// Package engine drives the staged-dialogue pipeline: it selects the next
// eligible stage for a conversation turn, invokes the content generator with
// bounded retries, and appends an immutable execution record for every
// attempt, skip, and failure.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/drishiq/ddsa/pkg/eventbus"
	"github.com/drishiq/ddsa/pkg/events"
	"github.com/drishiq/ddsa/pkg/generator"
	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
	"github.com/drishiq/ddsa/pkg/session"
	"github.com/drishiq/ddsa/pkg/tracing"
)

// TurnResult describes the outcome of one conversation turn. Record is nil
// when no stage was eligible (the pipeline is complete or waiting on admin
// changes). When the executed stage failed, Record holds the failed entry and
// ExecuteTurn also returns a GeneratorError.
type TurnResult struct {
	Record     *models.StageExecutionRecord
	Skipped    []*models.StageExecutionRecord
	OutputText string
}

// Engine executes pipeline stages for conversation turns. It is safe for
// concurrent use; per-thread ordering is enforced by the session manager.
type Engine struct {
	sessions   *session.Manager
	stages     persistence.StageConfigRepository
	executions persistence.ExecutionLogRepository
	registry   *generator.Registry
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	retry      RetryPolicy
}

// NewEngine creates a pipeline engine. The publisher may be nil, in which
// case lifecycle events are not emitted.
func NewEngine(
	sessions *session.Manager,
	stages persistence.StageConfigRepository,
	executions persistence.ExecutionLogRepository,
	registry *generator.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	retry RetryPolicy,
) *Engine {
	return &Engine{
		sessions:   sessions,
		stages:     stages,
		executions: executions,
		registry:   registry,
		publisher:  publisher,
		logger:     logger.With("module", "engine"),
		retry:      retry,
	}
}

// ExecuteTurn processes one inbound turn for the thread: initializes the
// conversation if needed, appends the user message, selects the next eligible
// stage, and executes it. Turns for the same thread are serialized.
func (e *Engine) ExecuteTurn(ctx context.Context, threadID, userID, tenantID, message string) (*TurnResult, error) {
	result := &TurnResult{}

	err := e.sessions.WithThread(ctx, threadID, func(store *session.Store) error {
		err := store.Init(ctx, userID, tenantID)
		if err != nil {
			return err
		}

		e.publish(ctx, threadID, events.TurnReceived{
			BaseEvent: e.newBaseEvent(events.TurnReceivedEvent, threadID),
			UserID:    userID,
			TenantID:  tenantID,
			Message:   message,
		})

		if message != "" {
			err = store.AppendMessage(ctx, models.RoleUser, message)
			if err != nil {
				return err
			}
		}

		return e.runNextStage(ctx, store, threadID, result)
	})
	if err != nil {
		return result, err
	}

	return result, nil
}

// Replay re-executes a single stage for an existing thread, outside the
// normal eligibility scan. With dryRun set (or a dry-run stage config) the
// conversation state is left untouched and only an audit record is written.
func (e *Engine) Replay(ctx context.Context, threadID, stageID string, dryRun bool) (*models.StageExecutionRecord, error) {
	var record *models.StageExecutionRecord

	err := e.sessions.WithThread(ctx, threadID, func(store *session.Store) error {
		err := store.InitExisting(ctx)
		if err != nil {
			return err
		}

		cfg, err := e.stages.GetByID(ctx, stageID)
		if err != nil {
			if persistence.IsStageNotFound(err) {
				return fmt.Errorf("stage %q: %w", stageID, ErrUnknownStage)
			}

			return err
		}

		record, _, err = e.executeStage(ctx, store, threadID, cfg, dryRun || cfg.DryRun)

		return err
	})

	return record, err
}

func (e *Engine) runNextStage(ctx context.Context, store *session.Store, threadID string, result *TurnResult) error {
	configs, err := e.stages.List(ctx)
	if err != nil {
		return fmt.Errorf("list stage configs: %w", err)
	}

	err = models.ValidateStageGraph(configs)
	if err != nil {
		return fmt.Errorf("stage graph: %w", err)
	}

	state, err := store.State()
	if err != nil {
		return err
	}

	sel, err := nextEligible(state, configs)
	if err != nil {
		return err
	}

	for _, cfg := range sel.skipped {
		record, skipErr := e.recordSkip(ctx, store, threadID, cfg)
		if skipErr != nil {
			return skipErr
		}

		result.Skipped = append(result.Skipped, record)
	}

	if sel.stage == nil {
		e.logger.DebugContext(ctx, "No eligible stage", "thread_id", threadID)

		return nil
	}

	record, resp, err := e.executeStage(ctx, store, threadID, sel.stage, sel.stage.DryRun)
	result.Record = record

	if resp != nil {
		result.OutputText = resp.OutputText
	}

	return err
}

// recordSkip marks an inactive optional stage as attempted and appends a
// lightweight audit record so the timeline shows why it never ran.
func (e *Engine) recordSkip(ctx context.Context, store *session.Store, threadID string, cfg *models.StageConfig) (*models.StageExecutionRecord, error) {
	err := store.CompleteStage(ctx, cfg.StageID)
	if err != nil {
		return nil, err
	}

	record := &models.StageExecutionRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ThreadID:  threadID,
		StageID:   cfg.StageID,
		StartedAt: time.Now().UTC(),
		Status:    models.StageSkipped,
	}

	err = e.executions.Append(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("append skip record for stage %q: %w", cfg.StageID, err)
	}

	e.publish(ctx, threadID, events.StageExecutionSkipped{
		BaseEvent: e.newBaseEvent(events.StageExecutionSkippedEvent, threadID),
		StageID:   cfg.StageID,
	})

	e.logger.InfoContext(ctx, "Skipped inactive stage", "thread_id", threadID, "stage_id", cfg.StageID)

	return record, nil
}

func (e *Engine) executeStage(
	ctx context.Context,
	store *session.Store,
	threadID string,
	cfg *models.StageConfig,
	dryRun bool,
) (*models.StageExecutionRecord, *generator.Response, error) {
	started := time.Now().UTC()

	tracer := otel.Tracer("ddsa/engine")
	ctx, span := tracing.StartSpan(ctx, tracer, "stage.execute",
		attribute.String(tracing.ThreadIDKey, threadID),
		attribute.String(tracing.StageIDKey, cfg.StageID),
		attribute.String(tracing.StageTypeKey, cfg.StageType),
		attribute.Bool(tracing.DryRunKey, dryRun),
	)
	defer span.End()

	gen, err := e.registry.Create(cfg.StageType, cfg.Config)
	if err != nil {
		err = fmt.Errorf("create generator for stage %q: %w", cfg.StageID, err)
		tracing.SetError(span, err)

		record, appendErr := e.recordFailure(ctx, threadID, cfg, started, dryRun, 0, err)
		if appendErr != nil {
			return nil, nil, appendErr
		}

		return record, nil, err
	}

	history, err := store.RecentMessages(models.DefaultRecentLimit)
	if err != nil {
		return nil, nil, err
	}

	if !dryRun {
		stageID := cfg.StageID

		err = store.SetCurrentStage(ctx, &stageID)
		if err != nil {
			return nil, nil, err
		}
	}

	req := generator.Request{
		ThreadID:  threadID,
		StageID:   cfg.StageID,
		StageType: cfg.StageType,
		Config:    cfg.Config,
		History:   history,
	}

	resp, attempts, genErr := e.generateWithRetry(ctx, threadID, cfg, dryRun, gen, req)
	if genErr != nil {
		tracing.SetError(span, genErr)

		record, appendErr := e.recordFailure(ctx, threadID, cfg, started, dryRun, attempts, genErr)
		if appendErr != nil {
			return nil, nil, appendErr
		}

		return record, nil, &GeneratorError{StageID: cfg.StageID, Attempts: attempts, Err: genErr}
	}

	if !dryRun {
		err = e.applyOutcome(ctx, store, cfg, resp)
		if err != nil {
			return nil, nil, err
		}
	}

	record := &models.StageExecutionRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		ThreadID:   threadID,
		StageID:    cfg.StageID,
		StartedAt:  started,
		Status:     models.StageCompleted,
		DurationMs: time.Since(started).Milliseconds(),
		TokensIn:   resp.TokensIn,
		TokensOut:  resp.TokensOut,
		CostUSD:    resp.CostUSD,
		RetryCount: attempts - 1,
		DryRun:     dryRun,
		InputData:  map[string]any{"message_count": len(history)},
		OutputData: map[string]any{"output_text": resp.OutputText},
	}

	err = e.executions.Append(ctx, record)
	if err != nil {
		return nil, nil, fmt.Errorf("append execution record for stage %q: %w", cfg.StageID, err)
	}

	e.publish(ctx, threadID, events.StageExecutionCompleted{
		BaseEvent:  e.newBaseEvent(events.StageExecutionCompletedEvent, threadID),
		StageID:    cfg.StageID,
		DurationMs: record.DurationMs,
		TokensIn:   resp.TokensIn,
		TokensOut:  resp.TokensOut,
		CostUSD:    resp.CostUSD,
		DryRun:     dryRun,
	})

	e.logger.InfoContext(ctx, "Stage completed",
		"thread_id", threadID,
		"stage_id", cfg.StageID,
		"duration_ms", record.DurationMs,
		"dry_run", dryRun)

	return record, resp, nil
}

// generateWithRetry runs the generator with exponential backoff between
// attempts. It returns the number of attempts made alongside the outcome.
func (e *Engine) generateWithRetry(
	ctx context.Context,
	threadID string,
	cfg *models.StageConfig,
	dryRun bool,
	gen generator.Generator,
	req generator.Request,
) (*generator.Response, int, error) {
	bo := e.retry.newBackOff()
	attempts := 0

	var resp *generator.Response

	var lastErr error

	for attempts < e.retry.MaxAttempts {
		attempts++

		e.publish(ctx, threadID, events.StageExecutionStarted{
			BaseEvent: e.newBaseEvent(events.StageExecutionStartedEvent, threadID),
			StageID:   cfg.StageID,
			Attempt:   attempts,
			DryRun:    dryRun,
		})

		attemptCtx, cancel := context.WithTimeout(ctx, e.retry.AttemptTimeout)
		resp, lastErr = gen.Generate(attemptCtx, req)

		cancel()

		if lastErr == nil {
			return resp, attempts, nil
		}

		e.logger.WarnContext(ctx, "Stage attempt failed",
			"thread_id", threadID,
			"stage_id", cfg.StageID,
			"attempt", attempts,
			"error", lastErr)

		if attempts >= e.retry.MaxAttempts {
			break
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		}
	}

	return nil, attempts, lastErr
}

// applyOutcome commits a successful live execution to the conversation:
// assistant message, token counters, and stage completion.
func (e *Engine) applyOutcome(ctx context.Context, store *session.Store, cfg *models.StageConfig, resp *generator.Response) error {
	if resp.OutputText != "" {
		err := store.AppendMessage(ctx, models.RoleAssistant, resp.OutputText)
		if err != nil {
			return err
		}
	}

	err := store.RecordUsage(ctx, resp.TokensIn, resp.TokensOut)
	if err != nil {
		return err
	}

	return store.CompleteStage(ctx, cfg.StageID)
}

func (e *Engine) recordFailure(
	ctx context.Context,
	threadID string,
	cfg *models.StageConfig,
	started time.Time,
	dryRun bool,
	attempts int,
	cause error,
) (*models.StageExecutionRecord, error) {
	record := &models.StageExecutionRecord{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ThreadID:     threadID,
		StageID:      cfg.StageID,
		StartedAt:    started,
		Status:       models.StageFailed,
		DurationMs:   time.Since(started).Milliseconds(),
		RetryCount:   attempts,
		DryRun:       dryRun,
		ErrorMessage: cause.Error(),
	}

	err := e.executions.Append(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("append failure record for stage %q: %w", cfg.StageID, err)
	}

	e.publish(ctx, threadID, events.StageExecutionFailed{
		BaseEvent:  e.newBaseEvent(events.StageExecutionFailedEvent, threadID),
		StageID:    cfg.StageID,
		Error:      cause.Error(),
		RetryCount: attempts,
	})

	return record, nil
}

func (e *Engine) newBaseEvent(eventType events.EventType, threadID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ThreadID:  threadID,
	}
}

func (e *Engine) publish(ctx context.Context, threadID string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, threadID, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
