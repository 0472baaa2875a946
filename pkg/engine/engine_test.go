package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishiq/ddsa/pkg/generator"
	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
	"github.com/drishiq/ddsa/pkg/persistence/file"
	"github.com/drishiq/ddsa/pkg/session"
)

const scriptedStageType = "scripted"

// scriptedGenerator fails a fixed number of times before succeeding,
// counting every call it receives.
type scriptedGenerator struct {
	failures int
	calls    *int
}

func (g *scriptedGenerator) Generate(_ context.Context, req generator.Request) (*generator.Response, error) {
	*g.calls++

	if *g.calls <= g.failures {
		return nil, errors.New("upstream unavailable")
	}

	return &generator.Response{
		OutputText: "ack " + req.StageID,
		TokensIn:   10,
		TokensOut:  5,
		CostUSD:    0.001,
	}, nil
}

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		AttemptTimeout:  time.Second,
	}
}

type engineFixture struct {
	engine      *Engine
	persistence *file.Persistence
	sessions    *session.Manager
	calls       int
}

func newEngineFixture(t *testing.T, failures int, configs ...*models.StageConfig) *engineFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	p := file.NewPersistence(t.TempDir())

	for _, cfg := range configs {
		require.NoError(t, p.StageConfigs().Save(t.Context(), cfg))
	}

	f := &engineFixture{persistence: p}

	registry := generator.NewRegistry(logger)
	registry.Register(scriptedStageType, map[string]any{"type": "object"}, func(_ map[string]any) (generator.Generator, error) {
		return &scriptedGenerator{failures: failures, calls: &f.calls}, nil
	})

	f.sessions = session.NewManager(p.Conversations(), logger)
	f.engine = NewEngine(f.sessions, p.StageConfigs(), p.ExecutionLog(), registry, nil, logger, testRetryPolicy())

	return f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))

	return len(p), nil
}

func stage(id string, position int, opts ...func(*models.StageConfig)) *models.StageConfig {
	cfg := &models.StageConfig{
		StageID:   id,
		StageName: id,
		StageType: scriptedStageType,
		Position:  position,
		IsActive:  true,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

func inactive(cfg *models.StageConfig) { cfg.IsActive = false }
func required(cfg *models.StageConfig) { cfg.IsRequired = true }
func dryRun(cfg *models.StageConfig)   { cfg.DryRun = true }
func dependsOn(deps ...string) func(*models.StageConfig) {
	return func(cfg *models.StageConfig) { cfg.Dependencies = deps }
}

func (f *engineFixture) state(t *testing.T, threadID string) *models.ConversationState {
	t.Helper()

	state, err := f.persistence.Conversations().Load(t.Context(), threadID)
	require.NoError(t, err)
	require.NotNil(t, state)

	return state
}

func (f *engineFixture) records(t *testing.T, threadID string) []*models.StageExecutionRecord {
	t.Helper()

	records, err := f.persistence.ExecutionLog().Query(t.Context(), persistence.ExecutionFilter{ThreadID: threadID})
	require.NoError(t, err)

	return records
}

func TestEngine_ExecuteTurn_RunsFirstEligibleStage(t *testing.T) {
	f := newEngineFixture(t, 0,
		stage("intro", 1),
		stage("goal", 2, dependsOn("intro")),
	)

	result, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "acme", "hello")
	require.NoError(t, err)
	require.NotNil(t, result.Record)

	assert.Equal(t, "intro", result.Record.StageID)
	assert.Equal(t, models.StageCompleted, result.Record.Status)
	assert.Equal(t, 0, result.Record.RetryCount)
	assert.Equal(t, "ack intro", result.OutputText)
	assert.Empty(t, result.Skipped)

	state := f.state(t, "T1")
	assert.Equal(t, []string{"intro"}, state.CompletedStages)
	assert.Equal(t, int64(10), state.TokensUsed.Prompt)
	assert.Equal(t, int64(5), state.TokensUsed.Completion)
	assert.Equal(t, int64(15), state.TokensUsed.Total)

	// user turn plus assistant output
	require.Len(t, state.RecentMessages, 2)
	assert.Equal(t, models.RoleUser, state.RecentMessages[0].Role)
	assert.Equal(t, models.RoleAssistant, state.RecentMessages[1].Role)
}

func TestEngine_ExecuteTurn_SkipsInactiveOptionalStage(t *testing.T) {
	f := newEngineFixture(t, 0,
		stage("intro", 1),
		stage("survey", 2, dependsOn("intro"), inactive),
		stage("goal", 3, dependsOn("survey")),
	)

	result, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.NoError(t, err)
	require.Equal(t, "intro", result.Record.StageID)

	result, err = f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "next")
	require.NoError(t, err)
	require.NotNil(t, result.Record)

	assert.Equal(t, "goal", result.Record.StageID)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "survey", result.Skipped[0].StageID)
	assert.Equal(t, models.StageSkipped, result.Skipped[0].Status)

	state := f.state(t, "T1")
	assert.ElementsMatch(t, []string{"intro", "survey", "goal"}, state.CompletedStages)

	records := f.records(t, "T1")
	require.Len(t, records, 3)
}

func TestEngine_ExecuteTurn_HaltsOnInactiveRequiredStage(t *testing.T) {
	f := newEngineFixture(t, 0,
		stage("intro", 1),
		stage("consent", 2, dependsOn("intro"), inactive, required),
		stage("goal", 3, dependsOn("consent")),
	)

	_, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.NoError(t, err)

	result, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "next")
	require.ErrorIs(t, err, ErrRequiredStageInactive)
	assert.Nil(t, result.Record)

	// no record is written for the halted stage
	records := f.records(t, "T1")
	require.Len(t, records, 1)
	assert.Equal(t, "intro", records[0].StageID)
}

func TestEngine_ExecuteTurn_RetriesThenSucceeds(t *testing.T) {
	f := newEngineFixture(t, 2, stage("intro", 1))

	result, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.NoError(t, err)
	require.NotNil(t, result.Record)

	assert.Equal(t, models.StageCompleted, result.Record.Status)
	assert.Equal(t, 2, result.Record.RetryCount)
	assert.Equal(t, 3, f.calls)
}

func TestEngine_ExecuteTurn_ExhaustsRetries(t *testing.T) {
	f := newEngineFixture(t, 100, stage("intro", 1))

	result, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.Error(t, err)
	assert.True(t, IsGeneratorError(err))
	assert.Equal(t, 3, f.calls)

	require.NotNil(t, result.Record)
	assert.Equal(t, models.StageFailed, result.Record.Status)
	assert.Equal(t, 3, result.Record.RetryCount)
	assert.NotEmpty(t, result.Record.ErrorMessage)

	// exactly one failed record, and the conversation did not advance
	records := f.records(t, "T1")
	require.Len(t, records, 1)

	state := f.state(t, "T1")
	assert.Empty(t, state.CompletedStages)
	assert.Equal(t, int64(0), state.TokensUsed.Total)
	require.Len(t, state.RecentMessages, 1)
	assert.Equal(t, models.RoleUser, state.RecentMessages[0].Role)
}

func TestEngine_ExecuteTurn_DryRunLeavesStateUntouched(t *testing.T) {
	f := newEngineFixture(t, 0, stage("intro", 1, dryRun))

	result, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.NoError(t, err)
	require.NotNil(t, result.Record)

	assert.Equal(t, models.StageCompleted, result.Record.Status)
	assert.True(t, result.Record.DryRun)
	assert.Equal(t, "ack intro", result.OutputText)

	state := f.state(t, "T1")
	assert.Empty(t, state.CompletedStages)
	assert.Nil(t, state.CurrentStage)
	assert.Equal(t, int64(0), state.TokensUsed.Total)
	require.Len(t, state.RecentMessages, 1)
}

func TestEngine_ExecuteTurn_RejectsCyclicGraph(t *testing.T) {
	f := newEngineFixture(t, 0,
		stage("a", 1, dependsOn("b")),
		stage("b", 2, dependsOn("a")),
	)

	_, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.ErrorIs(t, err, models.ErrCyclicDependency)

	assert.Empty(t, f.records(t, "T1"))
}

func TestEngine_ExecuteTurn_NoEligibleStage(t *testing.T) {
	f := newEngineFixture(t, 0, stage("intro", 1))

	result, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.NoError(t, err)
	require.NotNil(t, result.Record)

	result, err = f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "again")
	require.NoError(t, err)
	assert.Nil(t, result.Record)
	assert.Empty(t, result.Skipped)
}

func TestEngine_ExecuteTurn_PositionTieBreak(t *testing.T) {
	f := newEngineFixture(t, 0,
		stage("beta", 2),
		stage("alpha", 2),
		stage("omega", 1),
	)

	result, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "omega", result.Record.StageID)

	result, err = f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "next")
	require.NoError(t, err)
	assert.Equal(t, "alpha", result.Record.StageID)
}

func TestEngine_Replay(t *testing.T) {
	f := newEngineFixture(t, 0, stage("intro", 1))

	_, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.NoError(t, err)

	record, err := f.engine.Replay(t.Context(), "T1", "intro", true)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.StageCompleted, record.Status)
	assert.True(t, record.DryRun)

	// replay in dry-run mode adds a record but does not touch the state
	records := f.records(t, "T1")
	require.Len(t, records, 2)

	state := f.state(t, "T1")
	assert.Equal(t, []string{"intro"}, state.CompletedStages)
	require.Len(t, state.RecentMessages, 2)
}

func TestEngine_Replay_UnknownThread(t *testing.T) {
	f := newEngineFixture(t, 0, stage("intro", 1))

	_, err := f.engine.Replay(t.Context(), "missing", "intro", true)
	require.ErrorIs(t, err, persistence.ErrConversationNotFound)
}

func TestEngine_Replay_UnknownStage(t *testing.T) {
	f := newEngineFixture(t, 0, stage("intro", 1))

	_, err := f.engine.ExecuteTurn(t.Context(), "T1", "U1", "", "hello")
	require.NoError(t, err)

	_, err = f.engine.Replay(t.Context(), "T1", "missing", true)
	require.ErrorIs(t, err, ErrUnknownStage)
}
