package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
	"github.com/drishiq/ddsa/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"stage_execution_records", "stage_configs", "conversation_states", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("ddsa_test"),
			postgres.WithUsername("ddsa"),
			postgres.WithPassword("ddsa"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func TestPersistenceIntegration_ConversationLifecycle(t *testing.T) {
	p, ctx := setupTestDB(t)

	missing, err := p.Conversations().Load(ctx, "no-such-thread")
	require.NoError(t, err)
	assert.Nil(t, missing)

	state := models.NewConversationState("thread-1", "user-1", "tenant-a")
	state.AppendMessage(models.Message{Role: models.RoleUser, Content: "Hello", Timestamp: time.Now().UTC()})
	state.TokensUsed.Add(10, 0)
	state.MarkCompleted("greeting")

	current := "intent"
	state.CurrentStage = &current

	require.NoError(t, p.Conversations().Save(ctx, state))

	loaded, err := p.Conversations().Load(ctx, "thread-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "user-1", loaded.UserID)
	assert.Equal(t, "tenant-a", loaded.TenantID)
	require.NotNil(t, loaded.CurrentStage)
	assert.Equal(t, "intent", *loaded.CurrentStage)
	assert.Equal(t, []string{"greeting"}, loaded.CompletedStages)
	assert.Equal(t, int64(10), loaded.TokensUsed.Total)
	require.Len(t, loaded.RecentMessages, 1)

	// Upsert keeps identity, replaces mutable fields.
	loaded.TokensUsed.Add(5, 5)
	loaded.LastActivity = time.Now().UTC()
	require.NoError(t, p.Conversations().Save(ctx, loaded))

	reloaded, err := p.Conversations().Load(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), reloaded.TokensUsed.Total)
}

func TestPersistenceIntegration_StageConfigs(t *testing.T) {
	p, ctx := setupTestDB(t)

	configs := []*models.StageConfig{
		{StageID: "greeting", StageName: "Greeting", StageType: "dialogue", Position: 1, IsActive: true},
		{StageID: "intent", StageName: "Intent", StageType: "dialogue", Position: 2, IsActive: true, IsRequired: true, Dependencies: []string{"greeting"}},
		{StageID: "archived", StageName: "Archived", StageType: "dialogue", Position: 3, IsActive: false},
	}

	for _, config := range configs {
		require.NoError(t, p.StageConfigs().Save(ctx, config))
	}

	all, err := p.StageConfigs().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := p.StageConfigs().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "greeting", active[0].StageID)

	intent, err := p.StageConfigs().GetByID(ctx, "intent")
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting"}, intent.Dependencies)
	assert.True(t, intent.IsRequired)

	_, err = p.StageConfigs().GetByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsStageNotFound(err))
}

func TestPersistenceIntegration_ExecutionLog(t *testing.T) {
	p, ctx := setupTestDB(t)
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	records := []*models.StageExecutionRecord{
		{ThreadID: "t1", StageID: "greeting", StartedAt: base, Status: models.StageCompleted, DurationMs: 120, TokensIn: 10, TokensOut: 20, CostUSD: 0.01},
		{ThreadID: "t1", StageID: "intent", StartedAt: base.Add(time.Minute), Status: models.StageFailed, RetryCount: 3, ErrorMessage: "generator unavailable"},
		{ThreadID: "t2", StageID: "greeting", StartedAt: base.Add(2 * time.Minute), Status: models.StageCompleted, DryRun: true},
	}

	for _, record := range records {
		require.NoError(t, p.ExecutionLog().Append(ctx, record))
		assert.NotEmpty(t, record.ID)
	}

	timeline, err := p.ExecutionLog().Query(ctx, persistence.ExecutionFilter{ThreadID: "t1"})
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, "greeting", timeline[0].StageID)
	assert.Equal(t, models.StageFailed, timeline[1].Status)
	assert.Equal(t, "generator unavailable", timeline[1].ErrorMessage)

	scoped, err := p.ExecutionLog().Query(ctx, persistence.ExecutionFilter{ThreadIDs: []string{"t1", "t2"}, StageID: "greeting"})
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	assert.True(t, scoped[1].DryRun)
}
