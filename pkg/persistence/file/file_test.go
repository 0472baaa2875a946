package file

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

func TestConversationRepository_LoadMissingReturnsNil(t *testing.T) {
	p := NewPersistence(t.TempDir())

	state, err := p.Conversations().Load(t.Context(), "no-such-thread")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestConversationRepository_SaveLoadRoundtrip(t *testing.T) {
	p := NewPersistence(t.TempDir())

	state := models.NewConversationState("thread-1", "user-1", "tenant-a")
	state.AppendMessage(models.Message{Role: models.RoleUser, Content: "Hello", Timestamp: time.Now().UTC()})
	state.TokensUsed.Add(10, 5)

	require.NoError(t, p.Conversations().Save(t.Context(), state))

	loaded, err := p.Conversations().Load(t.Context(), "thread-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "thread-1", loaded.ThreadID)
	assert.Equal(t, "user-1", loaded.UserID)
	assert.Equal(t, "tenant-a", loaded.TenantID)
	require.Len(t, loaded.RecentMessages, 1)
	assert.Equal(t, "Hello", loaded.RecentMessages[0].Content)
	assert.Equal(t, int64(15), loaded.TokensUsed.Total)
}

func TestStageConfigRepository_ListOrdersByPosition(t *testing.T) {
	p := NewPersistence(t.TempDir())

	configs := []*models.StageConfig{
		{StageID: "plan", StageName: "Plan", StageType: "dialogue", Position: 5, IsActive: true},
		{StageID: "greeting", StageName: "Greeting", StageType: "dialogue", Position: 1, IsActive: true},
		{StageID: "intent", StageName: "Intent", StageType: "dialogue", Position: 3, IsActive: false},
	}

	for _, config := range configs {
		require.NoError(t, p.StageConfigs().Save(t.Context(), config))
	}

	all, err := p.StageConfigs().List(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "greeting", all[0].StageID)
	assert.Equal(t, "intent", all[1].StageID)
	assert.Equal(t, "plan", all[2].StageID)

	active, err := p.StageConfigs().ListActive(t.Context())
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "greeting", active[0].StageID)
	assert.Equal(t, "plan", active[1].StageID)
}

func TestStageConfigRepository_GetByID_NotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.StageConfigs().GetByID(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsStageNotFound(err))
}

func TestExecutionLogRepository_AppendAndQuery(t *testing.T) {
	p := NewPersistence(t.TempDir())
	base := time.Now().UTC().Add(-time.Hour)

	records := []*models.StageExecutionRecord{
		{ID: "r1", ThreadID: "t1", StageID: "greeting", StartedAt: base, Status: models.StageCompleted},
		{ID: "r2", ThreadID: "t1", StageID: "intent", StartedAt: base.Add(time.Minute), Status: models.StageFailed},
		{ID: "r3", ThreadID: "t2", StageID: "greeting", StartedAt: base.Add(2 * time.Minute), Status: models.StageCompleted},
	}

	for _, record := range records {
		require.NoError(t, p.ExecutionLog().Append(t.Context(), record))
	}

	// Per-thread query is chronological.
	timeline, err := p.ExecutionLog().Query(t.Context(), persistence.ExecutionFilter{ThreadID: "t1"})
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, "r1", timeline[0].ID)
	assert.Equal(t, "r2", timeline[1].ID)

	// Stage filter spans threads.
	greetings, err := p.ExecutionLog().Query(t.Context(), persistence.ExecutionFilter{StageID: "greeting"})
	require.NoError(t, err)
	assert.Len(t, greetings, 2)

	// Date range filter.
	from := base.Add(30 * time.Second)
	ranged, err := p.ExecutionLog().Query(t.Context(), persistence.ExecutionFilter{From: &from})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestExecutionLogRepository_QueryEmptyLog(t *testing.T) {
	p := NewPersistence(t.TempDir())

	records, err := p.ExecutionLog().Query(t.Context(), persistence.ExecutionFilter{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Empty(t, records)
}
