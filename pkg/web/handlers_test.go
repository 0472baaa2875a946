package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishiq/ddsa/pkg/engine"
	"github.com/drishiq/ddsa/pkg/generator"
	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence/file"
	"github.com/drishiq/ddsa/pkg/services"
	"github.com/drishiq/ddsa/pkg/session"
	"github.com/drishiq/ddsa/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	persistence := file.NewPersistence(t.TempDir())

	registry := generator.NewRegistry(logger)
	generator.RegisterBuiltins(registry)

	sessions := session.NewManager(persistence.Conversations(), logger)
	eng := engine.NewEngine(sessions, persistence.StageConfigs(), persistence.ExecutionLog(), registry, nil, logger, engine.DefaultRetryPolicy())

	conversationService := services.NewConversation(persistence, sessions, eng, nil, logger)
	stageConfigService := services.NewStageConfigService(persistence, registry, nil, logger)
	analyticsService := services.NewAnalytics(persistence, services.DefaultSeverityThresholds(), logger)

	handlers := web.NewAPIHandlers(
		conversationService,
		stageConfigService,
		analyticsService,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	threads := app.Group("/threads")
	threads.Post("/:id/turns", handlers.SubmitTurn)
	threads.Get("/:id", handlers.GetThread)
	threads.Post("/:id/reset", handlers.ResetThread)
	threads.Get("/:id/timeline", handlers.GetTimeline)
	threads.Post("/:id/replay/:stageId", handlers.ReplayStage)

	stages := app.Group("/stages")
	stages.Get("/", handlers.GetStages)
	stages.Post("/", handlers.CreateStage)
	stages.Get("/:id", handlers.GetStage)
	stages.Patch("/:id", handlers.UpdateStage)
	stages.Get("/:id/metrics", handlers.GetStageMetrics)

	app.Get("/funnel", handlers.GetFunnel)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewBuffer(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, respBody
}

func createStage(t *testing.T, app *fiber.App, req web.CreateStageRequest) {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/stages/", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
}

func templateStageRequest(id string, position int) web.CreateStageRequest {
	return web.CreateStageRequest{
		StageID:   id,
		StageName: id,
		StageType: generator.TemplateStageType,
		Position:  position,
		IsActive:  true,
		Config:    map[string]any{"template": "echo {{message}}"},
	}
}

func TestAPIHandlers_SubmitTurn(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	resp, body := doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{
		UserID:  "U1",
		Message: "hello",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var turn web.TurnResponse

	require.NoError(t, json.Unmarshal(body, &turn))
	assert.Equal(t, "T1", turn.ThreadID)
	assert.Equal(t, "intro", turn.Stage)
	assert.Equal(t, models.StageCompleted, turn.Status)
	assert.Equal(t, "echo hello", turn.OutputText)
}

func TestAPIHandlers_SubmitTurn_Validation(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{Message: "no user"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_GetThread(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	_, _ = doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{UserID: "U1", Message: "hi"})

	resp, body := doJSON(t, app, http.MethodGet, "/threads/T1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state models.ConversationState

	require.NoError(t, json.Unmarshal(body, &state))
	assert.Equal(t, "T1", state.ThreadID)
	assert.Equal(t, []string{"intro"}, state.CompletedStages)
}

func TestAPIHandlers_GetThread_NotFound(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/threads/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ResetThread(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	_, _ = doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{UserID: "U1", Message: "hi"})

	resp, _ := doJSON(t, app, http.MethodPost, "/threads/T1/reset", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodGet, "/threads/T1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state models.ConversationState

	require.NoError(t, json.Unmarshal(body, &state))
	assert.Empty(t, state.RecentMessages)
	assert.Empty(t, state.CompletedStages)
}

func TestAPIHandlers_GetTimeline(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	_, _ = doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{UserID: "U1", Message: "hi"})

	resp, body := doJSON(t, app, http.MethodGet, "/threads/T1/timeline", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var timeline struct {
		ThreadID string                         `json:"thread_id"`
		Records  []*models.StageExecutionRecord `json:"records"`
	}

	require.NoError(t, json.Unmarshal(body, &timeline))
	require.Len(t, timeline.Records, 1)
	assert.Equal(t, "intro", timeline.Records[0].StageID)
}

func TestAPIHandlers_ReplayStage(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	_, _ = doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{UserID: "U1", Message: "hi"})

	resp, body := doJSON(t, app, http.MethodPost, "/threads/T1/replay/intro?dry_run=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var replay web.ReplayResponse

	require.NoError(t, json.Unmarshal(body, &replay))
	require.NotNil(t, replay.Record)
	assert.True(t, replay.Record.DryRun)
	assert.Equal(t, models.StageCompleted, replay.Record.Status)
}

func TestAPIHandlers_ReplayStage_UnknownStage(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	_, _ = doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{UserID: "U1", Message: "hi"})

	resp, _ := doJSON(t, app, http.MethodPost, "/threads/T1/replay/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_CreateStage_Validation(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/stages/", web.CreateStageRequest{StageName: "no id"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_CreateStage_Conflict(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	resp, _ := doJSON(t, app, http.MethodPost, "/stages/", templateStageRequest("intro", 1))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_UpdateStage_CycleRejected(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("a", 1))

	b := templateStageRequest("b", 2)
	b.Dependencies = []string{"a"}
	createStage(t, app, b)

	resp, body := doJSON(t, app, http.MethodPatch, "/stages/a", web.UpdateStageRequest{
		Dependencies: &[]string{"b"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
}

func TestAPIHandlers_GetStages(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("goal", 2))
	createStage(t, app, templateStageRequest("intro", 1))

	resp, body := doJSON(t, app, http.MethodGet, "/stages/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Stages []*models.StageConfig `json:"stages"`
	}

	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Stages, 2)
	assert.Equal(t, "intro", listing.Stages[0].StageID)
	assert.Equal(t, "goal", listing.Stages[1].StageID)
}

func TestAPIHandlers_GetFunnel(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	_, _ = doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{UserID: "U1", Message: "hi"})
	_, _ = doJSON(t, app, http.MethodPost, "/threads/T2/turns", web.SubmitTurnRequest{UserID: "U2", Message: "hey"})

	resp, body := doJSON(t, app, http.MethodGet, "/funnel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report models.FunnelReport

	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, int64(2), report.TotalThreads)
	require.Len(t, report.Stages, 1)
	assert.Equal(t, int64(2), report.Stages[0].ReachedCount)
}

func TestAPIHandlers_GetStageMetrics(t *testing.T) {
	app := setupTestApp(t)
	createStage(t, app, templateStageRequest("intro", 1))

	_, _ = doJSON(t, app, http.MethodPost, "/threads/T1/turns", web.SubmitTurnRequest{UserID: "U1", Message: "hi"})

	resp, body := doJSON(t, app, http.MethodGet, "/stages/intro/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var metrics models.StageMetrics

	require.NoError(t, json.Unmarshal(body, &metrics))
	assert.Equal(t, int64(1), metrics.ExecutionCount)
	assert.Equal(t, models.SeverityGreen, metrics.Severity)
}

func TestAPIHandlers_GetFunnel_InvalidWindow(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/funnel?from=not-a-time", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}

	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
}
