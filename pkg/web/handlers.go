// Package web provides HTTP handlers and REST API endpoints for the
// conversation pipeline and its admin surface.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/services"
)

type APIHandlers struct {
	conversationService *services.Conversation
	stageConfigService  *services.StageConfigService
	analyticsService    *services.Analytics
	validator           *validator.Validate
}

func NewAPIHandlers(
	conversationService *services.Conversation,
	stageConfigService *services.StageConfigService,
	analyticsService *services.Analytics,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		conversationService: conversationService,
		stageConfigService:  stageConfigService,
		analyticsService:    analyticsService,
		validator:           validator,
	}
}

func (h *APIHandlers) SubmitTurn(c fiber.Ctx) error {
	threadID := c.Params("id")
	if threadID == "" {
		return badRequest(c, "Thread ID is required")
	}

	var req SubmitTurnRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.conversationService.SubmitTurn(c.Context(), services.SubmitTurnRequest{
		ThreadID: threadID,
		UserID:   req.UserID,
		TenantID: req.TenantID,
		Message:  req.Message,
	})
	if err != nil && (result == nil || result.Record == nil) {
		return handleServiceError(c, err)
	}

	resp := TurnResponse{
		ThreadID: threadID,
		Skipped:  result.Skipped,
	}

	if result.Record != nil {
		resp.Stage = result.Record.StageID
		resp.Status = result.Record.Status
		resp.OutputText = result.OutputText
		resp.Record = result.Record
	}

	// a failed stage still produced a record worth returning
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) GetThread(c fiber.Ctx) error {
	threadID := c.Params("id")
	if threadID == "" {
		return badRequest(c, "Thread ID is required")
	}

	state, err := h.conversationService.GetState(c.Context(), threadID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(state)
}

func (h *APIHandlers) ResetThread(c fiber.Ctx) error {
	threadID := c.Params("id")
	if threadID == "" {
		return badRequest(c, "Thread ID is required")
	}

	err := h.conversationService.Reset(c.Context(), threadID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetTimeline(c fiber.Ctx) error {
	threadID := c.Params("id")
	if threadID == "" {
		return badRequest(c, "Thread ID is required")
	}

	records, err := h.analyticsService.ExecutionTimeline(c.Context(), threadID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"thread_id": threadID,
		"records":   records,
	})
}

func (h *APIHandlers) ReplayStage(c fiber.Ctx) error {
	threadID := c.Params("id")
	stageID := c.Params("stageId")

	if threadID == "" || stageID == "" {
		return badRequest(c, "Thread ID and stage ID are required")
	}

	dryRun := c.Query("dry_run", "true") != "false"

	record, err := h.conversationService.Replay(c.Context(), threadID, stageID, dryRun)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ReplayResponse{ThreadID: threadID, Record: record})
}

func (h *APIHandlers) GetFunnel(c fiber.Ctx) error {
	from, to, err := parseTimeWindow(c)
	if err != nil {
		return badRequest(c, "Invalid time window: "+err.Error())
	}

	scope := services.FunnelScope{From: from, To: to}
	if raw := c.Query("thread_ids"); raw != "" {
		scope.ThreadIDs = strings.Split(raw, ",")
	}

	report, err := h.analyticsService.ComputeFunnel(c.Context(), scope)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetStages(c fiber.Ctx) error {
	configs, err := h.stageConfigService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"stages": configs})
}

func (h *APIHandlers) GetStage(c fiber.Ctx) error {
	stageID := c.Params("id")
	if stageID == "" {
		return badRequest(c, "Stage ID is required")
	}

	cfg, err := h.stageConfigService.Get(c.Context(), stageID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cfg)
}

func (h *APIHandlers) CreateStage(c fiber.Ctx) error {
	var req CreateStageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	cfg := &models.StageConfig{
		StageID:      req.StageID,
		StageName:    req.StageName,
		StageType:    req.StageType,
		Position:     req.Position,
		IsActive:     req.IsActive,
		IsRequired:   req.IsRequired,
		DryRun:       req.DryRun,
		Dependencies: req.Dependencies,
		Config:       req.Config,
	}

	created, err := h.stageConfigService.Create(c.Context(), cfg)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateStage(c fiber.Ctx) error {
	stageID := c.Params("id")
	if stageID == "" {
		return badRequest(c, "Stage ID is required")
	}

	var req UpdateStageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	patch := models.StageConfigPatch{
		StageName:    req.StageName,
		Position:     req.Position,
		IsActive:     req.IsActive,
		IsRequired:   req.IsRequired,
		DryRun:       req.DryRun,
		Dependencies: req.Dependencies,
		Config:       req.Config,
	}

	updated, err := h.stageConfigService.Update(c.Context(), stageID, patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) GetStageMetrics(c fiber.Ctx) error {
	stageID := c.Params("id")
	if stageID == "" {
		return badRequest(c, "Stage ID is required")
	}

	from, to, err := parseTimeWindow(c)
	if err != nil {
		return badRequest(c, "Invalid time window: "+err.Error())
	}

	metrics, err := h.analyticsService.StageMetrics(c.Context(), stageID, from, to)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(metrics)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.conversationService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "DDSA API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "DDSA API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// parseTimeWindow reads optional RFC3339 from/to query parameters.
func parseTimeWindow(c fiber.Ctx) (*time.Time, *time.Time, error) {
	var from, to *time.Time

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return nil, nil, err
		}

		from = &parsed
	}

	if toStr := c.Query("to"); toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return nil, nil, err
		}

		to = &parsed
	}

	return from, to, nil
}
