// Package main provides the DDSA API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/drishiq/ddsa/pkg/config"
	"github.com/drishiq/ddsa/pkg/engine"
	"github.com/drishiq/ddsa/pkg/eventbus"
	"github.com/drishiq/ddsa/pkg/generator"
	"github.com/drishiq/ddsa/pkg/persistence"
	"github.com/drishiq/ddsa/pkg/services"
	"github.com/drishiq/ddsa/pkg/session"
	"github.com/drishiq/ddsa/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *generator.Registry
	eventBus    eventbus.EventBus
	config      config.PipelineConfig
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	registry *generator.Registry,
	eventBus eventbus.EventBus,
	cfg config.PipelineConfig,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		registry:    registry,
		eventBus:    eventBus,
		config:      cfg,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	sessions := session.NewManager(a.persistence.Conversations(), a.logger)
	eng := engine.NewEngine(
		sessions,
		a.persistence.StageConfigs(),
		a.persistence.ExecutionLog(),
		a.registry,
		a.eventBus,
		a.logger,
		a.config.Retry,
	)

	conversationService := services.NewConversation(a.persistence, sessions, eng, a.eventBus, a.logger)
	stageConfigService := services.NewStageConfigService(a.persistence, a.registry, a.eventBus, a.logger)
	analyticsService := services.NewAnalytics(a.persistence, a.config.Thresholds, a.logger)

	handlers := web.NewAPIHandlers(conversationService, stageConfigService, analyticsService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("DDSA API")
	})

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

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
