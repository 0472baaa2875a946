package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/drishiq/ddsa/pkg/config"
	"github.com/drishiq/ddsa/pkg/engine"
	"github.com/drishiq/ddsa/pkg/eventbus"
	"github.com/drishiq/ddsa/pkg/events"
	"github.com/drishiq/ddsa/pkg/generator"
	"github.com/drishiq/ddsa/pkg/persistence"
	"github.com/drishiq/ddsa/pkg/queue"
	"github.com/drishiq/ddsa/pkg/services"
	"github.com/drishiq/ddsa/pkg/session"
)

// Worker consumes queued turns and drives the pipeline engine. It also runs
// the periodic funnel report so operators see drop-off without hitting the
// API.
type Worker struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *generator.Registry
	eventBus    eventbus.EventBus
	config      config.PipelineConfig
}

func NewWorker(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	registry *generator.Registry,
	cfg config.PipelineConfig,
) *Worker {
	return &Worker{
		id:          id,
		logger:      logger.With("module", "ddsa-worker", "worker_id", id),
		persistence: p,
		registry:    registry,
		eventBus:    eventBus,
		config:      cfg,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "worker_id", w.id)

	sessions := session.NewManager(w.persistence.Conversations(), w.logger)
	eng := engine.NewEngine(
		sessions,
		w.persistence.StageConfigs(),
		w.persistence.ExecutionLog(),
		w.registry,
		w.eventBus,
		w.logger,
		w.config.Retry,
	)

	err := w.eventBus.Handle(events.StageExecutionFailedEvent, w.handleStageFailed)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.StageConfigUpdatedEvent, w.handleConfigUpdated)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	intake, err := queue.NewIntake(ctx, w.config.Queue, w.logger)
	if err != nil {
		return err
	}

	intake.Start(ctx, func(ctx context.Context, turn queue.Turn) error {
		result, err := eng.ExecuteTurn(ctx, turn.ThreadID, turn.UserID, turn.TenantID, turn.Message)
		if err != nil {
			return err
		}

		if result.Record != nil {
			w.logger.InfoContext(ctx, "Turn processed",
				"thread_id", turn.ThreadID,
				"stage_id", result.Record.StageID,
				"status", result.Record.Status)
		}

		return nil
	})

	analytics := services.NewAnalytics(w.persistence, w.config.Thresholds, w.logger)

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err = scheduler.AddFunc(w.config.FunnelSchedule, func() {
		w.logFunnel(context.Background(), analytics)
	})
	if err != nil {
		return err
	}

	scheduler.Start()

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	scheduler.Stop()

	return intake.Stop(ctx)
}

func (w *Worker) handleStageFailed(ctx context.Context, event interface{}) error {
	failed, ok := event.(*events.StageExecutionFailed)
	if !ok {
		return nil
	}

	w.logger.WarnContext(ctx, "Stage execution failed",
		"thread_id", failed.ThreadID,
		"stage_id", failed.StageID,
		"retry_count", failed.RetryCount,
		"error", failed.Error)

	return nil
}

func (w *Worker) handleConfigUpdated(ctx context.Context, event interface{}) error {
	updated, ok := event.(*events.StageConfigUpdated)
	if !ok {
		return nil
	}

	w.logger.InfoContext(ctx, "Stage configuration updated", "stage_id", updated.StageID)

	return nil
}

func (w *Worker) logFunnel(ctx context.Context, analytics *services.Analytics) {
	report, err := analytics.ComputeFunnel(ctx, services.FunnelScope{})
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to compute funnel report", "error", err)

		return
	}

	for _, stage := range report.Stages {
		w.logger.InfoContext(ctx, "Funnel stage",
			"stage_id", stage.StageID,
			"position", stage.Position,
			"reached", stage.ReachedCount,
			"reach_rate", stage.ReachRate,
			"fail_rate", stage.FailRate)
	}
}
