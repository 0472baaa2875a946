package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// Default severity thresholds for stage fail rates.
const (
	DefaultRedThreshold    = 0.05
	DefaultYellowThreshold = 0.02
)

// SeverityThresholds are fail-rate fractions above which a stage is flagged.
type SeverityThresholds struct {
	Red    float64
	Yellow float64
}

// DefaultSeverityThresholds returns the thresholds used when the
// configuration does not override them.
func DefaultSeverityThresholds() SeverityThresholds {
	return SeverityThresholds{Red: DefaultRedThreshold, Yellow: DefaultYellowThreshold}
}

// Severity tiers a fail rate.
func (t SeverityThresholds) Severity(failRate float64) models.MetricSeverity {
	switch {
	case failRate > t.Red:
		return models.SeverityRed
	case failRate > t.Yellow:
		return models.SeverityYellow
	default:
		return models.SeverityGreen
	}
}

// Analytics computes read-time aggregates over the execution log: per-thread
// timelines, the cross-thread drop-off funnel, and per-stage health metrics.
// Nothing is precomputed or cached; every call scans the records in scope.
type Analytics struct {
	persistence persistence.Persistence
	thresholds  SeverityThresholds
	logger      *slog.Logger
}

// NewAnalytics creates a new analytics service.
func NewAnalytics(p persistence.Persistence, thresholds SeverityThresholds, logger *slog.Logger) *Analytics {
	return &Analytics{
		persistence: p,
		thresholds:  thresholds,
		logger:      logger.With("module", "analytics-service"),
	}
}

// ExecutionTimeline returns the thread's execution records in order.
func (a *Analytics) ExecutionTimeline(ctx context.Context, threadID string) ([]*models.StageExecutionRecord, error) {
	if threadID == "" {
		return nil, &ServiceError{Op: "ExecutionTimeline", Err: ErrEmptyThreadID}
	}

	state, err := a.persistence.Conversations().Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}

	if state == nil {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrThreadNotFound)
	}

	records, err := a.persistence.ExecutionLog().Query(ctx, persistence.ExecutionFilter{ThreadID: threadID})
	if err != nil {
		return nil, fmt.Errorf("failed to query execution log: %w", err)
	}

	return records, nil
}

// FunnelScope narrows the funnel to a set of threads and a time window.
// The zero value covers every thread and all time.
type FunnelScope struct {
	ThreadIDs []string
	From      *time.Time
	To        *time.Time
}

// ComputeFunnel aggregates execution records into a per-stage drop-off
// funnel over all configured stages, ordered by position. Dry-run records
// are excluded so experiments do not distort the numbers. Records referring
// to stages that no longer exist are logged and dropped. Repository errors
// degrade to zero-valued aggregates so the admin report stays available.
func (a *Analytics) ComputeFunnel(ctx context.Context, scope FunnelScope) (*models.FunnelReport, error) {
	configs, err := a.persistence.StageConfigs().List(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to list stage configs, returning empty funnel", "error", err)

		return &models.FunnelReport{Stages: []models.FunnelStage{}}, nil
	}

	records, err := a.persistence.ExecutionLog().Query(ctx, persistence.ExecutionFilter{ThreadIDs: scope.ThreadIDs, From: scope.From, To: scope.To})
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to query execution log, funnel aggregates are zero-valued", "error", err)

		records = nil
	}

	known := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		known[cfg.StageID] = true
	}

	stats := make(map[string]*stageAccumulator, len(configs))
	threads := make(map[string]bool)

	for _, record := range records {
		if record.DryRun {
			continue
		}

		if !known[record.StageID] {
			a.logger.DebugContext(ctx, "Dropping record for unknown stage", "stage_id", record.StageID, "record_id", record.ID)

			continue
		}

		threads[record.ThreadID] = true

		acc := stats[record.StageID]
		if acc == nil {
			acc = &stageAccumulator{reached: make(map[string]bool)}
			stats[record.StageID] = acc
		}

		acc.add(record)
	}

	report := &models.FunnelReport{
		TotalThreads: int64(len(threads)),
		Stages:       make([]models.FunnelStage, 0, len(configs)),
	}

	for _, cfg := range models.SortStagesByPosition(configs) {
		acc := stats[cfg.StageID]
		if acc == nil {
			acc = &stageAccumulator{reached: make(map[string]bool)}
		}

		funnelStage := models.FunnelStage{
			StageID:      cfg.StageID,
			StageName:    cfg.StageName,
			Position:     cfg.Position,
			ReachedCount: int64(len(acc.reached)),
			AvgLatencyMs: acc.avgLatencyMs(),
			AvgRetries:   acc.avgRetries(),
			TotalTokens:  acc.totalTokens,
			TotalCostUSD: acc.totalCost,
			FailRate:     acc.failRate(),
		}

		if report.TotalThreads > 0 {
			funnelStage.ReachRate = float64(funnelStage.ReachedCount) / float64(report.TotalThreads)
		}

		report.Stages = append(report.Stages, funnelStage)
	}

	return report, nil
}

// StageMetrics aggregates one stage's execution records into health metrics,
// tiered by the configured fail-rate thresholds. An unknown stage is an
// error; an unavailable execution log degrades to zero-valued metrics.
func (a *Analytics) StageMetrics(ctx context.Context, stageID string, from, to *time.Time) (*models.StageMetrics, error) {
	if stageID == "" {
		return nil, &ServiceError{Op: "StageMetrics", Err: ErrInvalidRequest}
	}

	_, err := a.persistence.StageConfigs().GetByID(ctx, stageID)
	if err != nil {
		return nil, err
	}

	records, err := a.persistence.ExecutionLog().Query(ctx, persistence.ExecutionFilter{StageID: stageID, From: from, To: to})
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to query execution log, stage metrics are zero-valued", "stage_id", stageID, "error", err)

		records = nil
	}

	acc := &stageAccumulator{reached: make(map[string]bool)}

	for _, record := range records {
		if record.DryRun {
			continue
		}

		acc.add(record)
	}

	failRate := acc.failRate()

	return &models.StageMetrics{
		StageID:        stageID,
		ExecutionCount: acc.completed + acc.failed,
		ErrorCount:     acc.failed,
		FailRate:       failRate,
		Severity:       a.thresholds.Severity(failRate),
		AvgLatencyMs:   acc.avgLatencyMs(),
		AvgRetries:     acc.avgRetries(),
		TotalTokens:    acc.totalTokens,
		TotalCostUSD:   acc.totalCost,
	}, nil
}

// stageAccumulator folds execution records for one stage. A thread reaches
// a stage only by completing it (or having it skipped); failed records count
// toward the fail rate but not toward reach. Skipped records contribute
// nothing beyond reach.
type stageAccumulator struct {
	reached      map[string]bool
	completed    int64
	failed       int64
	totalLatency int64
	totalRetries int64
	totalTokens  int64
	totalCost    float64
}

func (acc *stageAccumulator) add(record *models.StageExecutionRecord) {
	switch record.Status {
	case models.StageCompleted:
		acc.reached[record.ThreadID] = true
		acc.completed++
		acc.totalLatency += record.DurationMs
		acc.totalRetries += int64(record.RetryCount)
		acc.totalTokens += record.TokensIn + record.TokensOut
		acc.totalCost += record.CostUSD
	case models.StageFailed:
		acc.failed++
		acc.totalRetries += int64(record.RetryCount)
	case models.StageSkipped:
		acc.reached[record.ThreadID] = true
	}
}

func (acc *stageAccumulator) failRate() float64 {
	executions := acc.completed + acc.failed
	if executions == 0 {
		return 0
	}

	return float64(acc.failed) / float64(executions)
}

func (acc *stageAccumulator) avgLatencyMs() float64 {
	if acc.completed == 0 {
		return 0
	}

	return float64(acc.totalLatency) / float64(acc.completed)
}

func (acc *stageAccumulator) avgRetries() float64 {
	executions := acc.completed + acc.failed
	if executions == 0 {
		return 0
	}

	return float64(acc.totalRetries) / float64(executions)
}
