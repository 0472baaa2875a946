package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/drishiq/ddsa/pkg/eventbus"
	"github.com/drishiq/ddsa/pkg/events"
	"github.com/drishiq/ddsa/pkg/generator"
	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// StageConfigService manages the admin-facing stage pipeline configuration.
// Every write is validated against the full config set so the dependency
// graph can never be persisted with a cycle or a dangling reference.
type StageConfigService struct {
	persistence persistence.Persistence
	registry    *generator.Registry
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewStageConfigService creates a new stage config service.
func NewStageConfigService(
	p persistence.Persistence,
	registry *generator.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *StageConfigService {
	return &StageConfigService{
		persistence: p,
		registry:    registry,
		publisher:   publisher,
		logger:      logger.With("module", "stageconfig-service"),
	}
}

// List returns all stage configs ordered by position.
func (s *StageConfigService) List(ctx context.Context) ([]*models.StageConfig, error) {
	configs, err := s.persistence.StageConfigs().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage configs: %w", err)
	}

	return models.SortStagesByPosition(configs), nil
}

// Get returns one stage config by ID.
func (s *StageConfigService) Get(ctx context.Context, stageID string) (*models.StageConfig, error) {
	if stageID == "" {
		return nil, &ServiceError{Op: "Get", Err: ErrInvalidRequest}
	}

	cfg, err := s.persistence.StageConfigs().GetByID(ctx, stageID)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Create validates and persists a new stage config.
func (s *StageConfigService) Create(ctx context.Context, cfg *models.StageConfig) (*models.StageConfig, error) {
	if cfg == nil || cfg.StageID == "" || cfg.StageName == "" {
		return nil, &ServiceError{Op: "Create", Err: ErrInvalidRequest}
	}

	if !slices.Contains(s.registry.StageTypes(), cfg.StageType) {
		return nil, fmt.Errorf("stage type %q: %w", cfg.StageType, ErrUnknownStageType)
	}

	existing, err := s.persistence.StageConfigs().GetByID(ctx, cfg.StageID)
	if err != nil && !persistence.IsStageNotFound(err) {
		return nil, fmt.Errorf("failed to check stage config: %w", err)
	}

	if existing != nil {
		return nil, fmt.Errorf("stage %q: %w", cfg.StageID, ErrStageAlreadyExists)
	}

	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	err = s.validateGraphWith(ctx, cfg)
	if err != nil {
		return nil, err
	}

	err = s.persistence.StageConfigs().Save(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to save stage config: %w", err)
	}

	s.publishUpdated(ctx, cfg.StageID)
	s.logger.InfoContext(ctx, "Stage config created", "stage_id", cfg.StageID)

	return cfg, nil
}

// Update applies a partial patch to an existing stage config. The patched
// config is validated against the rest of the pipeline before it is saved.
func (s *StageConfigService) Update(ctx context.Context, stageID string, patch models.StageConfigPatch) (*models.StageConfig, error) {
	if stageID == "" {
		return nil, &ServiceError{Op: "Update", Err: ErrInvalidRequest}
	}

	current, err := s.persistence.StageConfigs().GetByID(ctx, stageID)
	if err != nil {
		return nil, err
	}

	updated := patch.Apply(*current)
	updated.UpdatedAt = time.Now().UTC()

	err = s.validateGraphWith(ctx, &updated)
	if err != nil {
		return nil, err
	}

	err = s.persistence.StageConfigs().Save(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to save stage config: %w", err)
	}

	s.publishUpdated(ctx, stageID)
	s.logger.InfoContext(ctx, "Stage config updated", "stage_id", stageID)

	return &updated, nil
}

// validateGraphWith checks the dependency graph as it would look with cfg in
// place of its current version.
func (s *StageConfigService) validateGraphWith(ctx context.Context, cfg *models.StageConfig) error {
	configs, err := s.persistence.StageConfigs().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stage configs: %w", err)
	}

	merged := make([]*models.StageConfig, 0, len(configs)+1)

	for _, existing := range configs {
		if existing.StageID == cfg.StageID {
			continue
		}

		merged = append(merged, existing)
	}

	merged = append(merged, cfg)

	return models.ValidateStageGraph(merged)
}

func (s *StageConfigService) publishUpdated(ctx context.Context, stageID string) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, stageID, events.StageConfigUpdated{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.StageConfigUpdatedEvent,
			Timestamp: time.Now().UTC(),
		},
		StageID: stageID,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish stage config event", "stage_id", stageID, "error", err)
	}
}
