package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// StageConfigRepository handles stage-config database operations.
type StageConfigRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStageConfigRepository creates a new stage config repository.
func NewStageConfigRepository(db *sql.DB, logger *slog.Logger) *StageConfigRepository {
	return &StageConfigRepository{db: db, logger: logger}
}

const stageConfigColumns = `
	stage_id
  , stage_name
  , stage_type
  , position
  , is_active
  , is_required
  , dry_run
  , dependencies
  , config
  , created_at
  , updated_at
`

// List returns all stage configs ordered by ascending position.
func (r *StageConfigRepository) List(ctx context.Context) ([]*models.StageConfig, error) {
	query := `SELECT ` + stageConfigColumns + ` FROM stage_configs ORDER BY position ASC, stage_id ASC`

	return r.queryConfigs(ctx, query)
}

// ListActive returns the active stage configs ordered by ascending position.
func (r *StageConfigRepository) ListActive(ctx context.Context) ([]*models.StageConfig, error) {
	query := `SELECT ` + stageConfigColumns + ` FROM stage_configs WHERE is_active ORDER BY position ASC, stage_id ASC`

	return r.queryConfigs(ctx, query)
}

func (r *StageConfigRepository) queryConfigs(ctx context.Context, query string, args ...any) ([]*models.StageConfig, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage configs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	configs := make([]*models.StageConfig, 0)

	for rows.Next() {
		config, err := scanStageConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage config: %w", err)
		}

		configs = append(configs, config)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating stage configs: %w", err)
	}

	return configs, nil
}

// GetByID returns the stage config or ErrStageNotFound.
func (r *StageConfigRepository) GetByID(ctx context.Context, stageID string) (*models.StageConfig, error) {
	query := `SELECT ` + stageConfigColumns + ` FROM stage_configs WHERE stage_id = $1`

	row := r.db.QueryRowContext(ctx, query, stageID)

	config, err := scanStageConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.StageError{Op: "GetByID", StageID: stageID, Err: persistence.ErrStageNotFound}
		}

		return nil, &persistence.StageError{Op: "GetByID", StageID: stageID, Err: err}
	}

	return config, nil
}

// Save upserts the stage config.
func (r *StageConfigRepository) Save(ctx context.Context, config *models.StageConfig) error {
	now := time.Now().UTC()

	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}

	config.UpdatedAt = now

	dependenciesJSON, err := json.Marshal(config.Dependencies)
	if err != nil {
		return &persistence.StageError{Op: "Save", StageID: config.StageID,
			Err: fmt.Errorf("failed to encode dependencies: %w", err)}
	}

	configJSON, err := json.Marshal(config.Config)
	if err != nil {
		return &persistence.StageError{Op: "Save", StageID: config.StageID,
			Err: fmt.Errorf("failed to encode config: %w", err)}
	}

	query := `
		INSERT INTO stage_configs (
			stage_id, stage_name, stage_type, position,
			is_active, is_required, dry_run,
			dependencies, config, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (stage_id) DO UPDATE SET
			stage_name = EXCLUDED.stage_name,
			stage_type = EXCLUDED.stage_type,
			position = EXCLUDED.position,
			is_active = EXCLUDED.is_active,
			is_required = EXCLUDED.is_required,
			dry_run = EXCLUDED.dry_run,
			dependencies = EXCLUDED.dependencies,
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		config.StageID,
		config.StageName,
		config.StageType,
		config.Position,
		config.IsActive,
		config.IsRequired,
		config.DryRun,
		dependenciesJSON,
		configJSON,
		config.CreatedAt,
		config.UpdatedAt,
	)
	if err != nil {
		return &persistence.StageError{Op: "Save", StageID: config.StageID, Err: err}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStageConfig(row rowScanner) (*models.StageConfig, error) {
	var (
		config           models.StageConfig
		dependenciesJSON []byte
		configJSON       []byte
	)

	err := row.Scan(
		&config.StageID,
		&config.StageName,
		&config.StageType,
		&config.Position,
		&config.IsActive,
		&config.IsRequired,
		&config.DryRun,
		&dependenciesJSON,
		&configJSON,
		&config.CreatedAt,
		&config.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(dependenciesJSON, &config.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("failed to decode dependencies: %w", err)
	}

	if len(configJSON) > 0 {
		err = json.Unmarshal(configJSON, &config.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	return &config, nil
}
