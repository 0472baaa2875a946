package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// StageConfigRepository stores one JSON document per stage config.
type StageConfigRepository struct {
	root string
}

// NewStageConfigRepository creates a new stage config repository.
func NewStageConfigRepository(root string) *StageConfigRepository {
	return &StageConfigRepository{root: root}
}

func (r *StageConfigRepository) dir() string {
	return filepath.Join(r.root, "stages")
}

func (r *StageConfigRepository) path(stageID string) string {
	return filepath.Join(r.dir(), stageID+".json")
}

// List returns all stage configs ordered by ascending position.
func (r *StageConfigRepository) List(ctx context.Context) ([]*models.StageConfig, error) {
	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list stage files: %w", err)
	}

	configs := make([]*models.StageConfig, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		stageID := name[:len(name)-5] // Remove .json extension

		config, err := r.GetByID(ctx, stageID)
		if err != nil {
			return nil, fmt.Errorf("failed to load stage %s: %w", stageID, err)
		}

		configs = append(configs, config)
	}

	return models.SortStagesByPosition(configs), nil
}

// ListActive returns the active stage configs ordered by ascending position.
func (r *StageConfigRepository) ListActive(ctx context.Context) ([]*models.StageConfig, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.StageConfig, 0, len(all))

	for _, config := range all {
		if config.IsActive {
			active = append(active, config)
		}
	}

	return active, nil
}

// GetByID returns the stage config or ErrStageNotFound.
func (r *StageConfigRepository) GetByID(_ context.Context, stageID string) (*models.StageConfig, error) {
	data, err := os.ReadFile(r.path(stageID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.StageError{Op: "GetByID", StageID: stageID, Err: persistence.ErrStageNotFound}
		}

		return nil, &persistence.StageError{Op: "GetByID", StageID: stageID, Err: err}
	}

	var config models.StageConfig

	err = json.Unmarshal(data, &config)
	if err != nil {
		return nil, &persistence.StageError{
			Op:      "GetByID",
			StageID: stageID,
			Err:     fmt.Errorf("failed to decode stage config: %w", err),
		}
	}

	return &config, nil
}

// Save writes the stage config document.
func (r *StageConfigRepository) Save(_ context.Context, config *models.StageConfig) error {
	err := os.MkdirAll(r.dir(), 0o755)
	if err != nil {
		return &persistence.StageError{Op: "Save", StageID: config.StageID, Err: err}
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return &persistence.StageError{
			Op:      "Save",
			StageID: config.StageID,
			Err:     fmt.Errorf("failed to encode stage config: %w", err),
		}
	}

	err = os.WriteFile(r.path(config.StageID), data, 0o644)
	if err != nil {
		return &persistence.StageError{Op: "Save", StageID: config.StageID, Err: err}
	}

	return nil
}
