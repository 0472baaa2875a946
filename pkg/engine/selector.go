package engine

import (
	"fmt"

	"github.com/drishiq/ddsa/pkg/models"
)

// selection is the outcome of scanning the pipeline for one turn: the stage
// to execute (nil when nothing is eligible) and the inactive optional stages
// that were passed over on the way to it.
type selection struct {
	stage   *models.StageConfig
	skipped []*models.StageConfig
}

// nextEligible scans stages in ascending position order and picks the first
// active stage whose dependencies have all been attempted. Inactive stages
// that are not required are collected as skipped and treated as attempted,
// which may unlock their dependents within the same scan. An inactive
// required stage halts the scan with ErrRequiredStageInactive.
func nextEligible(state *models.ConversationState, configs []*models.StageConfig) (*selection, error) {
	attempted := make(map[string]bool, len(state.CompletedStages))
	for _, stageID := range state.CompletedStages {
		attempted[stageID] = true
	}

	sorted := models.SortStagesByPosition(configs)
	sel := &selection{}

	for rescan := true; rescan; {
		rescan = false

		for _, cfg := range sorted {
			if attempted[cfg.StageID] {
				continue
			}

			if !dependenciesSatisfied(cfg, attempted) {
				continue
			}

			if cfg.IsActive {
				sel.stage = cfg

				return sel, nil
			}

			if cfg.IsRequired {
				return nil, fmt.Errorf("stage %q: %w", cfg.StageID, ErrRequiredStageInactive)
			}

			attempted[cfg.StageID] = true
			sel.skipped = append(sel.skipped, cfg)
			rescan = true

			break
		}
	}

	return sel, nil
}

func dependenciesSatisfied(cfg *models.StageConfig, attempted map[string]bool) bool {
	for _, dep := range cfg.Dependencies {
		if !attempted[dep] {
			return false
		}
	}

	return true
}
