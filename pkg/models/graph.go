package models

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrCyclicDependency indicates the stage dependency graph contains a cycle.
	ErrCyclicDependency = errors.New("cyclic stage dependency")

	// ErrUnknownDependency indicates a stage depends on a stage ID that does not exist.
	ErrUnknownDependency = errors.New("unknown stage dependency")
)

// ValidateStageGraph checks that every dependency refers to a known stage and
// that the dependency relation is acyclic. Validation runs at config-change
// and flow-visualization time; execution never begins on an invalid graph.
func ValidateStageGraph(configs []*StageConfig) error {
	byID := make(map[string]*StageConfig, len(configs))
	for _, cfg := range configs {
		byID[cfg.StageID] = cfg
	}

	for _, cfg := range configs {
		for _, dep := range cfg.Dependencies {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("stage %s depends on %s: %w", cfg.StageID, dep, ErrUnknownDependency)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(configs))

	var visit func(id string) error

	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("stage %s is on a dependency cycle: %w", id, ErrCyclicDependency)
		case done:
			return nil
		}

		state[id] = visiting

		for _, dep := range byID[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}

		state[id] = done

		return nil
	}

	for _, cfg := range configs {
		if err := visit(cfg.StageID); err != nil {
			return err
		}
	}

	return nil
}

// SortStagesByPosition returns the configs ordered by ascending Position,
// breaking ties by StageID so the order is stable and reproducible.
func SortStagesByPosition(configs []*StageConfig) []*StageConfig {
	out := make([]*StageConfig, len(configs))
	copy(out, configs)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}

		return out[i].StageID < out[j].StageID
	})

	return out
}

// DependencyOrder returns the configs in topological order of the dependency
// graph, using Position (then StageID) to break ties between simultaneously
// eligible stages. The graph must already be validated.
func DependencyOrder(configs []*StageConfig) []*StageConfig {
	byID := make(map[string]*StageConfig, len(configs))
	indegree := make(map[string]int, len(configs))
	dependents := make(map[string][]string, len(configs))

	for _, cfg := range configs {
		byID[cfg.StageID] = cfg
		indegree[cfg.StageID] = len(cfg.Dependencies)

		for _, dep := range cfg.Dependencies {
			dependents[dep] = append(dependents[dep], cfg.StageID)
		}
	}

	ready := make([]*StageConfig, 0, len(configs))
	for _, cfg := range configs {
		if indegree[cfg.StageID] == 0 {
			ready = append(ready, cfg)
		}
	}

	ordered := make([]*StageConfig, 0, len(configs))

	for len(ready) > 0 {
		ready = SortStagesByPosition(ready)
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		for _, depID := range dependents[next.StageID] {
			indegree[depID]--
			if indegree[depID] == 0 {
				ready = append(ready, byID[depID])
			}
		}
	}

	return ordered
}
