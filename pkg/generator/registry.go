package generator

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Registry maps stage types to generator factories. Each factory is
// registered with a JSON schema; stage configuration is validated against it
// before a generator is created, so malformed configs are rejected early.
type Registry struct {
	logger    *slog.Logger
	factories map[string]Factory
	schemas   map[string]map[string]any
}

// NewRegistry creates an empty generator registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]Factory),
		schemas:   make(map[string]map[string]any),
	}
}

// Register adds a factory for the given stage type with its config schema.
func (r *Registry) Register(stageType string, schema map[string]any, factory Factory) {
	r.factories[stageType] = factory
	r.schemas[stageType] = schema
}

// StageTypes returns the registered stage types.
func (r *Registry) StageTypes() []string {
	types := make([]string, 0, len(r.factories))
	for stageType := range r.factories {
		types = append(types, stageType)
	}

	return types
}

// Create validates the config against the stage type's schema and builds a
// generator.
func (r *Registry) Create(stageType string, config map[string]any) (Generator, error) {
	factory, ok := r.factories[stageType]
	if !ok {
		return nil, fmt.Errorf("stage type '%s' not registered", stageType)
	}

	err := r.validateConfig(stageType, config)
	if err != nil {
		return nil, err
	}

	return factory(config)
}

func (r *Registry) validateConfig(stageType string, config map[string]any) error {
	schema, ok := r.schemas[stageType]
	if !ok || schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate config for stage type '%s': %w", stageType, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid config for stage type '%s': %s", stageType, strings.Join(descriptions, "; "))
	}

	return nil
}
