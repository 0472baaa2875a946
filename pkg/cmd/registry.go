package cmd

import (
	"log/slog"

	"github.com/drishiq/ddsa/pkg/generator"
)

// NewRegistry creates a generator registry with the built-in stage types
// registered.
func NewRegistry(logger *slog.Logger) *generator.Registry {
	registry := generator.NewRegistry(logger)
	generator.RegisterBuiltins(registry)

	return registry
}
