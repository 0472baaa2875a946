// Package cmd provides shared wiring helpers for the ddsa binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/drishiq/ddsa/pkg/persistence"
	"github.com/drishiq/ddsa/pkg/persistence/file"
	"github.com/drishiq/ddsa/pkg/persistence/postgresql"
)

// NewPersistence selects a persistence backend from the database URL scheme.
// postgres:// URLs get the PostgreSQL backend; anything else is treated as a
// file path for the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic("failed to initialize postgres persistence: " + err.Error())
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
