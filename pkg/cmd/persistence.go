// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/advisoros/taskcore/pkg/persistence"
	"github.com/advisoros/taskcore/pkg/persistence/file"
	"github.com/advisoros/taskcore/pkg/persistence/postgresql"
)

// NewPersistence selects the backend from the URL scheme: postgres:// and postgresql://
// use PostgreSQL, file:// or a bare path use JSON files.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, location := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgresql persistence: %w", err)
		}

		return p, nil
	case "file":
		if location == "" {
			return nil, fmt.Errorf("file persistence needs a directory, got '%s'", databaseURL)
		}

		logger.InfoContext(ctx, "Using file persistence", "root", location)

		return file.NewPersistence(location), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider '%s'", provider)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, location, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, location
}
