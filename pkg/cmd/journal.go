package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/advisoros/taskcore/pkg/journal"
	"github.com/advisoros/taskcore/pkg/journal/redis"
)

// NewJournal returns the in-memory ring journal for "" and "memory", and a Redis Streams
// journal for redis:// and rediss:// URLs.
func NewJournal(ctx context.Context, logger *slog.Logger, journalURL string) (journal.Journal, error) {
	switch {
	case journalURL == "" || journalURL == "memory":
		return journal.NewMemory(0, 0), nil
	case strings.HasPrefix(journalURL, "redis://"), strings.HasPrefix(journalURL, "rediss://"):
		j, err := redis.NewJournal(ctx, logger, journalURL, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis journal: %w", err)
		}

		return j, nil
	default:
		return nil, fmt.Errorf("unsupported journal URL '%s'", journalURL)
	}
}
