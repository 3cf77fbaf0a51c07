package cmd

import (
	"log/slog"

	"github.com/advisoros/taskcore/pkg/automation"
)

// NewDispatcher publishes automation actions on the transport when there is one and only
// logs them otherwise.
func NewDispatcher(transport *Transport, logger *slog.Logger) automation.Dispatcher {
	if transport == nil || transport.Publisher == nil {
		return automation.NewLogDispatcher(logger)
	}

	return automation.NewWatermillDispatcher(transport.Publisher)
}
