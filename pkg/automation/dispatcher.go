package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/advisoros/taskcore/pkg/events"
)

// Dispatcher hands an action request to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, request ActionRequest) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, request ActionRequest) error

func (f DispatcherFunc) Dispatch(ctx context.Context, request ActionRequest) error {
	return f(ctx, request)
}

// LogDispatcher only records requests. It is the default when no executor is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("module", "automation_log_dispatcher")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, request ActionRequest) error {
	d.logger.InfoContext(ctx, "automation action requested",
		"action", request.Action,
		"rule_id", request.RuleID,
		"trigger", request.Trigger,
		"workflow_id", request.WorkflowID,
		"task_id", request.TaskID)

	return nil
}

// WatermillDispatcher publishes requests on the actions topic for the external
// notification and integration services.
type WatermillDispatcher struct {
	publisher message.Publisher
}

func NewWatermillDispatcher(publisher message.Publisher) *WatermillDispatcher {
	return &WatermillDispatcher{publisher: publisher}
}

func (d *WatermillDispatcher) Dispatch(ctx context.Context, request ActionRequest) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal action request: %w", err)
	}

	msg := message.NewMessage("action-"+watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, request.WorkflowID)
	msg.Metadata.Set("action", request.Action)
	msg.SetContext(ctx)

	return d.publisher.Publish(events.ActionTopic, msg)
}
