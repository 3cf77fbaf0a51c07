// Package events defines the versioned mutation events distributed to sessions.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

// EntityType identifies which kind of entity an event's version belongs to.
type EntityType string

// Watermill topics.
const Topic = "taskcore.events"
const ActionTopic = "taskcore.actions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	EntityWorkflow EntityType = "workflow"
	EntityTask     EntityType = "task"
)

const (
	TaskUpdatedEvent             EventType = "task_updated"
	TaskAssignedEvent            EventType = "task_assigned"
	WorkflowUpdatedEvent         EventType = "workflow_updated"
	WorkflowProgressChangedEvent EventType = "workflow_progress_changed"
	CommentAddedEvent            EventType = "comment_added"
	CommentResolvedEvent         EventType = "comment_resolved"

	// ResyncRequiredEvent is delivered by the broker to a subscriber whose queue overflowed.
	ResyncRequiredEvent EventType = "resync_required"
)

// Event is one ordered mutation of an entity. Comment events are keyed by the owning task.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	EntityType     EntityType      `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	WorkflowID     string          `json:"workflow_id"`
	OrganizationID string          `json:"organization_id"`
	Version        int64           `json:"version"`
	ActorID        string          `json:"actor_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// GetType returns the event type.
func (e Event) GetType() EventType {
	return e.Type
}

// Key returns the partitioning key that keeps a workflow's events in order.
func (e Event) Key() string {
	return e.WorkflowID
}

// New builds an event for an entity at the given version, encoding payload as JSON.
func New(eventType EventType, entityType EntityType, entityID string, version int64, payload any) (Event, error) {
	event := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Version:    version,
		Timestamp:  time.Now().UTC(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}

		event.Payload = raw
	}

	return event, nil
}

// Sink receives events after the mutation that produced them has been committed.
// Implementations must not block the caller on slow consumers.
type Sink interface {
	Emit(ctx context.Context, evts ...Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, evts ...Event) error

func (f SinkFunc) Emit(ctx context.Context, evts ...Event) error {
	return f(ctx, evts...)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(context.Context, ...Event) error { return nil })
