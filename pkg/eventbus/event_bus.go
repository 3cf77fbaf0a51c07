// Package eventbus carries committed mutation events from the stores to the broker over a
// watermill transport, so several service instances can share one event stream.
package eventbus

import (
	"context"

	"github.com/advisoros/taskcore/pkg/events"
)

// EventBus publishes events on the transport and relays the events it receives to a sink.
type EventBus interface {
	events.Sink

	// Relay starts consuming the transport and hands every event to sink. It returns once
	// the subscription is established.
	Relay(ctx context.Context, sink events.Sink) error

	Close() error
}
