package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/advisoros/taskcore/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	wg sync.WaitGroup
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "event_bus"),
	}
}

// Emit publishes the events in one call so a transport that batches keeps their order.
func (eb *WatermillEventBus) Emit(ctx context.Context, evts ...events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	msgs := make([]*message.Message, 0, len(evts))

	for _, event := range evts {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
		}

		msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
		msg.Metadata.Set(events.EventMetadataKey, event.Key())
		msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
		msg.SetContext(ctx)

		msgs = append(msgs, msg)
	}

	return eb.publisher.Publish(events.Topic, msgs...)
}

func (eb *WatermillEventBus) Relay(ctx context.Context, sink events.Sink) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	eb.wg.Add(1)

	go func() {
		defer eb.wg.Done()

		for msg := range messages {
			eb.relay(msg, sink)
		}

		eb.logger.Info("event relay stopped")
	}()

	return nil
}

// relay always acks: the broker is a best-effort transport and sessions recover lost
// events through catch-up.
func (eb *WatermillEventBus) relay(msg *message.Message, sink events.Sink) {
	ctx := msg.Context()

	var event events.Event

	err := json.Unmarshal(msg.Payload, &event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "failed to decode event", "message_id", msg.UUID,
			"event_type", msg.Metadata.Get(events.EventTypeMetadataKey), "error", err)
		msg.Ack()

		return
	}

	err = sink.Emit(ctx, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "failed to relay event", "event_id", event.ID, "error", err)
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	err = eb.subscriber.Close()
	eb.wg.Wait()

	return err
}
