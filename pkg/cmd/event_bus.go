package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/advisoros/taskcore/pkg/channels/gochannel"
	"github.com/advisoros/taskcore/pkg/channels/kafka"
	"github.com/advisoros/taskcore/pkg/eventbus"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/google/uuid"
)

const (
	EventBusInline    = "inline"
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"
)

// Transport is the selected event bus plus the publisher automation actions go out on.
// Both are nil for the inline provider, where stores emit straight to the broker.
type Transport struct {
	Bus       eventbus.EventBus
	Publisher message.Publisher
}

func (t *Transport) Close() error {
	if t.Bus == nil {
		return nil
	}

	return t.Bus.Close()
}

// NewEventBus creates the transport between the stores and the broker.
func NewEventBus(provider string, kafkaBrokers []string, logger *slog.Logger) (*Transport, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", EventBusInline:
		return &Transport{}, nil
	case EventBusGoChannel:
		pub, sub, err := gochannel.CreateChannel(wmLogger, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create GoChannel pub/sub: %w", err)
		}

		return &Transport{Bus: eventbus.NewWatermillEventBus(pub, sub, logger), Publisher: pub}, nil
	case EventBusKafka:
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.Config{
			Brokers:              kafkaBrokers,
			ConsumerGroup:        consumerGroup(),
			PartitionKeyMetadata: events.EventMetadataKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return &Transport{Bus: eventbus.NewWatermillEventBus(pub, sub, logger), Publisher: pub}, nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider '%s'", provider)
	}
}

// consumerGroup is unique per instance so every instance sees every event.
func consumerGroup() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}

	return "taskcore-broker-" + host
}
