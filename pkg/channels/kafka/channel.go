// Package kafka provides the watermill Kafka transport for multi-instance deployments.
package kafka

import (
	"errors"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Config selects the cluster and the consumer group. Every instance that fans events out to
// its own sessions needs all events, so each one uses a distinct ConsumerGroup.
type Config struct {
	Brokers       []string
	ConsumerGroup string
	// PartitionKeyMetadata names the message metadata used as the Kafka key, keeping every
	// event of a workflow on one partition and therefore in order.
	PartitionKeyMetadata string
	// InitialOffset is where a new consumer group starts reading. Zero means
	// sarama.OffsetNewest: sessions recover older events through catch-up.
	InitialOffset int64
}

func CreateChannel(logger watermill.LoggerAdapter, config Config) (*kafka.Publisher, *kafka.Subscriber, error) {
	if len(config.Brokers) == 0 || config.Brokers[0] == "" {
		return nil, nil, errors.New("kafka brokers are not set")
	}

	if config.ConsumerGroup == "" {
		return nil, nil, errors.New("kafka consumer group is not set")
	}

	marshaler := kafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(config.PartitionKeyMetadata), nil
	})

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	if config.InitialOffset != 0 {
		saramaSubscriberConfig.Consumer.Offsets.Initial = config.InitialOffset
	}

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               config.Brokers,
			Unmarshaler:           marshaler,
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         config.ConsumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true
	saramaPublisherConfig.Producer.Partitioner = sarama.NewHashPartitioner

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               config.Brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: saramaPublisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		_ = subscriber.Close()

		return nil, nil, err
	}

	return publisher, subscriber, nil
}
