package kafka

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
)

// Producer publishes lifecycle events. Messages are partitioned by the
// "partition_key" metadata so all events of one code stay ordered.
type Producer struct {
	publisher message.Publisher
}

func NewProducer(cfg *config.Configuration, log *logger.Logger) (*Producer, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Kafka.Brokers,
			Marshaler:             kafka.NewWithPartitioningMarshaler(partitionKey),
			OverwriteSaramaConfig: GetSaramaConfig(cfg),
		},
		log.Watermill(),
	)
	if err != nil {
		return nil, err
	}

	return &Producer{publisher: publisher}, nil
}

func (p *Producer) Publish(topic string, msg *message.Message) error {
	if msg.UUID == "" {
		msg.UUID = watermill.NewUUID()
	}
	return p.publisher.Publish(topic, msg)
}

func (p *Producer) Close() error {
	return p.publisher.Close()
}

// partitionKey falls back to the message id, which spreads unkeyed events
func partitionKey(_ string, msg *message.Message) (string, error) {
	if key := msg.Metadata.Get(MetadataPartitionKey); key != "" {
		return key, nil
	}
	return msg.UUID, nil
}
