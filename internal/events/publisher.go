package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventPublisher publishes domain events. Implementations must be safe for
// concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event interface{}) error
	Close() error
}

// WatermillPublisher wraps a watermill publisher with JSON marshaling.
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewKafkaPublisher creates a publisher backed by Kafka. Brokers must be
// non-empty.
func NewKafkaPublisher(brokers []string, logger *slog.Logger) (*WatermillPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return &WatermillPublisher{publisher: publisher, logger: logger}, nil
}

// NewInProcessPublisher creates a gochannel-backed publisher for local
// development and tests where no broker is available.
func NewInProcessPublisher(logger *slog.Logger) *WatermillPublisher {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewSlogLogger(logger),
	)

	return &WatermillPublisher{publisher: pubSub, logger: logger}
}

// Publish marshals the event as JSON and publishes it to the topic.
func (p *WatermillPublisher) Publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for topic %s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "Event published", "topic", topic, "message_id", msg.UUID)
	return nil
}

// Close shuts down the underlying publisher.
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// NopPublisher discards events. Used when eventing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, topic string, event interface{}) error { return nil }
func (NopPublisher) Close() error                                                       { return nil }
