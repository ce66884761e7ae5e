package kafka

import (
	"context"
	"fmt"
	"log"

	"friendfeed/internal/config"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// MessageHandler is a function type for processing consumed Kafka messages.
// Returning an error leaves the offset uncommitted.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer defines the interface for a Kafka message consumer.
type MessageConsumer interface {
	Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error
	Close()
}

// confluentKafkaConsumer is an implementation of MessageConsumer using confluent-kafka-go.
type confluentKafkaConsumer struct {
	consumer    *kafka.Consumer
	cfg         config.KafkaConfig
	groupID     string
	offsetReset string
}

// NewConfluentKafkaConsumer creates a consumer; the underlying client is created in Consume
// once the group is known. offsetReset is "earliest" or "latest".
func NewConfluentKafkaConsumer(cfg config.KafkaConfig, offsetReset string) (MessageConsumer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}
	if offsetReset == "" {
		offsetReset = "earliest"
	}
	return &confluentKafkaConsumer{cfg: cfg, offsetReset: offsetReset}, nil
}

// Consume starts consuming messages from the specified topics and group.
// It blocks until the context is canceled or a fatal error occurs.
func (c *confluentKafkaConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	c.groupID = groupID

	configMap := baseConfigMap(c.cfg)
	_ = configMap.SetKey("group.id", groupID)
	_ = configMap.SetKey("auto.offset.reset", c.offsetReset)
	_ = configMap.SetKey("enable.auto.commit", false) // committed after the handler succeeds

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer for group %s: %w", groupID, err)
	}
	c.consumer = consumer

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topics %v for group %s: %w", topics, groupID, err)
	}
	log.Printf("Kafka consumer started for GroupID: %s, subscribed to Topics: %v", groupID, topics)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Context canceled for consumer group %s. Shutting down.", groupID)
			return nil
		default:
		}

		ev := c.consumer.Poll(1000)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if err := handler(ctx, e); err != nil {
				log.Printf("Error processing Kafka message for group %s (Topic: %s, Offset: %v): %v",
					groupID, *e.TopicPartition.Topic, e.TopicPartition.Offset, err)
				continue
			}
			if _, err := c.consumer.CommitMessage(e); err != nil {
				log.Printf("Failed to commit offset for group %s (Topic: %s, Offset: %v): %v",
					groupID, *e.TopicPartition.Topic, e.TopicPartition.Offset, err)
			}
		case kafka.Error:
			log.Printf("Kafka consumer error for group %s: %v (Code: %d, Fatal: %t)", groupID, e, e.Code(), e.IsFatal())
			if e.IsFatal() {
				return e
			}
		}
	}
}

// Close closes the Kafka consumer.
func (c *confluentKafkaConsumer) Close() {
	if c.consumer == nil {
		return
	}
	if err := c.consumer.Close(); err != nil {
		log.Printf("Error closing Kafka consumer for group %s: %v", c.groupID, err)
	}
	c.consumer = nil
}
