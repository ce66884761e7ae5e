package services

import (
	"context"
	"log"
	"sync"
	"time"

	"friendfeed/internal/kafka"
)

const publishTimeout = 5 * time.Second

// ActivityPublisher announces committed friendship and post changes.
// Publishing never fails or delays the operation that triggered it.
type ActivityPublisher interface {
	Publish(ctx context.Context, event kafka.ActivityEvent)
	// Wait blocks until every event handed to Publish is delivered or given up on.
	Wait()
}

type kafkaActivityPublisher struct {
	producer kafka.MessageProducer
	topic    string
	now      Clock
	inflight sync.WaitGroup
}

// NewActivityPublisher returns a publisher writing to topic. A nil producer gives
// a publisher that drops every event.
func NewActivityPublisher(producer kafka.MessageProducer, topic string) ActivityPublisher {
	if producer == nil || topic == "" {
		return noopPublisher{}
	}
	return &kafkaActivityPublisher{producer: producer, topic: topic, now: utcNow}
}

func (p *kafkaActivityPublisher) Publish(ctx context.Context, event kafka.ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}
	payload, err := event.Encode()
	if err != nil {
		log.Printf("Error encoding %s event for user %d: %v", event.Type, event.ActorID, err)
		return
	}

	// 投递报告在后台等待，请求不必等 broker
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer cancel()
		if err := p.producer.SendMessage(ctx, p.topic, event.Key(), payload); err != nil {
			log.Printf("Error publishing %s event for user %d to topic %s: %v", event.Type, event.ActorID, p.topic, err)
		}
	}()
}

func (p *kafkaActivityPublisher) Wait() {
	p.inflight.Wait()
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, kafka.ActivityEvent) {}

func (noopPublisher) Wait() {}
