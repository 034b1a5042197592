package repository

import (
	"context"
	"fmt"

	"ShrimpCast/internal/domain/models"
	domrepo "ShrimpCast/internal/domain/repository"
	pkgkafka "ShrimpCast/pkg/kafka"
)

// KafkaEventPublisher publishes each domain event type to its own topic,
// keyed by the event key so that events of one series stay ordered.
type KafkaEventPublisher struct {
	producer pkgkafka.Publisher
	topics   pkgkafka.Topics
}

func NewKafkaEventPublisher(producer pkgkafka.Publisher, topics pkgkafka.Topics) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topics: topics}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.Event) error {
	topic, ok := p.topics.ForEvent(string(ev.Type))
	if !ok {
		return fmt.Errorf("no topic for event type %q", ev.Type)
	}
	return p.producer.Publish(ctx, topic, []byte(ev.Key), ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopEventPublisher drops events. It is used when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) Publish(context.Context, models.Event) error { return nil }

func (NopEventPublisher) Close() error { return nil }

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = NopEventPublisher{}
)
