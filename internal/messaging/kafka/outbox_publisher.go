package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
// Ключом сообщения служит идентификатор заказа, так что события одного заказа
// попадают в одну партицию и сохраняют порядок.
type OutboxTopicPublisher struct {
	producer    *Producer
	topic       string
	originTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// NewDeadLetterPublisher пишет в DLQ и помечает сообщения исходным topic.
func NewDeadLetterPublisher(producer *Producer, originTopic string) *OutboxTopicPublisher {
	if originTopic == "" {
		originTopic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: TopicDeadLetterQueue, originTopic: originTopic}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string { return p.topic }

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	headers := []sarama.RecordHeader{recordHeader(HeaderEventType, event.EventType)}
	if p.originTopic != "" {
		headers = append(headers,
			recordHeader(HeaderOriginalTopic, p.originTopic),
			recordHeader(HeaderFailedAt, time.Now().UTC().Format(time.RFC3339)),
		)
	}

	return p.producer.PublishEvent(ctx, p.topic, key, NewEnvelope(event), headers...)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
