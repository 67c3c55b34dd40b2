package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "coffee.order.events"
	TopicDeadLetterQueue = "coffee.dlq" // Dead Letter Queue для недоставленных событий
)

// Kafka headers
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// Envelope: обёртка outbox-сообщения в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope заворачивает outbox-сообщение. Невалидный JSON в payload
// сохраняется строкой.
func NewEnvelope(msg domain.OutboxMessage) Envelope {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		raw, _ := json.Marshal(string(msg.Payload))
		payload = raw
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
}

// ParseEnvelope разбирает конверт из сообщения
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// ParseOrderEvent достаёт событие заказа из конверта
func ParseOrderEvent(message *sarama.ConsumerMessage) (*domain.OrderEvent, error) {
	env, err := ParseEnvelope(message)
	if err != nil {
		return nil, err
	}
	var event domain.OrderEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

// ParseDeadLetter достаёт DLQ-конверт outbox-воркера
func ParseDeadLetter(message *sarama.ConsumerMessage) (*domain.OutboxDeadLetter, error) {
	env, err := ParseEnvelope(message)
	if err != nil {
		return nil, err
	}
	var letter domain.OutboxDeadLetter
	if err := json.Unmarshal(env.Payload, &letter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	if letter.OutboxID == "" {
		return nil, fmt.Errorf("dead letter without outbox id")
	}
	return &letter, nil
}

func header(message *sarama.ConsumerMessage, key string) (string, bool) {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
