package kafka

import (
	"context"
	"sync/atomic"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// DeadLetterReplayer возвращает события из DLQ в исходный topic.
// Без publisher работает в режиме dry-run и только пишет в лог.
type DeadLetterReplayer struct {
	publisher domain.OutboxPublisher
	logger    *log.Entry

	replayed atomic.Int64
	skipped  atomic.Int64
}

// NewDeadLetterReplayer создаёт replayer.
func NewDeadLetterReplayer(publisher domain.OutboxPublisher, logger *log.Entry) *DeadLetterReplayer {
	if logger == nil {
		logger = log.WithField("component", "dlq-replayer")
	}
	return &DeadLetterReplayer{publisher: publisher, logger: logger}
}

// Handle подходит как MessageHandler для Consumer.
// Нераспознанные сообщения пропускаются: повтор их не исправит.
func (r *DeadLetterReplayer) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	entry := r.logger.WithFields(log.Fields{
		"partition": message.Partition,
		"offset":    message.Offset,
	})

	letter, err := ParseDeadLetter(message)
	if err != nil {
		entry.WithError(err).Warn("skip unrecognized dlq message")
		r.skipped.Add(1)
		return nil
	}
	entry = entry.WithFields(log.Fields{
		"outbox_id":     letter.OutboxID,
		"order_id":      letter.AggregateID,
		"event_type":    letter.EventType,
		"publish_error": letter.PublishError,
	})
	if origin, ok := header(message, HeaderOriginalTopic); ok {
		entry = entry.WithField("original_topic", origin)
	}

	if r.publisher == nil {
		entry.Info("dry-run: dead letter would be replayed")
		r.replayed.Add(1)
		return nil
	}
	if err := r.publisher.Publish(ctx, letter.Message()); err != nil {
		return err
	}
	entry.Info("dead letter replayed")
	r.replayed.Add(1)
	return nil
}

// Stats возвращает число повторённых и пропущенных сообщений.
func (r *DeadLetterReplayer) Stats() (replayed, skipped int64) {
	return r.replayed.Load(), r.skipped.Load()
}
