package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение. Ошибка запускает повтор.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerDeadLetter: сообщение, которое consumer так и не смог обработать.
type ConsumerDeadLetter struct {
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// Consumer читает topics в составе consumer group и передаёт сообщения handler.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
	logger  *log.Entry

	deadLetters *Producer
	maxAttempts int
	backoff     time.Duration

	wg sync.WaitGroup
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetters отправляет сообщение в TopicDeadLetterQueue после maxAttempts неудач.
// Без этой опции необработанное сообщение не коммитится и будет перечитано.
func WithDeadLetters(producer *Producer, maxAttempts int) ConsumerOption {
	return func(c *Consumer) {
		c.deadLetters = producer
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// WithRetryBackoff задаёт паузу между повторами; 0 отключает паузу.
func WithRetryBackoff(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.backoff = max(d, 0) }
}

func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func consumerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return cfg
}

// NewConsumer подключается к brokers группой groupID.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, consumerConfig())
	if err != nil {
		return nil, fmt.Errorf("join kafka group %s: %w", groupID, err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:       group,
		topics:      topics,
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer"),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне и сразу возвращается. Остановка: отмена ctx и Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается на каждом rebalance.
		for ctx.Err() == nil {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Warn("consume session ended with error")
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("kafka consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("close kafka consumer: %w", err)
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim коммитит сообщение только после успешной обработки или отправки в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.process(ctx, msg); err != nil {
				c.logger.WithError(err).WithFields(messageFields(msg)).Error("message left unacknowledged")
				continue
			}
			session.MarkMessage(msg, "")
		}
	}
}

// process вызывает handler, пока не кончатся попытки. Попытки прошлых
// прогонов берутся из заголовка HeaderRetryCount.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	spent := retryCount(msg)
	budget := max(c.maxAttempts-spent, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = c.handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == budget {
			break
		}
		c.logger.WithError(err).WithFields(messageFields(msg)).WithField("attempt", spent+attempt).Warn("retrying message")
		if err := sleepCtx(ctx, c.backoff); err != nil {
			return err
		}
	}

	if c.deadLetters == nil {
		return err
	}
	attempts := spent + budget
	if dlqErr := c.toDeadLetters(ctx, msg, err, attempts); dlqErr != nil {
		return fmt.Errorf("dead-letter %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, dlqErr)
	}
	c.logger.WithFields(messageFields(msg)).WithField("attempts", attempts).Warn("message moved to dead letters")
	return nil
}

func (c *Consumer) toDeadLetters(ctx context.Context, msg *sarama.ConsumerMessage, cause error, attempts int) error {
	letter := ConsumerDeadLetter{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Value:     string(msg.Value),
		Error:     cause.Error(),
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}
	return c.deadLetters.PublishEvent(ctx, TopicDeadLetterQueue, letter.Key, letter,
		recordHeader(HeaderOriginalTopic, msg.Topic),
		recordHeader(HeaderRetryCount, strconv.Itoa(attempts)),
		recordHeader(HeaderErrorMessage, letter.Error),
		recordHeader(HeaderFailedAt, letter.FailedAt.Format(time.RFC3339)),
	)
}

func retryCount(msg *sarama.ConsumerMessage) int {
	raw, ok := header(msg, HeaderRetryCount)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func recordHeader(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}

func messageFields(msg *sarama.ConsumerMessage) log.Fields {
	return log.Fields{"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
