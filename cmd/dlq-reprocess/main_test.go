package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/messaging/kafka"
)

func noEnv(string) (string, bool) { return "", false }

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(" , "))
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{"-brokers", "k1:9092,k2:9092", "-execute", "-duration", "5s"}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.brokers)
	assert.Equal(t, defaultGroupID, cfg.groupID)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Equal(t, kafka.TopicOrderEvents, cfg.targetTopic)
	assert.True(t, cfg.execute)
	assert.Equal(t, 5*time.Second, cfg.duration)

	env := func(key string) (string, bool) {
		if key == "COFFEE_KAFKA_BROKERS" {
			return "env:9092", true
		}
		return "", false
	}
	cfg, err = parseConfig(nil, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"env:9092"}, cfg.brokers)
	assert.False(t, cfg.execute)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no brokers", nil, "kafka brokers are required"},
		{"same topics", []string{"-brokers", "k:9092", "-source-topic", "a", "-target-topic", "a"}, "must differ"},
		{"bad duration", []string{"-brokers", "k:9092", "-duration", "0s"}, "duration must be > 0"},
		{"empty group", []string{"-brokers", "k:9092", "-group", " "}, "group is required"},
		{"unknown flag", []string{"-nope"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args, noEnv)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// fakeConsumer подаёт заранее заданные сообщения в handler при старте.
type fakeConsumer struct {
	handler  kafka.MessageHandler
	messages []*sarama.ConsumerMessage
	errs     []error
	stopped  bool
}

func (c *fakeConsumer) Start(ctx context.Context) error {
	for _, m := range c.messages {
		c.errs = append(c.errs, c.handler(ctx, m))
	}
	return nil
}

func (c *fakeConsumer) Stop() error {
	c.stopped = true
	return nil
}

func deadLetter(t *testing.T) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(domain.OutboxDeadLetter{
		OutboxID:      "evt-1",
		AggregateType: "order",
		AggregateID:   "SO1",
		EventType:     "order.created",
		Payload:       json.RawMessage(`{"order_id":"SO1"}`),
		PublishError:  "broker down",
		FailedAt:      time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	value, err := json.Marshal(kafka.NewEnvelope(domain.OutboxMessage{
		ID:          "evt-1",
		AggregateID: "SO1",
		EventType:   "order.created",
		Payload:     raw,
	}))
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Value: value}
}

func testRuntime(consumer *fakeConsumer, producer *kafka.Producer) runtime {
	return runtime{
		newProducer: func([]string) (*kafka.Producer, error) {
			if producer == nil {
				return nil, errors.New("no producer")
			}
			return producer, nil
		},
		newConsumer: func(_ config, handler kafka.MessageHandler) (replayConsumer, error) {
			consumer.handler = handler
			return consumer, nil
		},
	}
}

func TestRun_DryRun(t *testing.T) {
	consumer := &fakeConsumer{messages: []*sarama.ConsumerMessage{
		deadLetter(t),
		{Topic: kafka.TopicDeadLetterQueue, Value: []byte("garbage")},
	}}
	cfg := config{brokers: []string{"k:9092"}, groupID: "g", sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicOrderEvents, duration: 10 * time.Millisecond}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, testRuntime(consumer, nil), &out))

	assert.True(t, consumer.stopped)
	assert.Equal(t, []error{nil, nil}, consumer.errs)
	assert.Equal(t, "dlq replay dry-run: replayed=1 skipped=1\n", out.String())
}

func TestRun_ExecuteRepublishes(t *testing.T) {
	sync := mocks.NewSyncProducer(t, nil)
	sync.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "SO1" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	consumer := &fakeConsumer{messages: []*sarama.ConsumerMessage{deadLetter(t)}}
	cfg := config{brokers: []string{"k:9092"}, groupID: "g", sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicOrderEvents, execute: true, duration: 10 * time.Millisecond}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, testRuntime(consumer, kafka.NewProducerFromSync(sync)), &out))

	assert.Equal(t, []error{nil}, consumer.errs)
	assert.Equal(t, "dlq replay execute: replayed=1 skipped=0\n", out.String())
}

func TestRun_ProducerError(t *testing.T) {
	cfg := config{brokers: []string{"k:9092"}, execute: true, duration: time.Millisecond}
	err := run(context.Background(), cfg, testRuntime(&fakeConsumer{}, nil), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create kafka producer")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_FAIL_SUBPROCESS") == "1" {
		fail(os.Stderr, "boom %d", 1)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_FAIL_SUBPROCESS=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
}
