package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGroup отдаёт одну сессию с заранее заданными сообщениями, дальше ждёт Close.
type fakeGroup struct {
	messages []*sarama.ConsumerMessage
	errs     chan error
	closed   chan struct{}
	once     sync.Once

	mu     sync.Mutex
	marked []int64
	served bool
}

func newFakeGroup(messages ...*sarama.ConsumerMessage) *fakeGroup {
	return &fakeGroup{messages: messages, errs: make(chan error, 1), closed: make(chan struct{})}
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, handler sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	first := !g.served
	g.served = true
	g.mu.Unlock()

	if first {
		claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, len(g.messages))}
		for _, m := range g.messages {
			claim.ch <- m
		}
		close(claim.ch)
		sess := &fakeSession{ctx: ctx, group: g}
		if err := handler.ConsumeClaim(sess, claim); err != nil {
			return err
		}
	}
	select {
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.once.Do(func() {
		close(g.closed)
		close(g.errs)
	})
	return nil
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

func (g *fakeGroup) markedOffsets() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.marked...)
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx   context.Context
	group *fakeGroup
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.group.mu.Lock()
	defer s.group.mu.Unlock()
	s.group.marked = append(s.group.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func message(offset int64, headers ...*sarama.RecordHeader) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: TopicOrderEvents, Offset: offset, Key: []byte("SO1"), Value: []byte(`{}`), Headers: headers}
}

func TestNewConsumer_UnreachableBroker(t *testing.T) {
	_, err := NewConsumer([]string{"127.0.0.1:1"}, "g", []string{"t"}, func(context.Context, *sarama.ConsumerMessage) error { return nil })
	assert.ErrorContains(t, err, "join kafka group g")
}

func TestConsumer_MarksHandledMessages(t *testing.T) {
	group := newFakeGroup(message(1), message(2), message(3))
	var seen []int64
	c := newConsumer(group, []string{TopicOrderEvents}, func(_ context.Context, m *sarama.ConsumerMessage) error {
		seen = append(seen, m.Offset)
		if m.Offset == 2 {
			return errors.New("poison")
		}
		return nil
	}, WithRetryBackoff(0))

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(group.markedOffsets()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	// Без DLQ сообщение 2 остаётся некоммиченным.
	assert.Equal(t, []int64{1, 3}, group.markedOffsets())
	assert.Equal(t, []int64{1, 2, 2, 2, 3}, seen)
}

func TestConsumer_MovesExhaustedMessageToDeadLetters(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	var letter ConsumerDeadLetter
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != TopicDeadLetterQueue {
			return errors.New("wrong topic " + m.Topic)
		}
		raw, _ := m.Value.Encode()
		return json.Unmarshal(raw, &letter)
	})

	calls := 0
	c := newConsumer(nil, nil, func(context.Context, *sarama.ConsumerMessage) error {
		calls++
		return errors.New("handler down")
	}, WithDeadLetters(NewProducerFromSync(sp), 3), WithRetryBackoff(0))

	// Одна попытка уже потрачена в прошлом прогоне.
	msg := message(7, &sarama.RecordHeader{Key: []byte(HeaderRetryCount), Value: []byte("1")})
	require.NoError(t, c.process(context.Background(), msg))
	require.NoError(t, sp.Close())

	assert.Equal(t, 2, calls)
	assert.Equal(t, TopicOrderEvents, letter.Topic)
	assert.EqualValues(t, 7, letter.Offset)
	assert.Equal(t, 3, letter.Attempts)
	assert.Equal(t, "handler down", letter.Error)
}

func TestConsumer_DeadLetterSendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	c := newConsumer(nil, nil, func(context.Context, *sarama.ConsumerMessage) error {
		return errors.New("nope")
	}, WithDeadLetters(NewProducerFromSync(sp), 1))

	err := c.process(context.Background(), message(1))
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sp.Close())
}

func TestConsumer_RetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(nil, nil, func(context.Context, *sarama.ConsumerMessage) error {
		cancel()
		return errors.New("fail")
	}, WithRetryBackoff(time.Hour))

	assert.ErrorIs(t, c.process(ctx, message(1)), context.Canceled)
}

func TestRetryCount(t *testing.T) {
	tests := map[string]struct {
		value *string
		want  int
	}{
		"absent":   {nil, 0},
		"valid":    {ptr("2"), 2},
		"negative": {ptr("-1"), 0},
		"garbage":  {ptr("x"), 0},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			msg := message(0)
			if tt.value != nil {
				msg.Headers = []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte(*tt.value)}}
			}
			assert.Equal(t, tt.want, retryCount(msg))
		})
	}
}

func TestConsumerOptions(t *testing.T) {
	c := newConsumer(nil, nil, nil, WithDeadLetters(nil, 0), WithRetryBackoff(-time.Second), WithConsumerLogger(nil))
	assert.Equal(t, defaultMaxAttempts, c.maxAttempts)
	assert.Zero(t, c.backoff)
	assert.NotNil(t, c.logger)
}

func ptr(s string) *string { return &s }
