package app

import (
	"testing"

	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeetrade/internal/messaging/kafka"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range []string{"", " , ,"} {
		producer, err := initKafkaProducer(brokers, logger)
		assert.NoError(t, err)
		assert.Nil(t, producer)
	}
}

func TestInitKafkaProducer_InvalidBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer("invalid-broker:9999", logger)
	assert.Error(t, err)
	assert.Nil(t, producer)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker1:9092", "broker2:9092", "broker3:9092"}, splitBrokers("broker1:9092, broker2:9092,,broker3:9092 "))
	assert.Empty(t, splitBrokers(""))
}

func TestOutboxPublishers(t *testing.T) {
	publisher, dlq := outboxPublishers(nil, "")
	assert.Nil(t, publisher)
	assert.Nil(t, dlq)

	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := kafka.NewProducerFromSync(mockProducer)
	publisher, dlq = outboxPublishers(producer, "")
	require.NotNil(t, publisher)
	require.NotNil(t, dlq)
	assert.Equal(t, kafka.TopicOrderEvents, publisher.Topic())
	assert.Equal(t, kafka.TopicDeadLetterQueue, dlq.Topic())

	closeKafkaProducer(producer, log.WithField("test", "kafka-close"))
}

func TestCloseKafkaProducer_Nil(_ *testing.T) {
	closeKafkaProducer(nil, log.WithField("test", "kafka"))
}
