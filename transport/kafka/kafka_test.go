package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/resourceflow/transport"
	"github.com/drblury/resourceflow/transport/transporttest"
)

func stubFactories(t *testing.T) {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.GetCapabilities(TransportName).SupportsPartitioning)
}

func TestBuild(t *testing.T) {
	stubFactories(t)
	pub := &transporttest.Publisher{}

	PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
		require.NotNil(t, cfg.OverwriteSaramaConfig)
		assert.Equal(t, sarama.WaitForAll, cfg.OverwriteSaramaConfig.Producer.RequiredAcks)
		assert.Equal(t, "inventory", cfg.OverwriteSaramaConfig.ClientID)
		return pub, nil
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.Equal(t, sarama.OffsetOldest, cfg.OverwriteSaramaConfig.Consumer.Offsets.Initial)
		return &transporttest.Subscriber{Group: cfg.ConsumerGroup}, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{
		ServiceName:  "inventory",
		KafkaBrokers: []string{"localhost:9092"},
	}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)

	primary, err := tr.Subscriber("workers")
	require.NoError(t, err)
	dlq, err := tr.Subscriber("workers-dlq")
	require.NoError(t, err)
	assert.Equal(t, "workers", primary.(*transporttest.Subscriber).Group)
	assert.Equal(t, "workers-dlq", dlq.(*transporttest.Subscriber).Group)
}

func TestBuildErrors(t *testing.T) {
	stubFactories(t)

	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.Error(t, err)

	PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("publisher error")
	}
	_, err = Build(context.Background(), &transporttest.Config{KafkaBrokers: []string{"k:9092"}}, watermill.NopLogger{})
	assert.EqualError(t, err, "publisher error")
}

func TestPartitionKeyUsesMessageUUID(t *testing.T) {
	msg := message.NewMessage("01HZX", nil)
	key, err := PartitionKey("resource-events", msg)
	require.NoError(t, err)
	assert.Equal(t, "01HZX", key)
}
