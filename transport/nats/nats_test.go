package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
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
	assert.False(t, transport.GetCapabilities(TransportName).Durable)
}

func TestBuild(t *testing.T) {
	stubFactories(t)
	pub := &transporttest.Publisher{}

	PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Equal(t, "nats://localhost:4222", cfg.URL)
		assert.True(t, cfg.JetStream.Disabled)
		assert.Len(t, cfg.NatsOptions, 4)
		return pub, nil
	}
	SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.True(t, cfg.JetStream.Disabled)
		return &transporttest.Subscriber{Group: cfg.QueueGroupPrefix}, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{
		ServiceName: "inventory",
		NATSURL:     "nats://localhost:4222",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)

	sub, err := tr.Subscriber("workers")
	require.NoError(t, err)
	assert.Equal(t, "workers", sub.(*transporttest.Subscriber).Group)
}

func TestBuildErrors(t *testing.T) {
	stubFactories(t)

	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.EqualError(t, err, "nats: URL is required")

	PublisherFactory = func(wmnats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("publisher error")
	}
	_, err = Build(context.Background(), &transporttest.Config{NATSURL: "nats://x"}, watermill.NopLogger{})
	assert.EqualError(t, err, "publisher error")
}

func TestConnectionOptionsWithoutName(t *testing.T) {
	assert.Len(t, connectionOptions(""), 3)
}

func TestBuildJetStream(t *testing.T) {
	stubFactories(t)
	assert.True(t, transport.DefaultRegistry.Has(JetStreamTransportName))
	assert.True(t, transport.GetCapabilities(JetStreamTransportName).Durable)

	PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		assert.False(t, cfg.JetStream.Disabled)
		assert.True(t, cfg.JetStream.AutoProvision)
		assert.True(t, cfg.JetStream.TrackMsgId)
		return &transporttest.Publisher{}, nil
	}
	SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.False(t, cfg.JetStream.Disabled)
		assert.Equal(t, cfg.QueueGroupPrefix, cfg.JetStream.DurablePrefix)
		return &transporttest.Subscriber{Group: cfg.JetStream.DurablePrefix}, nil
	}

	tr, err := BuildJetStream(context.Background(), &transporttest.Config{NATSURL: "nats://localhost:4222"}, watermill.NopLogger{})
	require.NoError(t, err)

	sub, err := tr.Subscriber("resourceflow-group-dlq")
	require.NoError(t, err)
	assert.Equal(t, "resourceflow-group-dlq", sub.(*transporttest.Subscriber).Group)
}
