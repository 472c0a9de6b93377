// Package nats provides the NATS Core and NATS JetStream transports.
package nats

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/resourceflow/transport"
)

// Pubsub_system values selecting the transports of this package.
const (
	TransportName          = "nats"
	JetStreamTransportName = "nats-jetstream"
)

const (
	reconnectWait = 2 * time.Second
	ackWait       = 30 * time.Second
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmnats.NewSubscriber(cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.NATSCapabilities)
	transport.Register(JetStreamTransportName, BuildJetStream, transport.NATSJetStreamCapabilities)
}

// Build creates a NATS Core transport. Each consumer group subscribes as a
// NATS queue group, so replicas in one group share the stream while other
// groups receive their own copy.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return build(cfg, logger, func(string) wmnats.JetStreamConfig {
		return wmnats.JetStreamConfig{Disabled: true}
	})
}

// BuildJetStream creates a NATS JetStream transport. Streams are provisioned
// on first use, each consumer group gets its own durable consumer and the
// message id is sent as Nats-Msg-Id so the server drops duplicate publishes.
func BuildJetStream(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return build(cfg, logger, func(consumerGroup string) wmnats.JetStreamConfig {
		return wmnats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			DurablePrefix: consumerGroup,
		}
	})
}

func build(cfg transport.Config, logger watermill.LoggerAdapter, jetStream func(consumerGroup string) wmnats.JetStreamConfig) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, errors.New("nats: URL is required")
	}
	marshaler := &wmnats.NATSMarshaler{}
	options := connectionOptions(cfg.GetServiceName())

	publisher, err := PublisherFactory(
		wmnats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   jetStream(""),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	newSubscriber := func(consumerGroup string) (message.Subscriber, error) {
		return SubscriberFactory(
			wmnats.SubscriberConfig{
				URL:              url,
				QueueGroupPrefix: consumerGroup,
				SubscribersCount: 1,
				AckWaitTimeout:   ackWait,
				NatsOptions:      options,
				Unmarshaler:      marshaler,
				JetStream:        jetStream(consumerGroup),
			},
			logger,
		)
	}

	return transport.Transport{
		Publisher:     publisher,
		NewSubscriber: newSubscriber,
	}, nil
}

func connectionOptions(name string) []natsgo.Option {
	opts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.MaxReconnects(-1),
	}
	if name != "" {
		opts = append(opts, natsgo.Name(name))
	}
	return opts
}
