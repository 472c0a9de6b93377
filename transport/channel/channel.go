// Package channel provides an in-process transport backed by Go channels.
// It is the default for local runs and tests.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/resourceflow/transport"
)

// TransportName is the pubsub_system value selecting this transport.
const TransportName = "channel"

// OutputChannelBuffer is the per-subscription buffer of the shared pub/sub.
const OutputChannelBuffer = 256

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates one shared in-memory pub/sub. Every subscription receives its
// own copy of each message, so distinct consumer groups see every event.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pubSub := Factory(gochannel.Config{OutputChannelBuffer: OutputChannelBuffer}, logger)
	return transport.Transport{
		Publisher: pubSub,
		NewSubscriber: func(string) (message.Subscriber, error) {
			return pubSub, nil
		},
	}, nil
}
