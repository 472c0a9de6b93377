// Package transport selects the message broker for the runtime.
package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/resourceflow/internal/runtime/config"
	"github.com/drblury/resourceflow/transport"

	_ "github.com/drblury/resourceflow/transport/transports"
)

// Factory creates the transport the runtime publishes and consumes through.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory builds transports from the default registry, which holds
// every built-in broker.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if conf == nil {
		return transport.Transport{}, fmt.Errorf("config is required")
	}
	t, err := transport.Build(ctx, conf, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("build %s transport: %w", conf.GetPubSubSystem(), err)
	}
	return t, nil
}
