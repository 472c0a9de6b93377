// Package transport defines how resourceflow obtains message brokers.
// Each broker lives in its own sub-package and registers itself with the
// default registry from init.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// SubscriberFactory creates a subscriber that joins the given consumer group.
// Subscribers in different groups each receive every message on a topic.
type SubscriberFactory func(consumerGroup string) (message.Subscriber, error)

// Transport is a publisher plus a way to create subscribers per consumer group.
type Transport struct {
	Publisher     message.Publisher
	NewSubscriber SubscriberFactory
	// Closer releases resources shared by the publisher and subscribers, such
	// as a broker connection. Optional.
	Closer func() error
}

// Subscriber returns a subscriber for consumerGroup.
func (t Transport) Subscriber(consumerGroup string) (message.Subscriber, error) {
	if t.NewSubscriber == nil {
		return nil, errors.New("transport has no subscriber factory")
	}
	sub, err := t.NewSubscriber(consumerGroup)
	if err != nil {
		return nil, fmt.Errorf("create subscriber for group %q: %w", consumerGroup, err)
	}
	return sub, nil
}

// Close closes the publisher and then the shared resources.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if t.Closer != nil {
		if err := t.Closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values transports read. It is satisfied by the
// runtime configuration without importing it.
type Config interface {
	GetServiceName() string
	GetPubSubSystem() string

	GetKafkaBrokers() []string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}
