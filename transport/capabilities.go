package transport

// Capabilities describes what a broker offers the event pipeline.
type Capabilities struct {
	Name string

	// SupportsOrdering reports per-key (or per-queue) ordered delivery.
	SupportsOrdering bool
	// SupportsPartitioning reports that the message id is used as the partition key.
	SupportsPartitioning bool
	SupportsAck          bool
	// SupportsNack reports that a nacked message is redelivered.
	SupportsNack bool
	// Durable reports that messages survive a process restart.
	Durable bool

	// MaxMessageSize in bytes, 0 when unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsPartitioning: true,
		SupportsAck:          true,
		SupportsNack:         true,
		Durable:              true,
		MaxMessageSize:       1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
	}

	// NATS core has no persistence; a nack only helps while the subscriber lives.
	NATSCapabilities = Capabilities{
		Name:           "nats",
		SupportsAck:    true,
		SupportsNack:   true,
		MaxMessageSize: 1048576,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:             "nats-jetstream",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		MaxMessageSize:   1048576,
	}

	AWSCapabilities = Capabilities{
		Name:           "aws",
		SupportsAck:    true,
		SupportsNack:   true,
		Durable:        true,
		MaxMessageSize: 262144,
	}
)
