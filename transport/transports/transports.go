// Package transports registers every built-in transport with the default
// registry. Import it for side effects.
package transports

import (
	_ "github.com/drblury/resourceflow/transport/aws"
	_ "github.com/drblury/resourceflow/transport/channel"
	_ "github.com/drblury/resourceflow/transport/kafka"
	_ "github.com/drblury/resourceflow/transport/nats"
	_ "github.com/drblury/resourceflow/transport/rabbitmq"
)
