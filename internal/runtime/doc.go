/*
Package runtime assembles the resourceflow service: the resource REST API,
the event producer, the event consumer and the dead-letter drain, all sharing
one transport and one Watermill router.

# Architecture Overview

Writes made through the REST API are persisted by the resource service and
announced as domain events. The producer publishes each event asynchronously
to the events topic keyed by its id, falling back to the dead-letter topic
with the same id when the primary publish fails. The consumer handler reads
the events topic under the configured consumer group, and the dead-letter
handler drains the dead-letter topic under its own group.

# Package Structure

## Core Service (service.go)

The Service struct wires together:
  - the resource store (memory or PostgreSQL) and its read cache
  - the transport selected by configuration
  - the Watermill router with the consumer and dead-letter handlers
  - the HTTP handler from the httpapi package

## Middleware (middleware.go, hooks.go)

Consumer deliveries pass through, outermost first:
  - CorrelationID: restores the correlation id from message metadata
  - Tracer: OpenTelemetry consumer spans
  - LogMessages: debug logging of every delivery
  - DeliveryHooks: caller supplied callbacks
  - HandlerStats: per-handler counters served at /handlers
  - DeadLetter: watermill's poison queue, diverting exhausted deliveries
  - Retry: exponential backoff retry
  - Recoverer: panic recovery

## Stats & Monitoring (handler_stats.go, dlq_metrics.go)

  - latency percentiles (p50, p95, p99) per handler
  - error categorisation
  - dead-letter counts, drains and retry averages per topic

# Sub-packages

  - cache/: LRU cache with expiry for resource reads
  - config/: service configuration with validation
  - correlation/: correlation id propagation across HTTP and messages
  - errors/: typed service errors and sentinels
  - events/: producer, consumer and dead-letter handler
  - httpapi/: REST router, error bodies and the HTTP server
  - ids/: ULID generation for event ids
  - jsoncodec/: JSON marshalling
  - logging/: logger interface and adapters
  - outbound/: HTTP client for calls to other services
  - resource/: resource entity, pagination and service
  - store/: memory and PostgreSQL stores
  - transport/: transport factory over the public transport registry

# Usage Example

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc, err := runtime.NewService(ctx, &cfg, logger, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}
	return svc.Run(ctx)
*/
package runtime
