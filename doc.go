// Package resourceflow is a REST resource service that announces every write
// as a domain event over a Watermill transport. It reads the transport (Kafka,
// RabbitMQ, AWS SNS/SQS, NATS or Go channels) and the resource store (memory
// or PostgreSQL) from Config, bootstraps one Watermill router with an event
// consumer and a dead-letter drain, and serves the resource API over chi.
//
// Every HTTP request carries a correlation id in the X-Correlation-Id header.
// Blank ids are replaced by a fresh UUID, the id is echoed on the response and
// travels in message metadata to the consumer.
//
// # Events
//
// Creates, updates and deletes publish resource.created, resource.updated and
// resource.deleted events. The producer publishes asynchronously, keyed by
// event id, and falls back to the dead-letter topic with the same id when the
// primary publish fails. The consumer acknowledges a message only after it was
// processed and skips event ids it has already seen. Deliveries that exhaust
// their retries, or that fail with a DeadLetterError, are diverted to the
// dead-letter topic, which a handler in its own consumer group drains.
//
// # Errors
//
// Every failure is rendered as the same JSON body carrying timestamp, status,
// error, message, correlationId, path and optional field details. Unexpected
// errors never leak their cause to the client.
//
// # Hooks
//
// ServiceDependencies.Hooks runs caller supplied callbacks around every
// delivery, after the built-in logging hooks.
package resourceflow
