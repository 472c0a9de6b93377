package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
	"github.com/drblury/resourceflow/internal/runtime/events"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
)

const tracerName = "resourceflow/events"

// RetryMiddlewareConfig customises the retry middleware.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	return cfg
}

// CorrelationIDMiddleware makes the correlation id in message metadata
// available through the message context, assigning one when missing.
func CorrelationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		id := msg.Metadata.Get(correlation.MetadataKey)
		if id == "" {
			id = correlation.Assign("")
			msg.Metadata.Set(correlation.MetadataKey, id)
		}
		msg.SetContext(correlation.WithID(msg.Context(), id))
		return h(msg)
	}
}

// TracerMiddleware runs each delivery in a consumer span.
func TracerMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		topic := message.SubscribeTopicFromCtx(msg.Context())
		ctx, span := otel.Tracer(tracerName).Start(msg.Context(), "process "+topic,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.destination.name", topic),
				attribute.String("messaging.message.id", msg.UUID),
				attribute.String("messaging.consumer.handler", message.HandlerNameFromCtx(msg.Context())),
				attribute.String(events.MetadataEventType, msg.Metadata.Get(events.MetadataEventType)),
				attribute.String(correlation.MetadataKey, msg.Metadata.Get(correlation.MetadataKey)),
			),
		)
		defer span.End()
		msg.SetContext(ctx)

		msgs, err := h(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return msgs, err
	}
}

// LogMessagesMiddleware logs every delivery at debug level.
func LogMessagesMiddleware(log loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			loggingpkg.FromContext(msg.Context(), log).Debug("Processing message", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"topic":        message.SubscribeTopicFromCtx(msg.Context()),
				"handler":      message.HandlerNameFromCtx(msg.Context()),
				"metadata":     msg.Metadata,
			})
			return h(msg)
		}
	}
}

// RetryMiddleware retries failed deliveries with exponential backoff. Errors
// asking for dead-lettering or skipping are not retried.
func RetryMiddleware(cfg RetryMiddlewareConfig, logger watermill.LoggerAdapter) message.HandlerMiddleware {
	normalized := cfg.withDefaults()
	return middleware.Retry{
		MaxRetries:      normalized.MaxRetries,
		InitialInterval: normalized.InitialInterval,
		MaxInterval:     normalized.MaxInterval,
		Multiplier:      2,
		Logger:          logger,
		ShouldRetry: func(params middleware.RetryParams) bool {
			return events.ShouldRetry(params.Err)
		},
	}.Middleware
}

type attemptsKey struct{}

// countAttempts counts handler invocations for the enclosing dead-letter
// middleware. It must sit inside the retry middleware.
func countAttempts(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if n, ok := msg.Context().Value(attemptsKey{}).(*int); ok {
			*n++
		}
		return h(msg)
	}
}

// DeadLetterFilter decides which handler errors divert a message to the
// dead-letter topic. With afterRetries every error that survived the retry
// middleware does; otherwise only explicit dead-letter errors do and the rest
// are nacked for broker redelivery.
func DeadLetterFilter(afterRetries bool) func(error) bool {
	return func(err error) bool {
		if err == nil || errors.Is(err, events.ErrSkip) {
			return false
		}
		return afterRetries || events.IsDeadLetter(err)
	}
}

// DeadLetterMiddleware publishes messages whose error matches filter to
// topic through watermill's poison queue middleware, and records each
// diversion in metrics.
func DeadLetterMiddleware(pub message.Publisher, topic string, filter func(error) bool, metrics *DLQMetrics) (message.HandlerMiddleware, error) {
	poison, err := middleware.PoisonQueueWithFilter(pub, topic, filter)
	if err != nil {
		return nil, err
	}
	return func(h message.HandlerFunc) message.HandlerFunc {
		next := poison(h)
		return func(msg *message.Message) ([]*message.Message, error) {
			attempts := 0
			msg.SetContext(context.WithValue(msg.Context(), attemptsKey{}, &attempts))
			start := time.Now()
			alreadyPoisoned := msg.Metadata.Get(middleware.ReasonForPoisonedKey) != ""

			msgs, err := next(msg)

			if err == nil && metrics != nil && !alreadyPoisoned && msg.Metadata.Get(middleware.ReasonForPoisonedKey) != "" {
				metrics.RecordMessageToDLQ(
					msg.Metadata.Get(middleware.PoisonedTopicKey),
					msg.Metadata.Get(middleware.PoisonedHandlerKey),
					max(attempts-1, 0),
					time.Since(start),
				)
			}
			return msgs, err
		}
	}, nil
}
