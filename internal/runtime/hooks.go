package runtime

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
	"github.com/drblury/resourceflow/internal/runtime/events"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
)

// Delivery describes one message delivery to a handler.
type Delivery struct {
	Handler       string
	Topic         string
	MessageID     string
	EventType     string
	CorrelationID string
	StartedAt     time.Time
	// Duration is set for OnDone and OnError.
	Duration time.Duration
}

// DeliveryHooks are optional callbacks around every delivery. A delivery
// fires OnStart once and then exactly one of OnDone or OnError, no matter how
// many retries happen underneath.
type DeliveryHooks struct {
	OnStart func(Delivery)
	OnDone  func(Delivery)
	OnError func(Delivery, error)
}

// Merge returns hooks that call h first and then other.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnStart: chain(h.OnStart, other.OnStart),
		OnDone:  chain(h.OnDone, other.OnDone),
		OnError: chain2(h.OnError, other.OnError),
	}
}

func (h DeliveryHooks) empty() bool {
	return h.OnStart == nil && h.OnDone == nil && h.OnError == nil
}

func chain[T any](a, b func(T)) func(T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(v T) {
		a(v)
		b(v)
	}
}

func chain2[T, U any](a, b func(T, U)) func(T, U) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(v T, u U) {
		a(v, u)
		b(v, u)
	}
}

// Middleware invokes the hooks around next.
func (h DeliveryHooks) Middleware(next message.HandlerFunc) message.HandlerFunc {
	if h.empty() {
		return next
	}
	return func(msg *message.Message) ([]*message.Message, error) {
		d := Delivery{
			Handler:       message.HandlerNameFromCtx(msg.Context()),
			Topic:         message.SubscribeTopicFromCtx(msg.Context()),
			MessageID:     msg.UUID,
			EventType:     msg.Metadata.Get(events.MetadataEventType),
			CorrelationID: msg.Metadata.Get(correlation.MetadataKey),
			StartedAt:     time.Now(),
		}
		if h.OnStart != nil {
			h.OnStart(d)
		}

		msgs, err := next(msg)

		d.Duration = time.Since(d.StartedAt)
		if err != nil {
			if h.OnError != nil {
				h.OnError(d, err)
			}
		} else if h.OnDone != nil {
			h.OnDone(d)
		}
		return msgs, err
	}
}

// LoggingHooks logs delivery failures at error level and completions at
// debug level.
func LoggingHooks(log loggingpkg.ServiceLogger) DeliveryHooks {
	fields := func(d Delivery) loggingpkg.LogFields {
		return loggingpkg.LogFields{
			"handler":        d.Handler,
			"topic":          d.Topic,
			"message_uuid":   d.MessageID,
			"event_type":     d.EventType,
			"correlation_id": d.CorrelationID,
			"duration_ms":    d.Duration.Milliseconds(),
		}
	}
	return DeliveryHooks{
		OnDone: func(d Delivery) {
			log.Debug("Delivery completed", fields(d))
		},
		OnError: func(d Delivery, err error) {
			log.Error("Delivery failed", err, fields(d))
		},
	}
}
