package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	cachepkg "github.com/drblury/resourceflow/internal/runtime/cache"
	"github.com/drblury/resourceflow/internal/runtime/correlation"
	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
)

// Processor applies one event. Returning nil acknowledges the message.
type Processor interface {
	Process(ctx context.Context, evt Event) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, evt Event) error

func (f ProcessorFunc) Process(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// ProcessedSet remembers which event ids were processed successfully.
type ProcessedSet interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// MemoryProcessedSet is a bounded ProcessedSet whose entries expire.
type MemoryProcessedSet struct {
	ids *cachepkg.LRU[string, struct{}]
}

func NewMemoryProcessedSet(size int, ttl time.Duration) *MemoryProcessedSet {
	return &MemoryProcessedSet{ids: cachepkg.New[string, struct{}](size, ttl)}
}

func (s *MemoryProcessedSet) Seen(_ context.Context, eventID string) (bool, error) {
	return s.ids.Contains(eventID), nil
}

func (s *MemoryProcessedSet) Mark(_ context.Context, eventID string) error {
	s.ids.Put(eventID, struct{}{})
	return nil
}

// Consumer processes each event at most once per processed set lifetime.
type Consumer struct {
	processor Processor
	processed ProcessedSet
	log       loggingpkg.ServiceLogger
}

// NewConsumer returns a Consumer. A nil processed set keeps 10000 ids for a day.
func NewConsumer(processor Processor, processed ProcessedSet, log loggingpkg.ServiceLogger) (*Consumer, error) {
	if processor == nil {
		return nil, errspkg.ErrProcessorRequired
	}
	if processed == nil {
		processed = NewMemoryProcessedSet(10000, 24*time.Hour)
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Consumer{processor: processor, processed: processed, log: log}, nil
}

// Handle is a watermill no-publish handler. Returning nil acks the message,
// returning an error nacks it.
func (c *Consumer) Handle(msg *message.Message) error {
	ctx := messageContext(msg)
	log := loggingpkg.FromContext(ctx, c.log).With(loggingpkg.LogFields{"message_uuid": msg.UUID})

	evt, err := Decode(msg)
	if err != nil {
		log.Error("Dropping undecodable event", err, nil)
		return err
	}
	log = log.With(loggingpkg.LogFields{"event_id": evt.ID, "event_type": evt.Type})

	seen, err := c.processed.Seen(ctx, evt.ID)
	if err != nil {
		return fmt.Errorf("check processed event %s: %w", evt.ID, err)
	}
	if seen {
		log.Debug("Skipping already processed event", nil)
		return nil
	}

	if err := c.processor.Process(ctx, evt); err != nil {
		if errors.Is(err, ErrSkip) {
			log.Debug("Processor skipped event", nil)
			return nil
		}
		log.Error("Event processing failed", err, nil)
		return err
	}

	if err := c.processed.Mark(ctx, evt.ID); err != nil {
		log.Error("Failed to record processed event", err, nil)
	}
	log.Debug("Event processed", nil)
	return nil
}

// messageContext returns the message context carrying the correlation id
// from metadata, when present.
func messageContext(msg *message.Message) context.Context {
	ctx := msg.Context()
	if _, ok := correlation.FromContext(ctx); ok {
		return ctx
	}
	if id := msg.Metadata.Get(correlation.MetadataKey); id != "" {
		return correlation.WithID(ctx, id)
	}
	return ctx
}
