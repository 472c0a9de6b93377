// Package events publishes and consumes domain events over a watermill
// transport.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
	idspkg "github.com/drblury/resourceflow/internal/runtime/ids"
	"github.com/drblury/resourceflow/internal/runtime/jsoncodec"
)

// Metadata keys set on every event message.
const (
	MetadataEventType = "event_type"
	// MetadataDeadLetterSource marks messages the producer diverted itself,
	// as opposed to messages the consumer gave up on.
	MetadataDeadLetterSource = "dead_letter_source"
)

// MaxIDLength bounds caller-supplied event ids. Dedup tables size their key
// column to it.
const MaxIDLength = 128

// Event is a domain event. ID is assigned by the producer when blank and
// doubles as the partition key.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// withDefaults fills a blank id and a zero timestamp.
func (e Event) withDefaults(now time.Time) Event {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = idspkg.CreateULID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	return e
}

// toMessage encodes e as a message whose UUID is the event id.
func (e Event) toMessage(ctx context.Context) (*message.Message, error) {
	payload, err := jsoncodec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set(MetadataEventType, e.Type)
	if id, ok := correlation.FromContext(ctx); ok {
		msg.Metadata.Set(correlation.MetadataKey, id)
	}
	return msg, nil
}

// Decode reads an event from msg. A blank event id falls back to the message UUID.
func Decode(msg *message.Message) (Event, error) {
	var e Event
	if err := jsoncodec.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, &DeadLetterError{Reason: "undecodable payload", Cause: err}
	}
	if strings.TrimSpace(e.ID) == "" {
		e.ID = msg.UUID
	}
	if strings.TrimSpace(e.ID) == "" {
		return Event{}, &DeadLetterError{Reason: "event without id"}
	}
	return e, nil
}
