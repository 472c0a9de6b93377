package runtime

import (
	"context"

	"github.com/drblury/resourceflow/internal/runtime/events"
	"github.com/drblury/resourceflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
	"github.com/drblury/resourceflow/internal/runtime/resource"
)

// eventNotifier publishes resource writes as events. Publishing is
// asynchronous; failures are handled by the producer's dead-letter fallback.
type eventNotifier struct {
	producer *events.Producer
	log      loggingpkg.ServiceLogger
}

func (n *eventNotifier) Notify(ctx context.Context, eventType string, e resource.Entity) {
	payload, err := jsoncodec.Marshal(e)
	if err != nil {
		loggingpkg.FromContext(ctx, n.log).Error("Failed to encode resource event", err, loggingpkg.LogFields{
			"event_type":  eventType,
			"resource_id": e.ID,
		})
		return
	}
	n.producer.Publish(ctx, events.Event{Type: eventType, Payload: string(payload)})
}

// logProcessor is the default consumer processor. It records each event in
// the log.
type logProcessor struct {
	log loggingpkg.ServiceLogger
}

func (p logProcessor) Process(ctx context.Context, evt events.Event) error {
	loggingpkg.FromContext(ctx, p.log).Info("Event consumed", loggingpkg.LogFields{
		"event_id":   evt.ID,
		"event_type": evt.Type,
		"timestamp":  evt.Timestamp,
	})
	return nil
}
