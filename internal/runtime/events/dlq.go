package events

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
)

// DrainRecorder is told about every dead-lettered message drained.
type DrainRecorder interface {
	RecordMessageDrained(topic, reason string)
}

// DLQHandler drains the dead-letter topic. It logs each message for manual
// recovery and always acknowledges; nothing is reprocessed.
type DLQHandler struct {
	log      loggingpkg.ServiceLogger
	recorder DrainRecorder
}

// NewDLQHandler returns a handler that logs and records every dead letter it drains.
func NewDLQHandler(log loggingpkg.ServiceLogger, recorder DrainRecorder) *DLQHandler {
	if log == nil {
		log = nopLogger{}
	}
	return &DLQHandler{log: log, recorder: recorder}
}

// Handle logs msg and acknowledges it.
func (h *DLQHandler) Handle(msg *message.Message) error {
	ctx := messageContext(msg)

	fields := loggingpkg.LogFields{
		"message_uuid":   msg.UUID,
		"original_topic": msg.Metadata.Get(middleware.PoisonedTopicKey),
		"reason":         msg.Metadata.Get(middleware.ReasonForPoisonedKey),
	}
	if handler := msg.Metadata.Get(middleware.PoisonedHandlerKey); handler != "" {
		fields["handler"] = handler
	}
	if source := msg.Metadata.Get(MetadataDeadLetterSource); source != "" {
		fields["source"] = source
	}

	if evt, err := Decode(msg); err == nil {
		fields["event_id"] = evt.ID
		fields["event_type"] = evt.Type
		fields["payload"] = evt.Payload
	} else {
		fields["raw_payload"] = string(msg.Payload)
	}

	loggingpkg.FromContext(ctx, h.log).Error("Dead-lettered event received", nil, fields)

	if h.recorder != nil {
		h.recorder.RecordMessageDrained(msg.Metadata.Get(middleware.PoisonedTopicKey), msg.Metadata.Get(middleware.ReasonForPoisonedKey))
	}
	return nil
}
