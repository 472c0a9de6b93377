package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
)

// Result is the outcome of one publish.
type Result struct {
	ID    string
	Topic string
	// DeadLettered is set when the primary publish failed and the event went
	// to the dead-letter topic instead.
	DeadLettered bool
	// Err is set when the event reached neither topic.
	Err error
}

// Pending is a publish in flight.
type Pending struct {
	id     string
	done   chan struct{}
	result Result
}

// ID returns the event id, available immediately.
func (p *Pending) ID() string { return p.id }

// Done is closed once the publish has completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the publish completes or ctx ends.
func (p *Pending) Wait(ctx context.Context) Result {
	select {
	case <-p.done:
		return p.result
	case <-ctx.Done():
		return Result{ID: p.id, Err: ctx.Err()}
	}
}

func (p *Pending) complete(r Result) {
	p.result = r
	close(p.done)
}

// DeadLetterRecorder is told about events the producer diverted.
type DeadLetterRecorder interface {
	RecordMessageToDLQ(topic, handler string, retryCount int, messageAge time.Duration)
}

// ProducerOption customises a Producer.
type ProducerOption func(*Producer)

// WithProducerLogger sets the logger.
func WithProducerLogger(l loggingpkg.ServiceLogger) ProducerOption {
	return func(p *Producer) { p.log = l }
}

// WithDeadLetterRecorder sets the collaborator told about diverted events.
func WithDeadLetterRecorder(r DeadLetterRecorder) ProducerOption {
	return func(p *Producer) { p.recorder = r }
}

// WithProducerClock overrides the time source used for event timestamps.
func WithProducerClock(now func() time.Time) ProducerOption {
	return func(p *Producer) {
		if now != nil {
			p.now = now
		}
	}
}

// Producer publishes events asynchronously and falls back to the
// dead-letter topic when the primary publish fails.
type Producer struct {
	publisher       message.Publisher
	topic           string
	deadLetterTopic string
	log             loggingpkg.ServiceLogger
	recorder        DeadLetterRecorder
	now             func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewProducer returns a Producer publishing to topic.
func NewProducer(pub message.Publisher, topic, deadLetterTopic string, opts ...ProducerOption) (*Producer, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" || deadLetterTopic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	p := &Producer{
		publisher:       pub,
		topic:           topic,
		deadLetterTopic: deadLetterTopic,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ErrProducerClosed is reported for publishes after Close.
var ErrProducerClosed = errors.New("producer closed")

// Publish assigns the event id and timestamp when missing and publishes in
// the background. The returned Pending carries the id right away.
func (p *Producer) Publish(ctx context.Context, evt Event) *Pending {
	evt = evt.withDefaults(p.now())
	pending := &Pending{id: evt.ID, done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		pending.complete(Result{ID: evt.ID, Err: ErrProducerClosed})
		return pending
	}
	p.wg.Add(1)
	p.mu.Unlock()

	// The caller's cancellation must not abort a publish already accepted.
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer p.wg.Done()
		pending.complete(p.publish(ctx, evt))
	}()
	return pending
}

func (p *Producer) publish(ctx context.Context, evt Event) Result {
	log := p.logger(ctx).With(loggingpkg.LogFields{"event_id": evt.ID, "event_type": evt.Type})

	msg, err := evt.toMessage(ctx)
	if err != nil {
		log.Error("Failed to encode event", err, nil)
		return Result{ID: evt.ID, Err: err}
	}

	err = p.publisher.Publish(p.topic, msg)
	if err == nil {
		log.Debug("Event published", loggingpkg.LogFields{"topic": p.topic})
		return Result{ID: evt.ID, Topic: p.topic}
	}

	log.Error("Failed to publish event, sending to dead-letter topic", err, loggingpkg.LogFields{"topic": p.topic})

	dlq := msg.Copy()
	dlq.Metadata.Set(middleware.ReasonForPoisonedKey, err.Error())
	dlq.Metadata.Set(middleware.PoisonedTopicKey, p.topic)
	dlq.Metadata.Set(MetadataDeadLetterSource, "producer")

	if dlqErr := p.publisher.Publish(p.deadLetterTopic, dlq); dlqErr != nil {
		log.Error("Failed to publish event to dead-letter topic", dlqErr, loggingpkg.LogFields{"topic": p.deadLetterTopic})
		return Result{ID: evt.ID, Err: errors.Join(err, dlqErr)}
	}

	if p.recorder != nil {
		p.recorder.RecordMessageToDLQ(p.topic, "producer", 0, p.now().Sub(evt.Timestamp))
	}
	log.Info("Event sent to dead-letter topic", loggingpkg.LogFields{"topic": p.deadLetterTopic})
	return Result{ID: evt.ID, Topic: p.deadLetterTopic, DeadLettered: true}
}

// Close stops accepting events and waits for in-flight publishes until ctx ends.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) logger(ctx context.Context) loggingpkg.ServiceLogger {
	if p.log == nil {
		return nopLogger{}
	}
	return loggingpkg.FromContext(ctx, p.log)
}

type nopLogger struct{}

func (n nopLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return n }
func (nopLogger) Debug(string, loggingpkg.LogFields)                   {}
func (nopLogger) Info(string, loggingpkg.LogFields)                    {}
func (nopLogger) Error(string, error, loggingpkg.LogFields)            {}
func (nopLogger) Trace(string, loggingpkg.LogFields)                   {}
