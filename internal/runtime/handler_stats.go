package runtime

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	"github.com/drblury/resourceflow/internal/runtime/events"
)

const latencySampleSize = 256

// HandlerInfo describes one message handler registered on the router.
type HandlerInfo struct {
	Name          string        `json:"name"`
	Topic         string        `json:"topic"`
	ConsumerGroup string        `json:"consumer_group"`
	Stats         *HandlerStats `json:"-"`
}

// HandlerSnapshot is a HandlerInfo with a copy of its stats.
type HandlerSnapshot struct {
	Name          string             `json:"name"`
	Topic         string             `json:"topic"`
	ConsumerGroup string             `json:"consumer_group"`
	Stats         HandlerStatsValues `json:"stats"`
}

// HandlersSnapshot is the document served at /handlers.
type HandlersSnapshot struct {
	Handlers    []HandlerSnapshot `json:"handlers"`
	Process     ProcessUsage      `json:"process"`
	CollectedAt time.Time         `json:"collected_at"`
}

// ProcessUsage is a coarse view of the process at snapshot time.
type ProcessUsage struct {
	MemoryBytes uint64 `json:"memory_bytes"`
	Goroutines  int    `json:"goroutines"`
}

// HandlerStatsValues are the counters of one handler. A delivery counts once
// regardless of how many retries it took.
type HandlerStatsValues struct {
	MessagesProcessed    uint64         `json:"messages_processed"`
	MessagesFailed       uint64         `json:"messages_failed"`
	MessagesDeadLettered uint64         `json:"messages_dead_lettered"`
	InFlight             int64          `json:"in_flight"`
	MaxInFlight          int64          `json:"max_in_flight"`
	LastProcessedAt      time.Time      `json:"last_processed_at,omitempty"`
	Latency              LatencyMetrics `json:"latency"`
	Errors               ErrorBreakdown `json:"errors"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ErrorBreakdown struct {
	DeadLetter uint64 `json:"dead_letter"`
	Domain     uint64 `json:"domain"`
	External   uint64 `json:"external"`
	Timeout    uint64 `json:"timeout"`
	Other      uint64 `json:"other"`
	LastError  string `json:"last_error,omitempty"`
}

// ErrorCategory buckets handler failures for the stats breakdown.
type ErrorCategory string

const (
	ErrorCategoryNone       ErrorCategory = "none"
	ErrorCategoryDeadLetter ErrorCategory = "dead_letter"
	ErrorCategoryDomain     ErrorCategory = "domain"
	ErrorCategoryExternal   ErrorCategory = "external"
	ErrorCategoryTimeout    ErrorCategory = "timeout"
	ErrorCategoryOther      ErrorCategory = "other"
)

// ClassifyError maps a handler error onto its category.
func ClassifyError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrorCategoryNone
	case events.IsDeadLetter(err):
		return ErrorCategoryDeadLetter
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	}
	var typed *errspkg.Error
	if errors.As(err, &typed) {
		if typed.Kind == errspkg.KindExternal {
			if typed.Timeout {
				return ErrorCategoryTimeout
			}
			return ErrorCategoryExternal
		}
		if typed.Kind != errspkg.KindUnexpected {
			return ErrorCategoryDomain
		}
	}
	return ErrorCategoryOther
}

// HandlerStats accumulates per-handler counters. Safe for concurrent use.
type HandlerStats struct {
	mu      sync.Mutex
	values  HandlerStatsValues
	totalNs int64
	samples []int64
	next    int
	now     func() time.Time
}

func newHandlerStats() *HandlerStats {
	return &HandlerStats{samples: make([]int64, 0, latencySampleSize), now: time.Now}
}

// Middleware records the outcome of every delivery passing through it. Place
// it outside the dead-letter middleware so diverted messages are told apart
// from successes.
func (h *HandlerStats) Middleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		h.start()
		began := h.now()
		alreadyPoisoned := msg.Metadata.Get(middleware.ReasonForPoisonedKey) != ""

		msgs, err := next(msg)

		reason := msg.Metadata.Get(middleware.ReasonForPoisonedKey)
		deadLettered := err == nil && !alreadyPoisoned && reason != ""
		h.finish(h.now().Sub(began), err, deadLettered, reason)
		return msgs, err
	}
}

func (h *HandlerStats) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values.InFlight++
	if h.values.InFlight > h.values.MaxInFlight {
		h.values.MaxInFlight = h.values.InFlight
	}
}

func (h *HandlerStats) finish(d time.Duration, err error, deadLettered bool, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.values.InFlight > 0 {
		h.values.InFlight--
	}
	h.values.LastProcessedAt = h.now().UTC()
	h.totalNs += int64(d)
	h.addSample(int64(d))

	switch {
	case err != nil:
		h.values.MessagesFailed++
		h.recordError(ClassifyError(err), err.Error())
	case deadLettered:
		h.values.MessagesDeadLettered++
		h.recordError(ErrorCategoryDeadLetter, reason)
	default:
		h.values.MessagesProcessed++
	}
}

func (h *HandlerStats) recordError(category ErrorCategory, text string) {
	e := &h.values.Errors
	switch category {
	case ErrorCategoryDeadLetter:
		e.DeadLetter++
	case ErrorCategoryDomain:
		e.Domain++
	case ErrorCategoryExternal:
		e.External++
	case ErrorCategoryTimeout:
		e.Timeout++
	default:
		e.Other++
	}
	e.LastError = text
}

func (h *HandlerStats) addSample(ns int64) {
	if len(h.samples) < latencySampleSize {
		h.samples = append(h.samples, ns)
	} else {
		h.samples[h.next] = ns
	}
	h.next = (h.next + 1) % latencySampleSize
	h.values.Latency.LastNs = ns
}

// Values returns a copy of the counters with latency percentiles computed
// over the most recent samples.
func (h *HandlerStats) Values() HandlerStatsValues {
	h.mu.Lock()
	defer h.mu.Unlock()

	v := h.values
	deliveries := v.MessagesProcessed + v.MessagesFailed + v.MessagesDeadLettered
	if deliveries > 0 {
		v.Latency.AverageNs = h.totalNs / int64(deliveries)
	}
	if len(h.samples) > 0 {
		sorted := slices.Clone(h.samples)
		slices.Sort(sorted)
		v.Latency.SampleSize = len(sorted)
		v.Latency.P50Ns = percentile(sorted, 0.50)
		v.Latency.P95Ns = percentile(sorted, 0.95)
		v.Latency.P99Ns = percentile(sorted, 0.99)
	}
	return v
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []int64, q float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func processUsage() ProcessUsage {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return ProcessUsage{MemoryBytes: mem.Alloc, Goroutines: runtime.NumGoroutine()}
}
