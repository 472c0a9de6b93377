package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DLQMetrics tracks dead-letter traffic: messages diverted by the consumer
// or the producer, and messages drained by the dead-letter handler.
type DLQMetrics struct {
	mu sync.RWMutex

	topics map[string]*DLQTopicMetrics
	now    func() time.Time

	messagesTotal  *prometheus.CounterVec
	drainedTotal   *prometheus.CounterVec
	pending        *prometheus.GaugeVec
	ageSecondsHist *prometheus.HistogramVec
	retryCountHist *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// DLQTopicMetrics holds the counters of one source topic.
type DLQTopicMetrics struct {
	MessagesReceived uint64    `json:"messages_received"`
	MessagesDrained  uint64    `json:"messages_drained"`
	MessagesPending  uint64    `json:"messages_pending"`
	OldestMessageAt  time.Time `json:"oldest_message_at,omitempty"`
	NewestMessageAt  time.Time `json:"newest_message_at,omitempty"`
	AvgRetryCount    float64   `json:"avg_retry_count"`
	LastReason       string    `json:"last_reason,omitempty"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// DLQMetricsSnapshot is a point-in-time copy of DLQMetrics.
type DLQMetricsSnapshot struct {
	TotalMessages uint64                      `json:"total_messages"`
	TotalDrained  uint64                      `json:"total_drained"`
	TotalPending  uint64                      `json:"total_pending"`
	TopicMetrics  map[string]*DLQTopicMetrics `json:"topic_metrics"`
	CollectedAt   time.Time                   `json:"collected_at"`
}

const (
	metricsNamespace = "resourceflow"
	dlqSubsystem     = "dlq"
)

func newDLQCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: dlqSubsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func newDLQGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: dlqSubsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func newDLQHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: dlqSubsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

// NewDLQMetrics creates the collectors. Call Register to expose them.
func NewDLQMetrics(registerer prometheus.Registerer) *DLQMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &DLQMetrics{
		topics:        make(map[string]*DLQTopicMetrics),
		now:           time.Now,
		registerer:    registerer,
		messagesTotal: newDLQCounterVec("messages_total", "Messages sent to the dead-letter topic by source topic and handler.", []string{"topic", "handler"}),
		drainedTotal:  newDLQCounterVec("drained_total", "Dead-lettered messages logged and acknowledged by the dead-letter handler.", []string{"topic"}),
		pending:       newDLQGaugeVec("messages_pending", "Messages sent to the dead-letter topic and not yet drained.", []string{"topic"}),
		ageSecondsHist: newDLQHistogramVec("message_age_seconds", "Time between the first delivery attempt and dead-lettering.",
			[]float64{0.1, 1, 5, 10, 30, 60, 300, 600, 1800, 3600}, []string{"topic"}),
		retryCountHist: newDLQHistogramVec("retry_count", "Retries spent before a message was dead-lettered.",
			[]float64{0, 1, 2, 3, 5, 10, 20}, []string{"topic"}),
	}
}

// Register registers the collectors once. Collectors registered by another
// DLQMetrics on the same registerer are tolerated.
func (m *DLQMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.messagesTotal, m.drainedTotal, m.pending, m.ageSecondsHist, m.retryCountHist} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

// RecordMessageToDLQ records a message diverted from topic.
func (m *DLQMetrics) RecordMessageToDLQ(topic, handler string, retryCount int, messageAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	t := m.topic(topic)
	t.MessagesReceived++
	t.MessagesPending++
	t.LastUpdatedAt = now
	if t.OldestMessageAt.IsZero() {
		t.OldestMessageAt = now
	}
	t.NewestMessageAt = now
	total := float64(t.MessagesReceived)
	t.AvgRetryCount = (t.AvgRetryCount*(total-1) + float64(retryCount)) / total

	m.messagesTotal.WithLabelValues(topic, handler).Inc()
	m.pending.WithLabelValues(topic).Set(float64(t.MessagesPending))
	m.ageSecondsHist.WithLabelValues(topic).Observe(messageAge.Seconds())
	m.retryCountHist.WithLabelValues(topic).Observe(float64(retryCount))
}

// RecordMessageDrained records a dead-lettered message from topic being
// acknowledged by the dead-letter handler.
func (m *DLQMetrics) RecordMessageDrained(topic, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if topic == "" {
		topic = "unknown"
	}
	t := m.topic(topic)
	t.MessagesDrained++
	if t.MessagesPending > 0 {
		t.MessagesPending--
	}
	t.LastReason = reason
	t.LastUpdatedAt = m.now()

	m.drainedTotal.WithLabelValues(topic).Inc()
	m.pending.WithLabelValues(topic).Set(float64(t.MessagesPending))
}

// GetSnapshot returns a copy of the per-topic counters.
func (m *DLQMetrics) GetSnapshot() DLQMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := DLQMetricsSnapshot{
		TopicMetrics: make(map[string]*DLQTopicMetrics, len(m.topics)),
		CollectedAt:  m.now(),
	}
	for name, t := range m.topics {
		c := *t
		snapshot.TopicMetrics[name] = &c
		snapshot.TotalMessages += t.MessagesReceived
		snapshot.TotalDrained += t.MessagesDrained
		snapshot.TotalPending += t.MessagesPending
	}
	return snapshot
}

// GetTopicMetrics returns a copy of the counters for topic, or nil.
func (m *DLQMetrics) GetTopicMetrics(topic string) *DLQTopicMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.topics[topic]
	if !ok {
		return nil
	}
	c := *t
	return &c
}

func (m *DLQMetrics) topic(name string) *DLQTopicMetrics {
	t, ok := m.topics[name]
	if !ok {
		t = &DLQTopicMetrics{}
		m.topics[name] = t
	}
	return t
}
