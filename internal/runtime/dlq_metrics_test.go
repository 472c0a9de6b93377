package runtime

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQMetrics_RecordMessageToDLQ(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDLQMetrics(reg)
	require.NoError(t, m.Register())

	m.RecordMessageToDLQ("resource-events", "consumer", 3, 5*time.Second)
	m.RecordMessageToDLQ("resource-events", "consumer", 5, 10*time.Second)

	metrics := m.GetTopicMetrics("resource-events")
	require.NotNil(t, metrics)
	assert.Equal(t, uint64(2), metrics.MessagesReceived)
	assert.Equal(t, uint64(2), metrics.MessagesPending)
	assert.Equal(t, 4.0, metrics.AvgRetryCount)
	assert.False(t, metrics.OldestMessageAt.IsZero())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("resource-events", "consumer")))
}

func TestDLQMetrics_RecordMessageDrained(t *testing.T) {
	m := NewDLQMetrics(prometheus.NewRegistry())

	m.RecordMessageToDLQ("resource-events", "producer", 0, 0)
	m.RecordMessageDrained("resource-events", "broker unavailable")
	m.RecordMessageDrained("resource-events", "broker unavailable")

	metrics := m.GetTopicMetrics("resource-events")
	require.NotNil(t, metrics)
	assert.Equal(t, uint64(2), metrics.MessagesDrained)
	assert.Equal(t, uint64(0), metrics.MessagesPending, "pending never goes negative")
	assert.Equal(t, "broker unavailable", metrics.LastReason)

	m.RecordMessageDrained("", "no metadata")
	assert.NotNil(t, m.GetTopicMetrics("unknown"))
}

func TestDLQMetrics_Snapshot(t *testing.T) {
	m := NewDLQMetrics(prometheus.NewRegistry())
	m.RecordMessageToDLQ("a", "h", 1, time.Second)
	m.RecordMessageToDLQ("b", "h", 1, time.Second)
	m.RecordMessageDrained("b", "x")

	snapshot := m.GetSnapshot()
	assert.Equal(t, uint64(2), snapshot.TotalMessages)
	assert.Equal(t, uint64(1), snapshot.TotalDrained)
	assert.Equal(t, uint64(1), snapshot.TotalPending)
	require.Len(t, snapshot.TopicMetrics, 2)

	snapshot.TopicMetrics["a"].MessagesReceived = 99
	assert.Equal(t, uint64(1), m.GetTopicMetrics("a").MessagesReceived, "snapshot is a copy")
	assert.Nil(t, m.GetTopicMetrics("missing"))
}

func TestDLQMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, NewDLQMetrics(reg).Register())

	second := NewDLQMetrics(reg)
	require.NoError(t, second.Register())
	require.NoError(t, second.Register())
}
