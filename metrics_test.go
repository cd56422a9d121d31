package qcore

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordHandshakeCompleted(t *testing.T) {
	m := NewMetrics()
	m.RecordHandshakeStarted()
	m.RecordHandshakeCompleted(5 * time.Millisecond)

	require.Equal(t, uint64(1), m.HandshakesStarted.Load())
	require.Equal(t, uint64(1), m.HandshakesCompleted.Load())
	require.Equal(t, uint64(5*time.Millisecond), m.TotalHandshakeLatencyNs.Load())
}

func TestMetricsHandshakeLatencyBuckets(t *testing.T) {
	m := NewMetrics()
	m.RecordHandshakeCompleted(500 * time.Microsecond)

	// 500us falls at or under every bucket boundary (smallest is 1ms).
	for i := range m.HandshakeLatencyBuckets {
		require.Equal(t, uint64(1), m.HandshakeLatencyBuckets[i].Load())
	}
}

func TestMetricsBindingChurn(t *testing.T) {
	m := NewMetrics()
	m.RecordBindingCreated()
	m.RecordBindingCreated()
	m.RecordBindingReleased()
	m.RecordBindingCollision()

	require.Equal(t, uint64(2), m.BindingsCreated.Load())
	require.Equal(t, uint64(1), m.BindingsReleased.Load())
	require.Equal(t, uint64(1), m.BindingCollisions.Load())
}

func TestMetricsCollectorDescribeAndCollect(t *testing.T) {
	m := NewMetrics()
	m.RecordHandshakeStarted()
	c := NewMetricsCollector(m)

	descCh := make(chan *prometheus.Desc, 16)
	c.Describe(descCh)
	close(descCh)
	count := 0
	for range descCh {
		count++
	}
	require.Equal(t, 9, count)

	metricCh := make(chan prometheus.Metric, 16)
	c.Collect(metricCh)
	close(metricCh)
	metricCount := 0
	for range metricCh {
		metricCount++
	}
	require.Equal(t, 9, metricCount)
}
