package qcore

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/elkjaer/qcore/internal/binding"
)

// HandshakeLatencyBuckets defines the handshake-duration histogram buckets
// in nanoseconds, covering 1ms to 10s with logarithmic spacing - the same
// shape as the teacher's I/O latency buckets, retargeted at handshake
// completion time instead of block I/O completion time.
var HandshakeLatencyBuckets = []uint64{
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numHandshakeLatencyBuckets = 5

// Metrics tracks process-wide operational statistics that sit above the
// per-partition perf counters of spec.md §4.3: handshake outcomes, retry
// keyring churn, and binding lifecycle events. Unlike the perf counters
// (which are partition-local and summed on read), these are single
// global atomics, mirroring the teacher's top-level Metrics struct.
type Metrics struct {
	HandshakesStarted   atomic.Uint64
	HandshakesCompleted atomic.Uint64
	HandshakesFailed    atomic.Uint64

	RetryKeysRotated      atomic.Uint64
	RetryKeyMintFailures  atomic.Uint64
	SendRetryTransitions  atomic.Uint64

	BindingsCreated  atomic.Uint64
	BindingsReleased atomic.Uint64
	BindingCollisions atomic.Uint64

	TotalHandshakeLatencyNs atomic.Uint64
	HandshakeLatencyBuckets [numHandshakeLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a new Metrics instance stamped with the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordHandshakeCompleted records a successful handshake and its latency.
func (m *Metrics) RecordHandshakeCompleted(latency time.Duration) {
	m.HandshakesCompleted.Add(1)
	m.recordHandshakeLatency(uint64(latency.Nanoseconds()))
}

// RecordHandshakeFailed records a failed handshake attempt.
func (m *Metrics) RecordHandshakeFailed() {
	m.HandshakesFailed.Add(1)
}

// RecordHandshakeStarted records the start of a new handshake attempt.
func (m *Metrics) RecordHandshakeStarted() {
	m.HandshakesStarted.Add(1)
}

// RecordRetryKeyRotation records one StatelessRetryKeyring rotation
// (spec.md §4.5).
func (m *Metrics) RecordRetryKeyRotation() {
	m.RetryKeysRotated.Add(1)
}

// RecordRetryKeyMintFailure records a retry-key generation failure
// (spec.md §7: "Retry-key creation failure is logged and returns None").
func (m *Metrics) RecordRetryKeyMintFailure() {
	m.RetryKeyMintFailures.Add(1)
}

// RecordSendRetryTransition records a flip of the governor's
// SendRetryEnabled flag (spec.md §4.7).
func (m *Metrics) RecordSendRetryTransition() {
	m.SendRetryTransitions.Add(1)
}

// RecordBindingCreated/RecordBindingReleased/RecordBindingCollision track
// BindingRegistry churn (spec.md §4.6).
func (m *Metrics) RecordBindingCreated()   { m.BindingsCreated.Add(1) }
func (m *Metrics) RecordBindingReleased()  { m.BindingsReleased.Add(1) }
func (m *Metrics) RecordBindingCollision() { m.BindingCollisions.Add(1) }

func (m *Metrics) recordHandshakeLatency(latencyNs uint64) {
	m.TotalHandshakeLatencyNs.Add(latencyNs)
	for i, bucket := range HandshakeLatencyBuckets {
		if latencyNs <= bucket {
			m.HandshakeLatencyBuckets[i].Add(1)
		}
	}
}

// Uptime returns the duration since NewMetrics was called.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(time.Unix(0, m.StartTime.Load()))
}

// metricsDescs names the Prometheus descriptors for MetricsCollector.
var metricsDescs = struct {
	handshakesStarted, handshakesCompleted, handshakesFailed *prometheus.Desc
	retryKeysRotated, retryKeyMintFailures, sendRetryFlips   *prometheus.Desc
	bindingsCreated, bindingsReleased, bindingCollisions     *prometheus.Desc
}{
	handshakesStarted:    prometheus.NewDesc("qcore_handshakes_started_total", "Handshakes started.", nil, nil),
	handshakesCompleted:  prometheus.NewDesc("qcore_handshakes_completed_total", "Handshakes completed.", nil, nil),
	handshakesFailed:     prometheus.NewDesc("qcore_handshakes_failed_total", "Handshakes failed.", nil, nil),
	retryKeysRotated:     prometheus.NewDesc("qcore_retry_keys_rotated_total", "Stateless retry key rotations.", nil, nil),
	retryKeyMintFailures: prometheus.NewDesc("qcore_retry_key_mint_failures_total", "Stateless retry key mint failures.", nil, nil),
	sendRetryFlips:       prometheus.NewDesc("qcore_send_retry_transitions_total", "SendRetryEnabled flag transitions.", nil, nil),
	bindingsCreated:      prometheus.NewDesc("qcore_bindings_created_total", "Bindings created.", nil, nil),
	bindingsReleased:     prometheus.NewDesc("qcore_bindings_released_total", "Bindings released.", nil, nil),
	bindingCollisions:    prometheus.NewDesc("qcore_binding_collisions_total", "Binding creation collisions.", nil, nil),
}

// MetricsCollector exposes Metrics as a prometheus.Collector, alongside
// perfcounter.Collector's per-partition-summed counters (spec.md §4.3).
// Kept as a distinct collector rather than folded into perfcounter.Collector
// because these counters are process-global, not partition-summed.
type MetricsCollector struct {
	m *Metrics
}

// NewMetricsCollector wraps m for Prometheus registration.
func NewMetricsCollector(m *Metrics) *MetricsCollector {
	return &MetricsCollector{m: m}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- metricsDescs.handshakesStarted
	ch <- metricsDescs.handshakesCompleted
	ch <- metricsDescs.handshakesFailed
	ch <- metricsDescs.retryKeysRotated
	ch <- metricsDescs.retryKeyMintFailures
	ch <- metricsDescs.sendRetryFlips
	ch <- metricsDescs.bindingsCreated
	ch <- metricsDescs.bindingsReleased
	ch <- metricsDescs.bindingCollisions
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(metricsDescs.handshakesStarted, prometheus.CounterValue, float64(c.m.HandshakesStarted.Load()))
	ch <- prometheus.MustNewConstMetric(metricsDescs.handshakesCompleted, prometheus.CounterValue, float64(c.m.HandshakesCompleted.Load()))
	ch <- prometheus.MustNewConstMetric(metricsDescs.handshakesFailed, prometheus.CounterValue, float64(c.m.HandshakesFailed.Load()))
	ch <- prometheus.MustNewConstMetric(metricsDescs.retryKeysRotated, prometheus.CounterValue, float64(c.m.RetryKeysRotated.Load()))
	ch <- prometheus.MustNewConstMetric(metricsDescs.retryKeyMintFailures, prometheus.CounterValue, float64(c.m.RetryKeyMintFailures.Load()))
	ch <- prometheus.MustNewConstMetric(metricsDescs.sendRetryFlips, prometheus.CounterValue, float64(c.m.SendRetryTransitions.Load()))
	ch <- prometheus.MustNewConstMetric(metricsDescs.bindingsCreated, prometheus.CounterValue, float64(c.m.BindingsCreated.Load()))
	ch <- prometheus.MustNewConstMetric(metricsDescs.bindingsReleased, prometheus.CounterValue, float64(c.m.BindingsReleased.Load()))
	ch <- prometheus.MustNewConstMetric(metricsDescs.bindingCollisions, prometheus.CounterValue, float64(c.m.BindingCollisions.Load()))
}

var _ prometheus.Collector = (*MetricsCollector)(nil)
var _ binding.EventSink = (*Metrics)(nil)
