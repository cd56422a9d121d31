package perfcounter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elkjaer/qcore/internal/qconst"
)

// counterNames labels the subset of PERF_COUNTER_MAX slots this build
// populates; unlabeled indices are still summed but not exported.
var counterNames = map[int]string{
	qconst.PerfCounterConnCreated:          "conn_created_total",
	qconst.PerfCounterConnActive:           "conn_active",
	qconst.PerfCounterConnHandshakeFail:    "conn_handshake_fail_total",
	qconst.PerfCounterConnAppHandshakeFail: "conn_app_handshake_fail_total",
	qconst.PerfCounterBindingCreated:       "binding_created_total",
	qconst.PerfCounterBindingActive:        "binding_active",
}

// Collector exposes the aggregated perf counters as Prometheus metrics,
// polling Provider.LockedFabric on every Collect call. This mirrors the
// poll-on-Collect shape of a TCPInfoCollector: no counters are cached
// between scrapes, so Collect always reflects the library's current state.
type Collector struct {
	provider Provider
	descs    map[int]*prometheus.Desc
}

// NewCollector builds a Collector backed by the given Provider.
func NewCollector(provider Provider, namespace string) *Collector {
	descs := make(map[int]*prometheus.Desc, len(counterNames))
	for idx, name := range counterNames {
		descs[idx] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name),
			"Library-wide perf counter, summed across partitions.",
			nil, nil,
		)
	}
	return &Collector{provider: provider, descs: descs}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	out := make([]int64, qconst.PerfCounterMax)
	SumExternal(c.provider, out)

	for idx, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(out[idx]))
	}
}

var _ prometheus.Collector = (*Collector)(nil)
