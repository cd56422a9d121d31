package qcore

import "github.com/elkjaer/qcore/internal/qconst"

// Re-exported tunables, for callers that want to size buffers without
// importing the internal packages directly.
const (
	MaxPartitionCount    = qconst.MaxPartitionCount
	PIDLength            = qconst.PIDLength
	PayloadLength        = qconst.PayloadLength
	MinInitialCIDLength  = qconst.MinInitialCIDLength
	MaxCIDLength         = qconst.MaxCIDLength
	PerfCounterMax       = qconst.PerfCounterMax
	StatelessRetryKeyLifetime = qconst.StatelessRetryKeyLifetime
)

// Perf counter indices (spec.md §6, §4.3).
const (
	PerfCounterConnCreated          = qconst.PerfCounterConnCreated
	PerfCounterConnActive           = qconst.PerfCounterConnActive
	PerfCounterConnHandshakeFail    = qconst.PerfCounterConnHandshakeFail
	PerfCounterConnAppHandshakeFail = qconst.PerfCounterConnAppHandshakeFail
	PerfCounterBindingCreated       = qconst.PerfCounterBindingCreated
	PerfCounterBindingActive        = qconst.PerfCounterBindingActive
)
