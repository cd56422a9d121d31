// Package perfcounter implements PerfCounterAggregator (spec.md §4.3): it
// sums the per-partition signed counters into an externally visible
// snapshot, clamping negatives to zero.
package perfcounter

import (
	"github.com/elkjaer/qcore/internal/partition"
	"github.com/elkjaer/qcore/internal/qerr"
)

// Sum copies partition 0's counters into out, then adds every other
// partition's counters element-wise as signed integers, clamping any
// element that is still negative after summation to zero (spec.md §4.3:
// "a transient artifact of concurrent increments/decrements observed on
// different cores").
//
// len(out) must be <= qconst.PerfCounterMax; it need not cover the whole
// array, mirroring the "fewer than PERF_COUNTER_MAX counters requested"
// boundary behavior in spec.md §8.
func Sum(f *partition.Fabric, out []int64) error {
	if len(out) > len(f.Slots[0].PerfCounters) {
		return qerr.New("Sum", qerr.InvalidParameter, "requested more counters than exist")
	}
	for i := range out {
		out[i] = f.Slots[0].PerfCounters[i].Load()
	}
	for p := 1; p < len(f.Slots); p++ {
		for i := range out {
			out[i] += f.Slots[p].PerfCounters[i].Load()
		}
	}
	for i := range out {
		if out[i] < 0 {
			out[i] = 0
		}
	}
	return nil
}

// Provider supplies the current partition fabric under whatever lock the
// caller (LifecycleController's passive lock, in practice) requires. fn is
// invoked with a nil fabric when the library's ref_count is zero.
type Provider interface {
	LockedFabric(fn func(*partition.Fabric))
}

// SumExternal is the externally callable variant (spec.md §4.3): it
// acquires the passive lock via Provider; if ref_count == 0, it zero-fills
// out instead of summing.
func SumExternal(p Provider, out []int64) {
	p.LockedFabric(func(f *partition.Fabric) {
		if f == nil {
			for i := range out {
				out[i] = 0
			}
			return
		}
		_ = Sum(f, out)
	})
}
