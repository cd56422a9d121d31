// Package partition implements the per-processor partition fabric
// (spec.md §4.2): partition count/mask computation and the per-processor
// slots that hold object pools and perf counters.
package partition

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/elkjaer/qcore/internal/qconst"
)

// Mask computes the smallest (2^n - 1) that covers count, by propagating
// the highest set bit rightward and doubling (spec.md §4.2).
func Mask(count uint16) uint16 {
	c := count
	c |= c >> 1
	c |= c >> 2
	c |= c >> 4
	c |= c >> 8
	highBit := c - (c >> 1)
	return (highBit << 1) - 1
}

// Fold reduces a masked hash value into [0, count) via modulo, used when
// the masked value exceeds the partition count (spec.md §4.2).
func Fold(masked uint16, count uint16) uint16 {
	if masked < count {
		return masked
	}
	return masked % count
}

// ActiveProcessorCount queries the number of processors available to this
// process. It consults the scheduler affinity mask through
// unix.SchedGetaffinity (mirroring the teacher's CPUAffinity handling in
// queue runner setup) and falls back to runtime.NumCPU if that query fails
// or reports no CPUs. The package imports SchedGetaffinity unconditionally,
// so it builds only on Linux.
func ActiveProcessorCount() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err == nil {
		n := set.Count()
		if n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// Fabric owns the per-processor slots for the library's lifetime. It is
// allocated once during LifecycleController's init sequence and freed on
// uninit; partition_count and partition_mask never change afterward
// (spec.md §4.2).
type Fabric struct {
	Count int
	Mask  uint16
	Slots []*Slot
}

// New allocates a Fabric for the given partition count, clamped to
// [1, MaxPartitionCount] and never equal to the reserved sentinel.
func New(processorCount, maxPartitionCount int) *Fabric {
	if maxPartitionCount <= 0 || maxPartitionCount > qconst.MaxPartitionCount {
		maxPartitionCount = qconst.MaxPartitionCount
	}
	count := processorCount
	if count > maxPartitionCount {
		count = maxPartitionCount
	}
	if count < 1 {
		count = 1
	}
	if count == qconst.PartitionCountSentinel {
		count--
	}

	f := &Fabric{
		Count: count,
		Mask:  Mask(uint16(count)),
		Slots: make([]*Slot, count),
	}
	for i := range f.Slots {
		f.Slots[i] = newSlot()
	}
	return f
}

// Select returns the partition index a caller should use for a given
// Toeplitz hash of a connection ID or 5-tuple.
func (f *Fabric) Select(hash uint32) int {
	masked := uint16(hash) & f.Mask
	return int(Fold(masked, uint16(f.Count)))
}
