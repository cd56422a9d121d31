package perfcounter

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/elkjaer/qcore/internal/partition"
	"github.com/elkjaer/qcore/internal/qconst"
)

func TestSum_CopiesPartitionZeroThenAdds(t *testing.T) {
	f := partition.New(3, 3)
	f.Slots[0].IncrCounter(0, 10)
	f.Slots[1].IncrCounter(0, 5)
	f.Slots[2].IncrCounter(0, -3)

	out := make([]int64, 4)
	require.NoError(t, Sum(f, out))
	require.EqualValues(t, 12, out[0])
}

func TestSum_ClampsNegative(t *testing.T) {
	f := partition.New(2, 2)
	f.Slots[0].IncrCounter(1, 3)
	f.Slots[1].IncrCounter(1, -10)

	out := make([]int64, 2)
	require.NoError(t, Sum(f, out))
	require.EqualValues(t, 0, out[1])
}

func TestSum_PartialLengthOK(t *testing.T) {
	f := partition.New(2, 2)
	out := make([]int64, 2)
	require.NoError(t, Sum(f, out))
}

func TestSum_RejectsOversizedRequest(t *testing.T) {
	f := partition.New(2, 2)
	out := make([]int64, len(f.Slots[0].PerfCounters)+1)
	require.Error(t, Sum(f, out))
}

type fakeProvider struct {
	fabric *partition.Fabric
}

func (f *fakeProvider) LockedFabric(fn func(*partition.Fabric)) {
	fn(f.fabric)
}

func TestSumExternal_ZeroFillsWhenUnreferenced(t *testing.T) {
	p := &fakeProvider{fabric: nil}
	out := make([]int64, 4)
	out[0] = 99
	SumExternal(p, out)
	require.EqualValues(t, 0, out[0])
}

func TestSumExternal_SumsWhenActive(t *testing.T) {
	f := partition.New(2, 2)
	f.Slots[0].IncrCounter(0, 7)
	p := &fakeProvider{fabric: f}

	out := make([]int64, qconst.PerfCounterMax)
	SumExternal(p, out)
	require.EqualValues(t, 7, out[0])
}

func TestCollector_ExportsExpectedMetricCount(t *testing.T) {
	f := partition.New(1, 1)
	f.Slots[0].IncrCounter(1, 42)
	p := &fakeProvider{fabric: f}
	c := NewCollector(p, "qcore")

	require.Equal(t, len(counterNames), testutil.CollectAndCount(c))
}
