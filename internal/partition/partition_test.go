package partition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMask_Table(t *testing.T) {
	tests := []struct {
		count int
		want  uint16
	}{
		{1, 1},
		{6, 7},
		{7, 7},
		{8, 15},
		{15, 15},
		{16, 31},
		{64, 127},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Mask(uint16(tt.count)), "count=%d", tt.count)
	}
}

func TestFold(t *testing.T) {
	require.EqualValues(t, 3, Fold(3, 8))
	require.EqualValues(t, 1, Fold(9, 8))
}

func TestNew_ClampsToMaxPartitionCount(t *testing.T) {
	f := New(1000, 4)
	require.Equal(t, 4, f.Count)
	require.Len(t, f.Slots, 4)
	require.Equal(t, Mask(4), f.Mask)
}

func TestNew_NeverZero(t *testing.T) {
	f := New(0, 4)
	require.GreaterOrEqual(t, f.Count, 1)
}

func TestNew_AvoidsSentinel(t *testing.T) {
	f := New(0xFFFF, 0xFFFF)
	require.NotEqual(t, 0xFFFF, f.Count)
}

func TestSlot_CounterIncrementIsPerPartition(t *testing.T) {
	f := New(4, 4)
	f.Slots[0].IncrCounter(0, 5)
	f.Slots[1].IncrCounter(0, -2)
	require.EqualValues(t, 5, f.Slots[0].PerfCounters[0].Load())
	require.EqualValues(t, -2, f.Slots[1].PerfCounters[0].Load())
}

func TestSlot_PoolRoundTrip(t *testing.T) {
	f := New(1, 1)
	conn := f.Slots[0].GetConnection()
	require.NotNil(t, conn)
	f.Slots[0].PutConnection(conn)
}

func TestFabric_Select(t *testing.T) {
	f := New(6, 64)
	idx := f.Select(0xABCD1234)
	require.GreaterOrEqual(t, idx, 0)
	require.Less(t, idx, f.Count)
}
