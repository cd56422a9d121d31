package dispatch

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elkjaer/qcore/internal/governor"
	"github.com/elkjaer/qcore/internal/partition"
	"github.com/elkjaer/qcore/internal/qconst"
	"github.com/elkjaer/qcore/internal/qerr"
	"github.com/elkjaer/qcore/internal/settings"
)

type fakeProvider struct {
	fabric *partition.Fabric
}

func (f *fakeProvider) LockedFabric(fn func(*partition.Fabric)) {
	fn(f.fabric)
}

func newTestGlobalParams() *GlobalParams {
	store := settings.New()
	store.Load()
	fabric := partition.New(2, 2)
	gov := governor.New(store.Get().HandshakeMemoryLimit(1 << 20))
	inUse := false
	return NewGlobalParams(store, &fakeProvider{fabric: fabric}, gov, func() bool { return inUse }, 1<<20)
}

func TestGet_RetryMemoryPercent_BufferTooSmall(t *testing.T) {
	g := newTestGlobalParams()
	required, err := g.Get(ParamRetryMemoryPercent, nil)
	require.Error(t, err)
	require.True(t, qerr.IsCode(err, qerr.BufferTooSmall))
	require.Equal(t, 2, required)
}

func TestGet_RetryMemoryPercent_FillsOnBigEnoughBuffer(t *testing.T) {
	g := newTestGlobalParams()
	buf := make([]byte, 2)
	n, err := g.Get(ParamRetryMemoryPercent, buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.EqualValues(t, qconst.DefaultRetryMemoryPercentUint16Max, binary.BigEndian.Uint16(buf))
}

func TestSetGet_RetryMemoryPercent_RoundTrips(t *testing.T) {
	g := newTestGlobalParams()
	in := make([]byte, 2)
	binary.BigEndian.PutUint16(in, 1234)
	require.NoError(t, g.Set(ParamRetryMemoryPercent, in))

	out := make([]byte, 2)
	_, err := g.Get(ParamRetryMemoryPercent, out)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestSet_SupportedVersions_ReadOnly(t *testing.T) {
	g := newTestGlobalParams()
	err := g.Set(ParamSupportedVersions, []byte{0, 0, 0, 1})
	require.Error(t, err)
	require.True(t, qerr.IsCode(err, qerr.InvalidParameter))
}

func TestSet_PerfCounters_ReadOnly(t *testing.T) {
	g := newTestGlobalParams()
	err := g.Set(ParamPerfCounters, make([]byte, qconst.PerfCounterMax*8))
	require.Error(t, err)
}

func TestGet_PerfCounters_SumsFabric(t *testing.T) {
	g := newTestGlobalParams()
	g.perf.(*fakeProvider).fabric.Slots[0].IncrCounter(0, 5)

	buf := make([]byte, qconst.PerfCounterMax*8)
	_, err := g.Get(ParamPerfCounters, buf)
	require.NoError(t, err)
	require.EqualValues(t, 5, binary.BigEndian.Uint64(buf[0:8]))
}

func TestSetGet_Settings_RoundTrips(t *testing.T) {
	g := newTestGlobalParams()

	next := settings.Settings{
		RetryMemoryPercent: 500,
		LoadBalancingMode:  settings.LoadBalancingServerIDIP,
		MaxPartitionCount:  4,
		SupportedVersions:  []uint32{1, 2},
	}
	encoded := encodeSettings(next)
	require.NoError(t, g.Set(ParamSettings, encoded))

	buf := make([]byte, len(encoded))
	n, err := g.Get(ParamSettings, buf)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)

	decoded, err := decodeSettings(buf)
	require.NoError(t, err)
	require.Equal(t, next, decoded)
}

func TestSet_Settings_RejectsLengthMismatch(t *testing.T) {
	g := newTestGlobalParams()
	err := g.Set(ParamSettings, []byte{1, 2, 3})
	require.Error(t, err)
	require.True(t, qerr.IsCode(err, qerr.InvalidParameter))
}

func TestSet_LoadBalancingMode_RejectedWhenInUse(t *testing.T) {
	store := settings.New()
	store.Load()
	fabric := partition.New(1, 1)
	gov := governor.New(0)
	g := NewGlobalParams(store, &fakeProvider{fabric: fabric}, gov, func() bool { return true }, 1<<20)

	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, 1)
	err := g.Set(ParamLoadBalancingMode, buf)
	require.Error(t, err)
	require.True(t, qerr.IsCode(err, qerr.InvalidState))
}

func TestGet_TestDatapathHooks_RoundTrips(t *testing.T) {
	g := newTestGlobalParams()
	in := make([]byte, 8)
	binary.BigEndian.PutUint64(in, 0xdeadbeef)
	require.NoError(t, g.Set(ParamTestDatapathHooks, in))

	out := make([]byte, 8)
	_, err := g.Get(ParamTestDatapathHooks, out)
	require.NoError(t, err)
	require.Equal(t, in, out)
}
