package dispatch

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/elkjaer/qcore/internal/governor"
	"github.com/elkjaer/qcore/internal/perfcounter"
	"github.com/elkjaer/qcore/internal/qconst"
	"github.com/elkjaer/qcore/internal/qerr"
	"github.com/elkjaer/qcore/internal/settings"
)

// GlobalParamID enumerates the library-wide (non-handle) parameter IDs
// (spec.md §6).
type GlobalParamID uint32

const (
	ParamRetryMemoryPercent GlobalParamID = iota + 1
	ParamSupportedVersions
	ParamLoadBalancingMode
	ParamPerfCounters
	ParamSettings
	ParamTestDatapathHooks
)

// GlobalParams is the global-parameter dispatcher (spec.md §4.8, §6): get
// calls follow the "buffer too small -> report required length" idiom;
// set calls apply the same validation SettingsStore enforces directly
// (spec.md §4.4, §7).
type GlobalParams struct {
	settings          *settings.Store
	perf              perfcounter.Provider
	governor          *governor.Governor
	inUse             func() bool
	totalSystemMemory uint64
	testHook          atomic.Uint64
}

// NewGlobalParams wires the dispatcher to the library's live settings
// store, perf-counter provider and handshake-memory governor.
func NewGlobalParams(store *settings.Store, perf perfcounter.Provider, gov *governor.Governor, inUse func() bool, totalSystemMemory uint64) *GlobalParams {
	return &GlobalParams{
		settings:          store,
		perf:              perf,
		governor:          gov,
		inUse:             inUse,
		totalSystemMemory: totalSystemMemory,
	}
}

// getFixed implements the get-buffer-too-small idiom for a fixed-size
// parameter: if len(buf) < required it returns required and BufferTooSmall
// without touching buf; otherwise it fills buf[:required]. A nil buf has
// length zero, so for any required > 0 it gets BufferTooSmall, not
// InvalidParameter.
func getFixed(buf []byte, required int, fill func([]byte)) (int, error) {
	if len(buf) < required {
		return required, qerr.New("dispatch.Get", qerr.BufferTooSmall, "buffer too small")
	}
	if buf == nil {
		return 0, qerr.New("dispatch.Get", qerr.InvalidParameter, "buffer is nil")
	}
	fill(buf[:required])
	return required, nil
}

// Get implements the read side of every global parameter ID.
func (g *GlobalParams) Get(id GlobalParamID, buf []byte) (int, error) {
	switch id {
	case ParamRetryMemoryPercent:
		pct := g.settings.Get().RetryMemoryPercent
		return getFixed(buf, 2, func(b []byte) { binary.BigEndian.PutUint16(b, pct) })

	case ParamSupportedVersions:
		versions := g.settings.Get().SupportedVersions
		required := len(versions) * 4
		if len(buf) < required {
			return required, qerr.New("dispatch.Get", qerr.BufferTooSmall, "buffer too small")
		}
		for i, v := range versions {
			binary.BigEndian.PutUint32(buf[i*4:], v)
		}
		return required, nil

	case ParamLoadBalancingMode:
		mode := uint16(g.settings.Get().LoadBalancingMode)
		return getFixed(buf, 2, func(b []byte) { binary.BigEndian.PutUint16(b, mode) })

	case ParamPerfCounters:
		required := qconst.PerfCounterMax * 8
		if len(buf) < required {
			return required, qerr.New("dispatch.Get", qerr.BufferTooSmall, "buffer too small")
		}
		out := make([]int64, qconst.PerfCounterMax)
		perfcounter.SumExternal(g.perf, out)
		for i, v := range out {
			binary.BigEndian.PutUint64(buf[i*8:], uint64(v))
		}
		return required, nil

	case ParamSettings:
		encoded := encodeSettings(g.settings.Get())
		if len(buf) < len(encoded) {
			return len(encoded), qerr.New("dispatch.Get", qerr.BufferTooSmall, "buffer too small")
		}
		copy(buf, encoded)
		return len(encoded), nil

	case ParamTestDatapathHooks:
		hook := g.testHook.Load()
		return getFixed(buf, 8, func(b []byte) { binary.BigEndian.PutUint64(b, hook) })

	default:
		return 0, qerr.New("dispatch.Get", qerr.InvalidParameter, "unknown global parameter")
	}
}

// Set implements the write side. SupportedVersions and PerfCounters are
// read-only (spec.md §6).
func (g *GlobalParams) Set(id GlobalParamID, buf []byte) error {
	switch id {
	case ParamRetryMemoryPercent:
		if len(buf) != 2 {
			return qerr.New("dispatch.Set", qerr.InvalidParameter, "retry memory percent must be 2 bytes")
		}
		g.settings.SetRetryMemoryPercent(binary.BigEndian.Uint16(buf))
		g.recomputeGovernorLimit()
		return nil

	case ParamSupportedVersions:
		return qerr.New("dispatch.Set", qerr.InvalidParameter, "supported versions is read-only")

	case ParamLoadBalancingMode:
		if len(buf) != 2 {
			return qerr.New("dispatch.Set", qerr.InvalidParameter, "load balancing mode must be 2 bytes")
		}
		mode := settings.LoadBalancingMode(binary.BigEndian.Uint16(buf))
		return g.settings.SetLoadBalancingMode(mode, g.inUse())

	case ParamPerfCounters:
		return qerr.New("dispatch.Set", qerr.InvalidParameter, "perf counters is read-only")

	case ParamSettings:
		decoded, err := decodeSettings(buf)
		if err != nil {
			return err
		}
		if err := g.settings.SetAll(decoded, g.inUse()); err != nil {
			return err
		}
		g.recomputeGovernorLimit()
		return nil

	case ParamTestDatapathHooks:
		if len(buf) != 8 {
			return qerr.New("dispatch.Set", qerr.InvalidParameter, "test datapath hook must be 8 bytes")
		}
		g.testHook.Store(binary.BigEndian.Uint64(buf))
		return nil

	default:
		return qerr.New("dispatch.Set", qerr.InvalidParameter, "unknown global parameter")
	}
}

func (g *GlobalParams) recomputeGovernorLimit() {
	g.governor.SetLimit(g.settings.Get().HandshakeMemoryLimit(g.totalSystemMemory))
}

// encodeSettings/decodeSettings give SETTINGS a fixed wire layout: two u16
// fields, one u32, one flags byte, a u32 version count, then that many u32
// versions (spec.md §6: "reject with InvalidParameter if length mismatches").
func encodeSettings(s settings.Settings) []byte {
	buf := make([]byte, 13+len(s.SupportedVersions)*4)
	binary.BigEndian.PutUint16(buf[0:2], s.RetryMemoryPercent)
	binary.BigEndian.PutUint16(buf[2:4], uint16(s.LoadBalancingMode))
	binary.BigEndian.PutUint32(buf[4:8], s.MaxPartitionCount)
	if s.EnableIoUringDatapath {
		buf[8] = 1
	}
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(s.SupportedVersions)))
	for i, v := range s.SupportedVersions {
		binary.BigEndian.PutUint32(buf[13+i*4:], v)
	}
	return buf
}

func decodeSettings(buf []byte) (settings.Settings, error) {
	if len(buf) < 13 {
		return settings.Settings{}, qerr.New("dispatch.decodeSettings", qerr.InvalidParameter, "settings buffer too short")
	}
	var s settings.Settings
	s.RetryMemoryPercent = binary.BigEndian.Uint16(buf[0:2])
	s.LoadBalancingMode = settings.LoadBalancingMode(binary.BigEndian.Uint16(buf[2:4]))
	s.MaxPartitionCount = binary.BigEndian.Uint32(buf[4:8])
	s.EnableIoUringDatapath = buf[8] != 0
	count := binary.BigEndian.Uint32(buf[9:13])

	expected := 13 + int(count)*4
	if len(buf) != expected {
		return settings.Settings{}, qerr.New("dispatch.decodeSettings", qerr.InvalidParameter, "settings length mismatch")
	}
	versions := make([]uint32, count)
	for i := range versions {
		versions[i] = binary.BigEndian.Uint32(buf[13+i*4:])
	}
	s.SupportedVersions = versions
	return s, nil
}
