// Package settings implements SettingsStore (spec.md §4.4): defaults,
// external-storage overrides, and change propagation to observers.
package settings

import (
	"fmt"

	"github.com/elkjaer/qcore/internal/qconst"
)

// LoadBalancingMode selects how the server-id portion of a connection ID
// is derived (spec.md §4.4, §6). Values beyond ServerIDIP are rejected.
type LoadBalancingMode uint16

const (
	LoadBalancingDisabled   LoadBalancingMode = 0
	LoadBalancingServerIDIP LoadBalancingMode = 1
)

// Valid reports whether m is a recognized load-balancing mode.
func (m LoadBalancingMode) Valid() bool {
	return m == LoadBalancingDisabled || m == LoadBalancingServerIDIP
}

// ServerIDLength returns the CID bytes devoted to the server id for this mode.
func (m LoadBalancingMode) ServerIDLength() uint8 {
	switch m {
	case LoadBalancingServerIDIP:
		return qconst.ServerIDLengthServerIDIP
	default:
		return qconst.ServerIDLengthDisabled
	}
}

// Settings is the library-wide configuration (spec.md §3: Library.settings).
// Partial updates are not supported: SETTINGS is always get/set as a whole
// (spec.md §6).
type Settings struct {
	RetryMemoryPercent uint16
	LoadBalancingMode  LoadBalancingMode
	MaxPartitionCount  uint32
	SupportedVersions  []uint32

	// EnableIoUringDatapath selects the Linux io_uring-backed datapath
	// Handle instead of the portable net.UDPConn one (internal/datapath).
	// Has no effect on platforms/builds where that backend isn't compiled
	// in (-tags giouring on linux): LifecycleController falls back to the
	// portable backend and logs a warning.
	EnableIoUringDatapath bool
}

// DefaultSettings returns the unconditional defaults loaded at init, before
// any external storage override is applied (spec.md §4.4).
func DefaultSettings() Settings {
	return Settings{
		RetryMemoryPercent: qconst.DefaultRetryMemoryPercentUint16Max,
		LoadBalancingMode:  LoadBalancingDisabled,
		MaxPartitionCount:  qconst.DefaultMaxPartitionCount,
		SupportedVersions:  []uint32{0x00000001}, // QUIC v1
	}
}

// CIDServerIDLength and CIDTotalLength derive the connection-ID layout
// implied by the current load-balancing mode (spec.md §4.4, §6).
func (s Settings) CIDServerIDLength() uint8 {
	return s.LoadBalancingMode.ServerIDLength()
}

func (s Settings) CIDTotalLength() uint8 {
	return s.CIDServerIDLength() + qconst.PIDLength + qconst.PayloadLength
}

// ValidateCIDLength enforces the QUIC CID-length bounds (spec.md §4.4:
// "violating them is a fatal assertion"). Called from Store.SetLoadBalancingMode
// and Store.SetAll so a future load-balancing mode can't silently push the
// derived CID length out of bounds; both recognized modes today produce
// in-bounds lengths, so this never actually rejects a call yet.
func (s Settings) ValidateCIDLength() error {
	total := s.CIDTotalLength()
	if total < qconst.MinInitialCIDLength || total > qconst.MaxCIDLength {
		return fmt.Errorf("settings: derived CID length %d out of bounds [%d, %d]",
			total, qconst.MinInitialCIDLength, qconst.MaxCIDLength)
	}
	return nil
}

// HandshakeMemoryLimit computes the backpressure threshold in bytes
// (spec.md §3: "settings.retry_memory_pct / UINT16_MAX × total_system_memory").
func (s Settings) HandshakeMemoryLimit(totalSystemMemory uint64) int64 {
	return int64((uint64(s.RetryMemoryPercent) * totalSystemMemory) / 0xFFFF)
}
