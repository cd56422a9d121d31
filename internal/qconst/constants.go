// Package qconst holds tunable constants for the library core.
package qconst

import "time"

// Partition fabric limits (spec.md §3, §4.2).
const (
	// MaxPartitionCount is the hard ceiling on per-processor partitions,
	// independent of how many processors the host reports.
	MaxPartitionCount = 64

	// PartitionCountSentinel is reserved and must never be a live partition count.
	PartitionCountSentinel = 0xFFFF
)

// Connection ID layout (spec.md §4.4, §6).
const (
	// PIDLength is the number of CID bytes devoted to the partition id.
	PIDLength = 1

	// PayloadLength is the number of CID bytes devoted to routing-opaque payload.
	PayloadLength = 7

	// ServerIDLengthDisabled is the server-id length when load balancing is off.
	ServerIDLengthDisabled = 0

	// ServerIDLengthServerIDIP is the server-id length for SERVER_ID_IP mode
	// (1 tag byte + 4 IPv4 bytes).
	ServerIDLengthServerIDIP = 5

	// MinInitialCIDLength and MaxCIDLength bound the derived CID total length.
	MinInitialCIDLength = 8
	MaxCIDLength         = 20
)

// PerfCounterMax is the number of slots in each partition's perf counter array.
const PerfCounterMax = 16

// Perf counter indices (spec.md §6, §4.3). A small, named subset; the rest
// of the array is reserved for counters this slice doesn't populate.
const (
	PerfCounterConnCreated = iota
	PerfCounterConnActive
	PerfCounterConnHandshakeFail
	PerfCounterConnAppHandshakeFail
	PerfCounterBindingCreated
	PerfCounterBindingActive
)

// StatelessRetryKeyLifetime is the rotation period for each retry key slot.
const StatelessRetryKeyLifetime = 5 * time.Minute

// ConnHandshakeMemoryUsage is the fixed memory charge attributed to a single
// in-progress handshake for the purposes of the backpressure governor.
const ConnHandshakeMemoryUsage = 16 * 1024

// DefaultRetryMemoryPercentUint16Max is the default fraction (scale UINT16_MAX) of
// total system memory that may be consumed by active handshakes before
// stateless retry is forced.
const DefaultRetryMemoryPercentUint16Max = 1 << 15 // ~50%

// DefaultMaxPartitionCount mirrors the original's QUIC_MAX_PARTITION_COUNT
// default read from storage at init.
const DefaultMaxPartitionCount = MaxPartitionCount
