package partition

import (
	"sync"
	"sync/atomic"

	"github.com/elkjaer/qcore/internal/qconst"
)

// ConnectionSlot, TransportParamsSlot, and PacketSpaceSlot are placeholders
// for the per-connection objects the library core pools but does not itself
// implement (spec.md §1: the per-connection state machine, transport
// parameter negotiation, and packet-number spaces are external
// collaborators). Pooling them here at the partition level is the core's
// responsibility even though their contents are not.
type ConnectionSlot struct{ _ [0]byte }
type TransportParamsSlot struct{ _ [0]byte }
type PacketSpaceSlot struct{ _ [0]byte }

// Slot is a single per-processor partition: object pools plus the
// perf-counter array that PerfCounterAggregator sums across partitions
// (spec.md §4.3).
//
// Cross-partition access is a contract violation (spec.md §5): each Slot is
// only ever touched by code running on, or affine to, its own processor.
type Slot struct {
	connections       sync.Pool
	transportParams   sync.Pool
	packetSpaces      sync.Pool
	PerfCounters      [qconst.PerfCounterMax]atomic.Int64
}

func newSlot() *Slot {
	return &Slot{
		connections:     sync.Pool{New: func() any { return new(ConnectionSlot) }},
		transportParams: sync.Pool{New: func() any { return new(TransportParamsSlot) }},
		packetSpaces:    sync.Pool{New: func() any { return new(PacketSpaceSlot) }},
	}
}

func (s *Slot) GetConnection() *ConnectionSlot             { return s.connections.Get().(*ConnectionSlot) }
func (s *Slot) PutConnection(c *ConnectionSlot)             { s.connections.Put(c) }
func (s *Slot) GetTransportParams() *TransportParamsSlot    { return s.transportParams.Get().(*TransportParamsSlot) }
func (s *Slot) PutTransportParams(t *TransportParamsSlot)   { s.transportParams.Put(t) }
func (s *Slot) GetPacketSpace() *PacketSpaceSlot            { return s.packetSpaces.Get().(*PacketSpaceSlot) }
func (s *Slot) PutPacketSpace(p *PacketSpaceSlot)           { s.packetSpaces.Put(p) }

// IncrCounter adds delta (which may be negative) to the named counter.
// Writes are local to this partition; PerfCounterAggregator performs the
// cross-partition summation and negative clamp.
func (s *Slot) IncrCounter(index int, delta int64) {
	s.PerfCounters[index].Add(delta)
}
