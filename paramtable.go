package qcore

import (
	"sync"

	"github.com/elkjaer/qcore/internal/dispatch"
	"github.com/elkjaer/qcore/internal/qerr"
)

// paramTable is a minimal generic dispatch.Subsystem: a byte-buffer-keyed
// parameter store following the same "buffer too small" idiom as the
// global parameter dispatcher (spec.md §6). Registration, Configuration,
// Listener, Connection and Stream handles are out of scope for this core
// (spec.md §1: "per-connection state machines... are external
// collaborators") but HandleDispatcher needs a concrete Subsystem to
// route to, so each handle type below embeds one of these as a stand-in
// for its real parameter table.
type paramTable struct {
	mu   sync.RWMutex
	data map[uint32][]byte
}

func newParamTable() *paramTable {
	return &paramTable{data: make(map[uint32][]byte)}
}

// GetParam implements dispatch.Subsystem.
func (p *paramTable) GetParam(paramID uint32, buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.data[paramID]
	if !ok {
		return 0, qerr.New("paramTable.GetParam", qerr.InvalidParameter, "unknown parameter")
	}
	if len(buf) < len(v) {
		return len(v), qerr.New("paramTable.GetParam", qerr.BufferTooSmall, "buffer too small")
	}
	if buf == nil {
		return 0, qerr.New("paramTable.GetParam", qerr.InvalidParameter, "buffer is nil")
	}
	copy(buf, v)
	return len(v), nil
}

// SetParam implements dispatch.Subsystem.
func (p *paramTable) SetParam(paramID uint32, buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := make([]byte, len(buf))
	copy(stored, buf)
	p.data[paramID] = stored
	return nil
}

var _ dispatch.Subsystem = (*paramTable)(nil)
