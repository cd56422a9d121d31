// Package governor implements the HandshakeMemoryGovernor (spec.md §4.7):
// atomic backpressure accounting that decides whether new handshakes must
// be forced through a stateless-retry round trip.
package governor

import (
	"sync/atomic"

	"github.com/elkjaer/qcore/internal/qconst"
	"github.com/elkjaer/qcore/internal/qlog"
)

// Governor tracks current_handshake_memory against a limit and exposes
// send_retry_enabled lock-free for packet handlers (spec.md §3, §7
// invariant 8: "send_retry_enabled ⇔ current_handshake_memory ≥
// handshake_memory_limit, converges within one governor call").
type Governor struct {
	current atomic.Int64
	limit   atomic.Int64
	enabled atomic.Bool
}

// New returns a Governor with the given initial memory limit in bytes.
func New(limit int64) *Governor {
	g := &Governor{}
	g.limit.Store(limit)
	g.evaluate()
	return g
}

// SetLimit updates the limit (e.g. after a SettingsStore change,
// spec.md §4.4) and re-evaluates send_retry_enabled.
func (g *Governor) SetLimit(limit int64) {
	g.limit.Store(limit)
	g.evaluate()
}

// CurrentMemory returns the current handshake-memory estimate.
func (g *Governor) CurrentMemory() int64 { return g.current.Load() }

// SendRetryEnabled reports whether new handshakes should be forced
// through stateless retry. Safe to call lock-free from packet handlers.
func (g *Governor) SendRetryEnabled() bool { return g.enabled.Load() }

// OnHandshakeAdded accounts for one new in-flight handshake
// (spec.md §4.7: "add CONN_HANDSHAKE_MEMORY_USAGE, then evaluate").
func (g *Governor) OnHandshakeAdded() {
	g.current.Add(qconst.ConnHandshakeMemoryUsage)
	g.evaluate()
}

// OnHandshakeRemoved accounts for one handshake completing or aborting.
func (g *Governor) OnHandshakeRemoved() {
	g.current.Add(-qconst.ConnHandshakeMemoryUsage)
	g.evaluate()
}

func (g *Governor) evaluate() {
	next := g.current.Load() >= g.limit.Load()
	if g.enabled.Swap(next) != next {
		qlog.Default().Info("handshake memory governor state changed",
			"send_retry_enabled", next, "current", g.current.Load(), "limit", g.limit.Load())
	}
}
