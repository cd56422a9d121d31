// Package binding implements BindingRegistry (spec.md §4.6): the UDP
// socket multiplexing layer that hands out shared or exclusive Bindings
// per (compartment, local-addr[, remote-addr]) and detects collisions
// from concurrent creators.
package binding

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/elkjaer/qcore/internal/datapath"
	"github.com/elkjaer/qcore/internal/qerr"
)

// Binding is a UDP socket plus its canonical local address and optional
// connected remote (spec.md §3: "the unit of datapath multiplexing").
type Binding struct {
	handle        datapath.Handle
	local         *net.UDPAddr
	remote        *net.UDPAddr // non-nil iff connected
	compartmentID uint32
	serverOwned   bool
	exclusive     bool
	refCount      atomic.Int32
}

func (b *Binding) connected() bool { return b.remote != nil }

// LocalAddr returns the canonical local address this binding is bound to.
func (b *Binding) LocalAddr() *net.UDPAddr { return b.local }

// RefCount returns the current reference count.
func (b *Binding) RefCount() int32 { return b.refCount.Load() }

// Handle exposes the underlying datapath handle for sends.
func (b *Binding) Handle() datapath.Handle { return b.handle }

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// EventSink receives binding lifecycle notifications, for callers that
// want to track churn (e.g. the root package's Metrics) without Registry
// depending on anything outside this package.
type EventSink interface {
	RecordBindingCreated()
	RecordBindingReleased()
	RecordBindingCollision()
}

// Registry is BindingRegistry: the intrusive list of live Bindings,
// guarded by a single mutex standing in for the spec's dispatch-level
// datapath_lock (spec.md §3, §5). Go has no non-suspending mutex, so this
// is a plain sync.Mutex held only for the brief list-search/splice
// sections; real teardown always happens after it is released.
type Registry struct {
	mu       sync.Mutex
	bindings []*Binding
	inUse    atomic.Bool
	sink     EventSink
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// SetEventSink installs sink for subsequent create/release/collision
// notifications. Not safe to call concurrently with GetOrCreate/Release;
// intended for one-time wiring right after New.
func (r *Registry) SetEventSink(sink EventSink) {
	r.sink = sink
}

// InUse reports whether any binding is currently registered
// (spec.md §7 invariant 2: "in_use ⇔ bindings non-empty").
func (r *Registry) InUse() bool {
	return r.inUse.Load()
}

func (r *Registry) lookup(compartmentID uint32, local, remote *net.UDPAddr) *Binding {
	for _, b := range r.bindings {
		if b.compartmentID != compartmentID || !addrEqual(b.local, local) {
			continue
		}
		if b.connected() {
			if remote == nil || !addrEqual(b.remote, remote) {
				continue
			}
		} else if remote != nil {
			continue
		}
		return b
	}
	return nil
}

func (r *Registry) lookupByLocal(compartmentID uint32, local *net.UDPAddr) *Binding {
	for _, b := range r.bindings {
		if b.compartmentID == compartmentID && addrEqual(b.local, local) {
			return b
		}
	}
	return nil
}

// GetOrCreate implements the get_or_create algorithm of spec.md §4.6.
// local == nil skips straight to creation, since no lookup is possible.
// recv, if non-nil, is wired as the new binding's datapath receive callback.
func (r *Registry) GetOrCreate(share, serverOwned bool, local, remote *net.UDPAddr, compartmentID uint32, recv datapath.Receiver) (*Binding, error) {
	if local != nil {
		r.mu.Lock()
		if existing := r.lookup(compartmentID, local, remote); existing != nil {
			defer r.mu.Unlock()
			if !share || existing.exclusive || existing.serverOwned != serverOwned {
				if r.sink != nil {
					r.sink.RecordBindingCollision()
				}
				return nil, qerr.New("binding.GetOrCreate", qerr.InvalidState, "binding exists with incompatible sharing")
			}
			existing.refCount.Add(1)
			return existing, nil
		}
		r.mu.Unlock()
	}

	handle, err := datapath.Open(local, recv)
	if err != nil {
		return nil, qerr.Wrap("binding.GetOrCreate", err)
	}
	canonical := handle.CanonicalLocalAddr()

	fresh := &Binding{
		handle:        handle,
		local:         canonical,
		remote:        remote,
		compartmentID: compartmentID,
		serverOwned:   serverOwned,
		exclusive:     !share,
	}
	fresh.refCount.Store(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.lookupByLocal(compartmentID, canonical); existing != nil {
		if existing.exclusive {
			handle.Close()
			if r.sink != nil {
				r.sink.RecordBindingCollision()
			}
			return nil, qerr.New("binding.GetOrCreate", qerr.InvalidState, "binding collision on canonical local address")
		}
		existing.refCount.Add(1)
		handle.Close()
		return existing, nil
	}

	r.bindings = append(r.bindings, fresh)
	if len(r.bindings) == 1 {
		r.inUse.Store(true)
	}
	if r.sink != nil {
		r.sink.RecordBindingCreated()
	}
	return fresh, nil
}

// TryAddRef atomically increments b's ref count iff it is currently > 0
// (spec.md §4.6: "safely obtain a reference from a raw pointer held
// across a possibly-concurrent teardown").
func (r *Registry) TryAddRef(b *Binding) bool {
	for {
		old := b.refCount.Load()
		if old <= 0 {
			return false
		}
		if b.refCount.CompareAndSwap(old, old+1) {
			return true
		}
	}
}

// Release decrements b's ref count; on reaching zero it removes b from
// the list and tears down its datapath handle at passive level, after the
// list lock has been released (spec.md §4.6).
func (r *Registry) Release(b *Binding) {
	if b.refCount.Add(-1) > 0 {
		return
	}

	r.mu.Lock()
	for i, cur := range r.bindings {
		if cur == b {
			r.bindings = append(r.bindings[:i], r.bindings[i+1:]...)
			break
		}
	}
	if len(r.bindings) == 0 {
		r.inUse.Store(false)
	}
	r.mu.Unlock()

	b.handle.Close()
	if r.sink != nil {
		r.sink.RecordBindingReleased()
	}
}
