package settings

import (
	"sync"

	"github.com/elkjaer/qcore/internal/qconst"
	"github.com/elkjaer/qcore/internal/qerr"
	"github.com/elkjaer/qcore/internal/qlog"
)

// Observer is notified whenever the store's settings change and a
// registration-update was requested (spec.md §4.4: "every open
// registration is notified (under the passive lock)").
type Observer interface {
	OnSettingsChanged(Settings)
}

// Store holds the current settings and the optional external storage
// handle backing overrides (spec.md §3, §4.4). Callers must hold their own
// passive lock around Store methods when registration notification must be
// linearized with other library state (spec.md §5); Store itself only
// protects its own fields.
type Store struct {
	mu        sync.RWMutex
	current   Settings
	storage   Storage
	observers []Observer
}

// New returns a Store initialized to defaults. Call Load to layer in
// storage overrides once a Storage handle is available.
func New() *Store {
	return &Store{current: DefaultSettings()}
}

// AttachStorage installs the external storage handle used by subsequent
// Load calls to supply overrides. A nil storage is valid and means
// defaults-only (spec.md §7: "storage open failure at init is downgraded
// to Success").
func (s *Store) AttachStorage(storage Storage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage = storage
}

// Subscribe registers an Observer to be notified on future changes.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Load resets to defaults, then overlays any values present in storage
// (spec.md §4.4: "Defaults are loaded unconditionally; if an external
// storage handle is open, its values override").
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = DefaultSettings()
	if s.storage == nil {
		return
	}
	if v, ok := s.storage.ReadUint32("MaxPartitionCount"); ok {
		if v > qconst.MaxPartitionCount {
			v = qconst.MaxPartitionCount
		}
		s.current.MaxPartitionCount = v
	}
	if v, ok := s.storage.ReadUint32("RetryMemoryPercent"); ok && v <= 0xFFFF {
		s.current.RetryMemoryPercent = uint16(v)
	}
	if v, ok := s.storage.ReadUint32("LoadBalancingMode"); ok {
		if mode := LoadBalancingMode(v); mode.Valid() {
			s.current.LoadBalancingMode = mode
		}
	}
	if v, ok := s.storage.ReadUint32("EnableIoUringDatapath"); ok {
		s.current.EnableIoUringDatapath = v != 0
	}
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetLoadBalancingMode changes the load-balancing mode. inUse must reflect
// Library.in_use observed under the same lock the caller holds around this
// call (spec.md §5: "linearized against in_use observation"); once
// in_use is true the change is rejected (spec.md §4.4, §7).
func (s *Store) SetLoadBalancingMode(mode LoadBalancingMode, inUse bool) error {
	if !mode.Valid() {
		return qerr.New("SetLoadBalancingMode", qerr.InvalidParameter, "unrecognized load balancing mode")
	}
	if inUse {
		return qerr.New("SetLoadBalancingMode", qerr.InvalidState, "cannot change load balancing mode once in use")
	}
	candidate := Settings{LoadBalancingMode: mode}
	if err := candidate.ValidateCIDLength(); err != nil {
		return qerr.Wrap("SetLoadBalancingMode", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.LoadBalancingMode = mode
	return nil
}

// SetRetryMemoryPercent updates the handshake-memory backpressure fraction.
func (s *Store) SetRetryMemoryPercent(pct uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.RetryMemoryPercent = pct
}

// SetAll replaces the whole settings structure (spec.md §6: "partial
// updates not currently supported"). inUse gates the load-balancing-mode
// portion exactly as SetLoadBalancingMode does.
func (s *Store) SetAll(next Settings, inUse bool) error {
	if !next.LoadBalancingMode.Valid() {
		return qerr.New("SetAll", qerr.InvalidParameter, "unrecognized load balancing mode")
	}
	if err := next.ValidateCIDLength(); err != nil {
		return qerr.Wrap("SetAll", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if inUse && next.LoadBalancingMode != s.current.LoadBalancingMode {
		return qerr.New("SetAll", qerr.InvalidState, "cannot change load balancing mode once in use")
	}
	s.current = next
	return nil
}

// NotifyObservers fans the current settings out to every subscribed
// Observer (spec.md §4.4: registration-update path). Call this with
// UpdateRegistrations semantics from the caller's side.
func (s *Store) NotifyObservers() {
	s.mu.RLock()
	current := s.current
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()

	qlog.Default().Info("settings updated", "retry_memory_pct", current.RetryMemoryPercent,
		"load_balancing_mode", current.LoadBalancingMode)
	for _, o := range observers {
		o.OnSettingsChanged(current)
	}
}
