package qcore

import (
	"net"
	"sync"

	"github.com/elkjaer/qcore/internal/datapath"
	"github.com/elkjaer/qcore/internal/qerr"
	"github.com/elkjaer/qcore/internal/settings"
)

// MockDatapathHandle provides an in-memory implementation of
// datapath.Handle for unit testing code that takes a Handle directly. It
// records every write for later assertions, mirroring the teacher's
// MockBackend call-tracking style. BindingRegistry cannot be given one:
// GetOrCreate always opens its handle through datapath.Open, and nothing
// (including the TEST_DATAPATH_HOOKS global parameter) installs a mock in
// its place.
type MockDatapathHandle struct {
	mu     sync.Mutex
	local  *net.UDPAddr
	closed bool
	writes []MockWrite
}

// MockWrite records one WriteTo call.
type MockWrite struct {
	Data []byte
	Addr *net.UDPAddr
}

// NewMockDatapathHandle returns a MockDatapathHandle that reports local as
// its canonical local address.
func NewMockDatapathHandle(local *net.UDPAddr) *MockDatapathHandle {
	return &MockDatapathHandle{local: local}
}

func (h *MockDatapathHandle) CanonicalLocalAddr() *net.UDPAddr {
	return h.local
}

func (h *MockDatapathHandle) WriteTo(b []byte, addr *net.UDPAddr) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, qerr.New("MockDatapathHandle.WriteTo", qerr.InvalidState, "handle closed")
	}
	data := make([]byte, len(b))
	copy(data, b)
	h.writes = append(h.writes, MockWrite{Data: data, Addr: addr})
	return len(b), nil
}

func (h *MockDatapathHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (h *MockDatapathHandle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Writes returns a copy of every recorded write, in order.
func (h *MockDatapathHandle) Writes() []MockWrite {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]MockWrite, len(h.writes))
	copy(out, h.writes)
	return out
}

// Deliver simulates an inbound datagram arriving on this handle, invoking
// recv.OnReceive as the real datapath's read loop would.
func (h *MockDatapathHandle) Deliver(recv datapath.Receiver, remote *net.UDPAddr, data []byte) {
	recv.OnReceive(h.local, remote, data)
}

var _ datapath.Handle = (*MockDatapathHandle)(nil)

// MockSettingsStorage is an in-memory settings.Storage for tests that need
// to exercise SettingsStore's override path without a real config file or
// viper.Viper (spec.md §4.4, §6: "storage keys read at init").
type MockSettingsStorage struct {
	mu       sync.RWMutex
	values   map[string]uint32
	onChange func()
	closed   bool
}

// NewMockSettingsStorage returns an empty MockSettingsStorage.
func NewMockSettingsStorage() *MockSettingsStorage {
	return &MockSettingsStorage{values: make(map[string]uint32)}
}

// Set installs a value and, if a change callback was captured, invokes it -
// simulating the storage backend's change-notification path.
func (s *MockSettingsStorage) Set(key string, value uint32) {
	s.mu.Lock()
	s.values[key] = value
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// OnChange captures the change callback SettingsStore would otherwise wire
// through a real Storage implementation's watch mechanism.
func (s *MockSettingsStorage) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *MockSettingsStorage) ReadUint32(key string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MockSettingsStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (s *MockSettingsStorage) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

var _ settings.Storage = (*MockSettingsStorage)(nil)
