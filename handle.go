package qcore

import (
	"net"
	"time"

	"github.com/rs/xid"

	"github.com/elkjaer/qcore/internal/binding"
	"github.com/elkjaer/qcore/internal/dispatch"
	"github.com/elkjaer/qcore/internal/lifecycle"
	"github.com/elkjaer/qcore/internal/qerr"
)

// Registration is a client-owned group of connections (spec.md GLOSSARY).
// It is the root of the per-handle ancestry chain that HandleDispatcher
// walks: Configuration, Listener, Connection and Stream all resolve back
// to the Registration that owns them.
type Registration struct {
	ID       xid.ID
	lib      *Library
	internal *lifecycle.Registration
	params   *paramTable
}

// OpenRegistration opens a new Registration, AddRef'ing the library for
// its lifetime (spec.md §3: "Registrations register themselves into
// registrations on open").
func (l *Library) OpenRegistration(name string) (*Registration, error) {
	if err := l.core.AddRef(); err != nil {
		return nil, err
	}
	internal := l.core.OpenRegistration(name)
	return &Registration{ID: xid.New(), lib: l, internal: internal, params: newParamTable()}, nil
}

// Close removes the Registration from the library and releases the
// matching AddRef (spec.md §3: "...and remove on close").
func (r *Registration) Close() {
	r.lib.core.CloseRegistration(r.internal)
	r.lib.core.Release()
}

func (r *Registration) handle() *dispatch.Handle {
	return &dispatch.Handle{
		Type:       dispatch.HandleRegistration,
		Subsystems: map[dispatch.Level]dispatch.Subsystem{dispatch.LevelRegistration: r.params},
	}
}

// GetParam/SetParam route through HandleDispatcher (spec.md §4.8).
func (r *Registration) GetParam(level dispatch.Level, paramID uint32, buf []byte) (int, error) {
	return dispatch.GetParam(r.handle(), level, paramID, buf)
}
func (r *Registration) SetParam(level dispatch.Level, paramID uint32, buf []byte) error {
	return dispatch.SetParam(r.handle(), level, paramID, buf)
}

// Configuration holds connection-template settings shared by every
// Connection opened from it (spec.md §4.8 table: reachable via
// Configuration -> Registration).
type Configuration struct {
	ID           xid.ID
	registration *Registration
	params       *paramTable
}

// OpenConfiguration opens a Configuration under r.
func (r *Registration) OpenConfiguration() *Configuration {
	return &Configuration{ID: xid.New(), registration: r, params: newParamTable()}
}

func (c *Configuration) handle() *dispatch.Handle {
	return &dispatch.Handle{
		Type: dispatch.HandleConfiguration,
		Subsystems: map[dispatch.Level]dispatch.Subsystem{
			dispatch.LevelConfiguration: c.params,
			dispatch.LevelRegistration:  c.registration.params,
		},
	}
}

func (c *Configuration) GetParam(level dispatch.Level, paramID uint32, buf []byte) (int, error) {
	return dispatch.GetParam(c.handle(), level, paramID, buf)
}
func (c *Configuration) SetParam(level dispatch.Level, paramID uint32, buf []byte) error {
	return dispatch.SetParam(c.handle(), level, paramID, buf)
}

// Listener owns a shared, server-owned Binding and accepts inbound
// connections on it (spec.md §4.6: get_or_create with share=true,
// server_owned=true).
type Listener struct {
	ID           xid.ID
	registration *Registration
	params       *paramTable
	binding      *binding.Binding
}

// OpenListener opens a Listener under r. The library's lazily-created
// stateless registration is primed here too (spec.md §4.1, §9: "drives
// lazy server-side init on first listener").
func (r *Registration) OpenListener() (*Listener, error) {
	if _, err := r.lib.core.StatelessRegistration(); err != nil {
		return nil, err
	}
	return &Listener{ID: xid.New(), registration: r, params: newParamTable()}, nil
}

// Start binds local on a shared, server-owned Binding (spec.md §4.6) and
// begins accepting connections. Calling Start transitions the library's
// in_use flag to true on the first such binding (spec.md §3 invariant 2).
func (ls *Listener) Start(local *net.UDPAddr) error {
	if ls.binding != nil {
		return qerr.New("Listener.Start", qerr.InvalidState, "listener already started")
	}
	b, err := ls.registration.lib.core.Bindings.GetOrCreate(true, true, local, nil, 0, nil)
	if err != nil {
		return err
	}
	ls.binding = b
	return nil
}

// Stop releases the listener's Binding. The lazily-created stateless
// registration outlives any individual listener and is only torn down at
// library uninit (spec.md §4.1).
func (ls *Listener) Stop() {
	if ls.binding == nil {
		return
	}
	ls.registration.lib.core.Bindings.Release(ls.binding)
	ls.binding = nil
}

func (ls *Listener) handle() *dispatch.Handle {
	return &dispatch.Handle{
		Type: dispatch.HandleListener,
		Subsystems: map[dispatch.Level]dispatch.Subsystem{
			dispatch.LevelListener:     ls.params,
			dispatch.LevelRegistration: ls.registration.params,
		},
	}
}

func (ls *Listener) GetParam(level dispatch.Level, paramID uint32, buf []byte) (int, error) {
	return dispatch.GetParam(ls.handle(), level, paramID, buf)
}
func (ls *Listener) SetParam(level dispatch.Level, paramID uint32, buf []byte) error {
	return dispatch.SetParam(ls.handle(), level, paramID, buf)
}

// Connection is a client- or server-side QUIC connection handle. The full
// connection state machine is out of scope for this core (spec.md §1);
// Connection here is the minimal ancestry node HandleDispatcher routes
// through, plus the hooks that drive HandshakeMemoryGovernor accounting
// (spec.md §4.7).
type Connection struct {
	ID               xid.ID
	registration     *Registration
	configuration    *Configuration
	params           *paramTable
	tlsParams        *paramTable
	tlsEngineCreated bool
	handshakeOpen    bool
	handshakeStart   time.Time
}

// OpenConnection opens a Connection under r, optionally bound to a
// Configuration (client connections supply one at creation; server
// connections inherit it from the accepting Listener's Configuration).
func (r *Registration) OpenConnection(cfg *Configuration) *Connection {
	c := &Connection{ID: xid.New(), registration: r, configuration: cfg, params: newParamTable()}
	r.lib.core.Governor.OnHandshakeAdded()
	c.handshakeOpen = true
	c.handshakeStart = time.Now()
	if r.lib.Metrics != nil {
		r.lib.Metrics.RecordHandshakeStarted()
	}
	return c
}

// CreateTLSEngine marks the connection's crypto engine as created,
// unlocking LevelTLS parameter access (spec.md §4.8: "valid only on a
// Connection whose crypto engine has been created").
func (c *Connection) CreateTLSEngine() {
	c.tlsEngineCreated = true
	c.tlsParams = newParamTable()
}

// CompleteHandshake retires the connection's handshake-memory charge
// (spec.md §4.7) and records the outcome in Metrics: success records the
// completion latency, failure just counts the attempt. Only the first call
// has an effect; later calls return without doing anything. A Close before
// CompleteHandshake treats the handshake as abandoned and records it as a
// failure.
func (c *Connection) CompleteHandshake(success bool) {
	if !c.handshakeOpen {
		return
	}
	c.registration.lib.core.Governor.OnHandshakeRemoved()
	c.handshakeOpen = false
	if c.registration.lib.Metrics == nil {
		return
	}
	if success {
		c.registration.lib.Metrics.RecordHandshakeCompleted(time.Since(c.handshakeStart))
	} else {
		c.registration.lib.Metrics.RecordHandshakeFailed()
	}
}

// Close retires the connection's handshake-memory charge, if it had not
// already completed (spec.md §4.7). A connection closed mid-handshake is
// recorded as a failed handshake.
func (c *Connection) Close() {
	c.CompleteHandshake(false)
}

func (c *Connection) handle() *dispatch.Handle {
	h := &dispatch.Handle{
		Type:             dispatch.HandleConnection,
		TLSEngineCreated: c.tlsEngineCreated,
		Subsystems: map[dispatch.Level]dispatch.Subsystem{
			dispatch.LevelConnection:  c.params,
			dispatch.LevelRegistration: c.registration.params,
		},
	}
	if c.configuration != nil {
		h.Subsystems[dispatch.LevelConfiguration] = c.configuration.params
	}
	if c.tlsEngineCreated {
		h.Subsystems[dispatch.LevelTLS] = c.tlsParams
	}
	return h
}

func (c *Connection) GetParam(level dispatch.Level, paramID uint32, buf []byte) (int, error) {
	return dispatch.GetParam(c.handle(), level, paramID, buf)
}
func (c *Connection) SetParam(level dispatch.Level, paramID uint32, buf []byte) error {
	return dispatch.SetParam(c.handle(), level, paramID, buf)
}

// Stream is a single QUIC stream within a Connection. Stream flow control
// and framing are out of scope for this core (spec.md §1); Stream exists
// here as the leaf of the handle-ancestry chain.
type Stream struct {
	ID         xid.ID
	connection *Connection
	params     *paramTable
}

// OpenStream opens a Stream under c.
func (c *Connection) OpenStream() *Stream {
	return &Stream{ID: xid.New(), connection: c, params: newParamTable()}
}

func (s *Stream) handle() *dispatch.Handle {
	h := s.connection.handle()
	h.Type = dispatch.HandleStream
	h.Subsystems[dispatch.LevelStream] = s.params
	return h
}

func (s *Stream) GetParam(level dispatch.Level, paramID uint32, buf []byte) (int, error) {
	return dispatch.GetParam(s.handle(), level, paramID, buf)
}
func (s *Stream) SetParam(level dispatch.Level, paramID uint32, buf []byte) error {
	return dispatch.SetParam(s.handle(), level, paramID, buf)
}
