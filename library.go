// Package qcore is the global library core of a QUIC protocol
// implementation: the process-wide singleton that hosts all QUIC
// endpoints, owns shared datapath resources, and arbitrates cross-cutting
// concerns that no single connection can own (spec.md §1).
package qcore

import (
	"sync"

	"github.com/elkjaer/qcore/internal/dispatch"
	"github.com/elkjaer/qcore/internal/lifecycle"
	"github.com/elkjaer/qcore/internal/perfcounter"
	"github.com/elkjaer/qcore/internal/qerr"
	"github.com/elkjaer/qcore/internal/qlog"
	"github.com/elkjaer/qcore/internal/settings"
)

// Library is the public handle onto the process-global singleton
// (spec.md §3). It wraps internal/lifecycle.Library (the reference-counted
// interior) with the ApiSurface behavior of spec.md §4.9: Open performs an
// AddRef and hands back an immutable-for-its-lifetime vtable; Close frees
// the vtable and releases.
//
// loaded gates every entry point (spec.md §3: "set by process load hook,
// cleared by unload hook"); Go has no process load/unload hooks, so New
// plays that role directly, matching the design note in spec.md §9 that
// the loaded flag must be observable before any other field is touched.
type Library struct {
	mu   sync.Mutex
	core *lifecycle.Library

	globalParams *dispatch.GlobalParams

	// Metrics tracks process-wide operational counters (handshakes, retry
	// key churn, binding churn) alongside the partition-summed perf
	// counters in PerfCounters. Wired into core as a binding.EventSink so
	// binding creation/release/collision events reach it automatically, and
	// advanced by Connection for handshakes. Nothing in the library records
	// the retry-key or send-retry counters.
	Metrics *Metrics
}

// Option configures a Library at New time.
type Option func(*libraryConfig)

type libraryConfig struct {
	totalSystemMemory uint64
	configPath        string
}

// WithTotalSystemMemory overrides the total-memory figure the
// HandshakeMemoryGovernor's limit is derived from (spec.md §3). Tests use
// this to avoid depending on the host's real memory size.
func WithTotalSystemMemory(bytes uint64) Option {
	return func(c *libraryConfig) { c.totalSystemMemory = bytes }
}

// WithConfigPath points SettingsStore's external storage at a config file
// (spec.md §4.4, §6: "storage keys read at init").
func WithConfigPath(path string) Option {
	return func(c *libraryConfig) { c.configPath = path }
}

func defaultTotalSystemMemory() uint64 {
	// A conservative stand-in for a real /proc/meminfo or sysconf query;
	// only the ratio against RetryMemoryPercent matters to callers (spec.md
	// §3: handshake_memory_limit derivation).
	return 4 << 30 // 4 GiB
}

// New constructs a Library in the "loaded" state (spec.md §3, §9). The
// interior is not initialized until the first AddRef (via Open).
func New(opts ...Option) *Library {
	cfg := libraryConfig{totalSystemMemory: defaultTotalSystemMemory()}
	for _, opt := range opts {
		opt(&cfg)
	}

	core := lifecycle.New(cfg.totalSystemMemory, cfg.configPath)
	metrics := NewMetrics()
	core.BindingEventSink = metrics
	return &Library{core: core, Metrics: metrics}
}

// APITable is the immutable-for-the-caller's-lifetime function-pointer
// vtable spec.md §4.9/§6 describes. Go doesn't need raw function pointers
// to get the same contract (a value handed back once, stable for its
// holder's lifetime), so APITable is a struct of bound closures instead of
// a C-style jump table. It holds the Open* constructors and the global
// Get/SetGlobalParam entries; it has no Send entry, and per-handle
// close/GetParam/SetParam are methods on the handle types themselves.
type APITable struct {
	lib       *Library
	closeOnce sync.Once

	OpenRegistration  func(name string) (*Registration, error)
	OpenConfiguration func(r *Registration) *Configuration
	OpenListener      func(r *Registration) (*Listener, error)
	OpenConnection    func(r *Registration, cfg *Configuration) *Connection
	OpenStream        func(c *Connection) *Stream

	GetGlobalParam func(id dispatch.GlobalParamID, buf []byte) (int, error)
	SetGlobalParam func(id dispatch.GlobalParamID, buf []byte) error
}

// Open performs the ApiSurface open contract (spec.md §4.9): AddRef, then
// allocate and populate the vtable. On any failure after AddRef succeeds
// it releases before returning the error.
func Open(opts ...Option) (*APITable, error) {
	return New(opts...).Open()
}

// Open is the instance form of the package-level Open, for callers that
// already hold a Library.
func (l *Library) Open() (*APITable, error) {
	if err := l.core.AddRef(); err != nil {
		return nil, err
	}

	gp, gerr := l.ensureGlobalParams()
	if gerr != nil {
		l.core.Release()
		return nil, gerr
	}

	t := &APITable{lib: l}
	t.OpenRegistration = l.OpenRegistration
	t.OpenConfiguration = func(r *Registration) *Configuration { return r.OpenConfiguration() }
	t.OpenListener = func(r *Registration) (*Listener, error) { return r.OpenListener() }
	t.OpenConnection = func(r *Registration, cfg *Configuration) *Connection { return r.OpenConnection(cfg) }
	t.OpenStream = func(c *Connection) *Stream { return c.OpenStream() }
	t.GetGlobalParam = gp.Get
	t.SetGlobalParam = gp.Set

	qlog.Default().Debug("library opened")
	return t, nil
}

// Close frees the table and releases the matching AddRef (spec.md §4.9).
// Safe to call more than once; only the first call releases.
func (t *APITable) Close() {
	t.closeOnce.Do(func() {
		t.lib.core.Release()
		qlog.Default().Debug("library closed")
	})
}

// ensureGlobalParams lazily builds the global-parameter dispatcher on
// first Open, wiring it to the live settings store, perf-counter
// provider, and handshake-memory governor that AddRef just created.
func (l *Library) ensureGlobalParams() (*dispatch.GlobalParams, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.globalParams != nil {
		return l.globalParams, nil
	}
	if l.core.Settings == nil {
		return nil, qerr.New("Library.ensureGlobalParams", qerr.InvalidState, "library interior not initialized")
	}
	l.globalParams = dispatch.NewGlobalParams(
		l.core.Settings, l.core, l.core.Governor, l.core.InUse, l.core.TotalSystemMemory())
	return l.globalParams, nil
}

// RefCount exposes the live reference count for tests and diagnostics
// (spec.md §3).
func (l *Library) RefCount() int32 { return l.core.RefCount() }

// InUse reports whether any binding is currently registered
// (spec.md §7 invariant 2).
func (l *Library) InUse() bool { return l.core.InUse() }

// Settings returns the current settings snapshot.
func (l *Library) Settings() settings.Settings {
	if l.core.Settings == nil {
		return settings.DefaultSettings()
	}
	return l.core.Settings.Get()
}

// GetGlobalParam/SetGlobalParam expose the global-parameter dispatcher
// (spec.md §6) without requiring an APITable. The library must already be
// open (via Open, directly or through an APITable) or this returns
// InvalidState.
func (l *Library) GetGlobalParam(id dispatch.GlobalParamID, buf []byte) (int, error) {
	l.mu.Lock()
	gp := l.globalParams
	l.mu.Unlock()
	if gp == nil || l.core.RefCount() == 0 {
		return 0, qerr.New("Library.GetGlobalParam", qerr.InvalidState, "library not open")
	}
	return gp.Get(id, buf)
}

func (l *Library) SetGlobalParam(id dispatch.GlobalParamID, buf []byte) error {
	l.mu.Lock()
	gp := l.globalParams
	l.mu.Unlock()
	if gp == nil || l.core.RefCount() == 0 {
		return qerr.New("Library.SetGlobalParam", qerr.InvalidState, "library not open")
	}
	return gp.Set(id, buf)
}

// PerfCounters fills out with the aggregated perf counters (spec.md §4.3).
func (l *Library) PerfCounters(out []int64) {
	perfcounter.SumExternal(l.core, out)
}
