// Package lifecycle implements LifecycleController (spec.md §4.1): the
// reference-counted init/uninit sequence for the process-global Library,
// and the registration bookkeeping that rides along with it.
package lifecycle

import (
	"crypto/rand"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/elkjaer/qcore/internal/binding"
	"github.com/elkjaer/qcore/internal/datapath"
	"github.com/elkjaer/qcore/internal/governor"
	"github.com/elkjaer/qcore/internal/partition"
	"github.com/elkjaer/qcore/internal/qerr"
	"github.com/elkjaer/qcore/internal/qlog"
	"github.com/elkjaer/qcore/internal/retrykey"
	"github.com/elkjaer/qcore/internal/settings"
)

// platformTimerResolutionMs is the platform timer resolution recorded at
// init time (original library.c's PlatformSetTimerResolution); nothing in
// this build depends on a non-default value.
const platformTimerResolutionMs = 1

// Registration is the minimal open-registration record the controller
// tracks for settings-change fan-out (spec.md §3: Library.registrations).
type Registration struct {
	Name string
}

// OnSettingsChanged satisfies settings.Observer.
func (r *Registration) OnSettingsChanged(s settings.Settings) {
	qlog.Default().Debug("registration observed settings change", "registration", r.Name)
}

// Library is the process-global singleton state (spec.md §3). Its
// interior only exists while refCount > 0: AddRef on a 0->1 transition
// runs the ordered init sequence, Release on a 1->0 transition reverses
// it (spec.md §4.1, §7 invariant 1).
type Library struct {
	mu       sync.Mutex // spec.md §5 passive-level `lock`
	loaded   atomic.Bool
	refCount int32

	totalSystemMemory uint64
	configPath        string

	// BindingEventSink, if set before the first AddRef, is wired into
	// Bindings at init time so callers (the root package's Metrics) learn
	// about binding creation/release/collision without this package
	// depending on anything outside itself.
	BindingEventSink binding.EventSink

	Settings *settings.Store
	Fabric   *partition.Fabric
	Toeplitz *partition.ToeplitzHash
	Retry    *retrykey.Keyring
	Bindings *binding.Registry
	Governor *governor.Governor

	storage        *settings.ViperStorage
	datapathEngine datapath.Handle

	registrations  []*Registration
	stateless      *Registration
	statelessGroup singleflight.Group

	timerResolution uint32
}

// New returns a Library in the "loaded" but uninitialized state
// (spec.md §4.1: "loaded == true on entry to add_ref"). totalSystemMemory
// feeds the handshake-memory-limit computation; configPath is passed to
// the settings storage backend (empty means environment-only overrides).
func New(totalSystemMemory uint64, configPath string) *Library {
	l := &Library{totalSystemMemory: totalSystemMemory, configPath: configPath}
	l.loaded.Store(true)
	return l
}

// TotalSystemMemory returns the figure supplied at New, used by callers
// that need to recompute a handshake-memory limit outside initializeLocked
// (spec.md §3).
func (l *Library) TotalSystemMemory() uint64 { return l.totalSystemMemory }

// TimerResolutionMs returns the platform timer resolution recorded at init.
func (l *Library) TimerResolutionMs() uint32 { return l.timerResolution }

// RefCount returns the current reference count, for tests and diagnostics.
func (l *Library) RefCount() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refCount
}

// AddRef increments ref_count; on a 0->1 transition it runs initialize
// and, on failure, unwinds back to 0 and returns the error
// (spec.md §4.1).
func (l *Library) AddRef() error {
	if !l.loaded.Load() {
		return qerr.New("lifecycle.AddRef", qerr.InvalidState, "library is not loaded")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.refCount++
	if l.refCount != 1 {
		return nil
	}

	if err := l.initializeLocked(); err != nil {
		l.refCount--
		return err
	}
	return nil
}

// Release decrements ref_count; on a 1->0 transition it runs
// uninitialize. Must be called from a context permitted to block
// (spec.md §4.1).
func (l *Library) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refCount == 0 {
		qlog.Default().Error("release called with ref_count already zero")
		return
	}

	l.refCount--
	if l.refCount == 0 {
		l.uninitializeLocked()
	}
}

// initializeLocked runs the ordered sequence of spec.md §4.1 steps 1-9.
// Caller holds l.mu. Any failure unwinds the prior steps in reverse.
func (l *Library) initializeLocked() (err error) {
	qlog.Default().Info("library initializing")

	// Steps 1-2: platform RNG/time primitives need no explicit setup in
	// Go; seed the Toeplitz key directly from crypto/rand.
	var toeplitzKey [partition.ToeplitzHashKeySize]byte
	if _, rerr := rand.Read(toeplitzKey[:]); rerr != nil {
		return qerr.Wrap("lifecycle.initialize", rerr)
	}
	l.Toeplitz = partition.NewToeplitzHash(toeplitzKey)

	// Step 3: settings, storage.
	l.Settings = settings.New()
	storage, serr := settings.OpenViperStorage(l.configPath, l.onSettingsStorageChanged)
	if serr != nil {
		qlog.Default().Warn("settings storage open failed, defaults only", "error", serr)
	}
	l.storage = storage
	l.Settings.AttachStorage(storage)
	l.Settings.Load()

	// Step 4: retry-key slots.
	l.Retry = retrykey.New()

	// Platform timer resolution, carried for completeness of the init
	// sequence (original library.c's MsQuicLibraryInitialize); nothing in
	// this slice reads it back yet.
	l.timerResolution = platformTimerResolutionMs

	// Steps 5-8: partition fabric sized from storage-overridden max and
	// the live processor count.
	maxPartitionCount := int(l.Settings.Get().MaxPartitionCount)
	procCount := partition.ActiveProcessorCount()
	l.Fabric = partition.New(procCount, maxPartitionCount)

	l.Bindings = binding.New()
	if l.BindingEventSink != nil {
		l.Bindings.SetEventSink(l.BindingEventSink)
	}
	l.Governor = governor.New(l.Settings.Get().HandshakeMemoryLimit(l.totalSystemMemory))

	// Step 9: datapath engine. Failure here is fatal for the whole init
	// sequence (spec.md §7: "Datapath init failure is fatal for the whole
	// library init; all partial state is unwound"). The io_uring backend is
	// opt-in via settings and only actually available on linux built with
	// -tags giouring; elsewhere OpenIOUring returns an error and we fall
	// back to the portable backend rather than failing init over it.
	engine, derr := l.openDatapathLocked()
	if derr != nil {
		l.unwindLocked()
		return qerr.Wrap("lifecycle.initialize", derr)
	}
	l.datapathEngine = engine

	return nil
}

// openDatapathLocked selects the io_uring or portable datapath backend
// per Settings.EnableIoUringDatapath (SPEC_FULL.md §B). Caller holds l.mu.
func (l *Library) openDatapathLocked() (datapath.Handle, error) {
	if l.Settings.Get().EnableIoUringDatapath {
		engine, err := datapath.OpenIOUring(&net.UDPAddr{}, nil)
		if err == nil {
			return engine, nil
		}
		qlog.Default().Warn("io_uring datapath unavailable, falling back to portable backend", "error", err)
	}
	return datapath.Open(&net.UDPAddr{}, nil)
}

// unwindLocked tears down whatever initializeLocked managed to set up,
// for the failure path (no datapath engine was ever created in this case).
func (l *Library) unwindLocked() {
	l.Bindings = nil
	l.Governor = nil
	l.Fabric = nil
	l.Retry = nil
	l.Settings = nil
	if l.storage != nil {
		l.storage.Close()
		l.storage = nil
	}
	l.Toeplitz = nil
}

// uninitializeLocked reverses initializeLocked in order: datapath first
// (spec.md §4.1: "it can still enqueue work"), then the lazy stateless
// registration, then storage, then the remaining owned state.
func (l *Library) uninitializeLocked() {
	qlog.Default().Info("library uninitializing")

	if l.datapathEngine != nil {
		l.datapathEngine.Close()
		l.datapathEngine = nil
	}

	if l.stateless != nil {
		l.removeRegistrationLocked(l.stateless)
		l.stateless = nil
	}

	if len(l.registrations) != 0 {
		qlog.Default().Warn("uninitializing library with open registrations", "count", len(l.registrations))
	}

	if l.storage != nil {
		l.storage.Close()
		l.storage = nil
	}

	if l.Bindings != nil && l.Bindings.InUse() {
		qlog.Default().Warn("uninitializing library with live bindings")
	}

	l.Fabric = nil
	l.Toeplitz = nil
	l.Retry = nil
	l.Settings = nil
	l.Governor = nil
	l.Bindings = nil
}

func (l *Library) onSettingsStorageChanged() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Settings == nil {
		return
	}
	l.Settings.Load()
	l.Settings.NotifyObservers()
	if l.Governor != nil {
		l.Governor.SetLimit(l.Settings.Get().HandshakeMemoryLimit(l.totalSystemMemory))
	}
}

// InUse reports whether any binding is currently registered
// (spec.md §7 invariant 2).
func (l *Library) InUse() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Bindings == nil {
		return false
	}
	return l.Bindings.InUse()
}

// LockedFabric satisfies perfcounter.Provider: it hands the current
// fabric to fn under the passive lock, or nil if ref_count == 0.
func (l *Library) LockedFabric(fn func(*partition.Fabric)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.Fabric)
}

// OpenRegistration registers a new Registration and subscribes it to
// settings-change notifications (spec.md §3: "Registrations register
// themselves into registrations on open").
func (l *Library) OpenRegistration(name string) *Registration {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := &Registration{Name: name}
	l.registrations = append(l.registrations, r)
	if l.Settings != nil {
		l.Settings.Subscribe(r)
	}
	return r
}

// CloseRegistration removes r from the open-registrations list
// (spec.md §3: "...and remove on close").
func (l *Library) CloseRegistration(r *Registration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeRegistrationLocked(r)
}

func (l *Library) removeRegistrationLocked(r *Registration) {
	for i, cur := range l.registrations {
		if cur == r {
			l.registrations = append(l.registrations[:i], l.registrations[i+1:]...)
			return
		}
	}
}

// StatelessRegistration lazily creates (on first listener) the
// Registration used to host half-open connections, coalescing concurrent
// callers onto a single creation (spec.md §3: "stateless_registration:
// Option<Registration> — lazily created on first listener").
func (l *Library) StatelessRegistration() (*Registration, error) {
	l.mu.Lock()
	if l.stateless != nil {
		defer l.mu.Unlock()
		return l.stateless, nil
	}
	l.mu.Unlock()

	v, err, _ := l.statelessGroup.Do("stateless", func() (any, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.stateless != nil {
			return l.stateless, nil
		}
		r := &Registration{Name: "stateless"}
		l.stateless = r
		l.registrations = append(l.registrations, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Registration), nil
}
