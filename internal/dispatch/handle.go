// Package dispatch implements HandleDispatcher (spec.md §4.8): the single
// entry point per-handle get/set parameter calls go through, classifying
// the handle by type and validating the requested level against that
// type's available ancestors before delegating to a subsystem.
package dispatch

import "github.com/elkjaer/qcore/internal/qerr"

// Level is a parameter scope level (spec.md §4.8 table header).
type Level int

const (
	LevelStream Level = iota
	LevelConnection
	LevelListener
	LevelConfiguration
	LevelRegistration
	LevelTLS
)

// HandleType classifies the object a get/set parameter call targets.
type HandleType int

const (
	HandleRegistration HandleType = iota
	HandleConfiguration
	HandleListener
	HandleConnection
	HandleStream
)

// availableLevels encodes the table in spec.md §4.8: which levels are
// reachable (directly or via an ancestor) from each handle type. LevelTLS
// is handled separately since it additionally requires a created crypto
// engine.
var availableLevels = map[HandleType]map[Level]bool{
	HandleRegistration:  {LevelRegistration: true},
	HandleConfiguration: {LevelConfiguration: true, LevelRegistration: true},
	HandleListener:      {LevelListener: true, LevelRegistration: true},
	HandleConnection:    {LevelConnection: true, LevelConfiguration: true, LevelRegistration: true},
	HandleStream:        {LevelStream: true, LevelConnection: true, LevelConfiguration: true, LevelRegistration: true},
}

// Subsystem is the per-level object a dispatched get/set call is forwarded
// to: a Registration, Configuration, Listener, Connection or Stream's own
// parameter table.
type Subsystem interface {
	GetParam(paramID uint32, buf []byte) (int, error)
	SetParam(paramID uint32, buf []byte) error
}

// Handle is the dispatcher's view of a per-handle object: its type tag,
// whether its Connection has a crypto engine (gates LevelTLS), and the
// ancestor subsystems it can forward to.
type Handle struct {
	Type             HandleType
	TLSEngineCreated bool
	Subsystems       map[Level]Subsystem
}

// ValidateLevel checks that level is reachable from h's handle type
// (spec.md §4.8: "validates the requested level against the available
// ancestors of that handle").
func ValidateLevel(h *Handle, level Level) error {
	if level == LevelTLS {
		if h.Type != HandleConnection {
			return qerr.New("dispatch.ValidateLevel", qerr.InvalidParameter, "TLS level is only valid on a connection handle")
		}
		if !h.TLSEngineCreated {
			return qerr.New("dispatch.ValidateLevel", qerr.InvalidParameter, "TLS level requires a created crypto engine")
		}
		return nil
	}

	levels, ok := availableLevels[h.Type]
	if !ok {
		return qerr.New("dispatch.ValidateLevel", qerr.InvalidParameter, "unknown handle type")
	}
	if !levels[level] {
		return qerr.New("dispatch.ValidateLevel", qerr.InvalidParameter, "level not reachable from this handle type")
	}
	return nil
}

// GetParam validates level against h, then delegates to the subsystem
// registered at that level. A level that is reachable in principle but
// whose ancestor object is absent on this particular handle instance
// returns InvalidParameter (spec.md §4.8: "if the requested level's
// referenced object is absent").
func GetParam(h *Handle, level Level, paramID uint32, buf []byte) (int, error) {
	if err := ValidateLevel(h, level); err != nil {
		return 0, err
	}
	sub, ok := h.Subsystems[level]
	if !ok {
		return 0, qerr.New("dispatch.GetParam", qerr.InvalidParameter, "referenced object is absent")
	}
	return sub.GetParam(paramID, buf)
}

// SetParam mirrors GetParam for the set direction.
func SetParam(h *Handle, level Level, paramID uint32, buf []byte) error {
	if err := ValidateLevel(h, level); err != nil {
		return err
	}
	sub, ok := h.Subsystems[level]
	if !ok {
		return qerr.New("dispatch.SetParam", qerr.InvalidParameter, "referenced object is absent")
	}
	return sub.SetParam(paramID, buf)
}
