package qcore

import "github.com/elkjaer/qcore/internal/qerr"

// Error is the public structured error type returned across the library
// boundary (spec.md §7). It is qerr.Error directly: internal packages
// already produce exactly this shape, so the public API re-exports it
// rather than wrapping it a second time.
type Error = qerr.Error

// Code is the error-kind enumeration from spec.md §7.
type Code = qerr.Code

// Error kinds used by the core (spec.md §7).
const (
	Success          = qerr.Success
	InvalidParameter = qerr.InvalidParameter
	InvalidState     = qerr.InvalidState
	OutOfMemory      = qerr.OutOfMemory
	BufferTooSmall   = qerr.BufferTooSmall
)

// IsCode reports whether err carries the given Code, looking through any
// wrapping via errors.As.
func IsCode(err error, code Code) bool {
	return qerr.IsCode(err, code)
}
