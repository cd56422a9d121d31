// Package qerr defines the structured error taxonomy used across the
// library core (spec.md §7).
package qerr

import (
	"errors"
	"fmt"
	"syscall"
)

// Code is a high-level error category surfaced across the API boundary.
type Code string

const (
	Success             Code = "success"
	InvalidParameter    Code = "invalid parameter"
	InvalidState        Code = "invalid state"
	OutOfMemory         Code = "out of memory"
	NotFound            Code = "not found" // internal only, never surfaced
	BufferTooSmall      Code = "buffer too small"
	InternalError       Code = "internal error"
)

// Error is a structured qcore error with context and errno mapping.
type Error struct {
	Op    string // operation that failed, e.g. "AddRef", "GetOrCreateBinding"
	Code  Code
	Errno syscall.Errno // kernel errno, 0 if not applicable
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		if e.Errno != 0 {
			return fmt.Sprintf("qcore: %s (op=%s errno=%d)", msg, e.Op, e.Errno)
		}
		return fmt.Sprintf("qcore: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("qcore: %s", msg)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// New creates a structured error with the given op and code.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Wrap attaches qcore context to an arbitrary error, mapping syscall
// errnos to the closest Code.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if qe, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: qe.Code, Errno: qe.Errno, Msg: qe.Msg, Inner: qe.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: InternalError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) Code {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return InvalidParameter
	case syscall.EADDRINUSE, syscall.EBUSY:
		return InvalidState
	case syscall.ENOMEM, syscall.ENOSPC:
		return OutOfMemory
	default:
		return InternalError
	}
}

// IsCode reports whether err carries the given Code.
func IsCode(err error, code Code) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}
