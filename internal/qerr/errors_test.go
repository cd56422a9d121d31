package qerr

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_MessageFormatting(t *testing.T) {
	err := New("AddRef", InvalidState, "library not loaded")
	require.Contains(t, err.Error(), "library not loaded")
	require.Contains(t, err.Error(), "op=AddRef")
}

func TestError_IsByCode(t *testing.T) {
	a := New("GetOrCreateBinding", InvalidState, "exclusive collision")
	b := New("Release", InvalidState, "different message, same code")
	require.True(t, errors.Is(a, b))

	c := New("AddRef", InvalidParameter, "bad length")
	require.False(t, errors.Is(a, c))
}

func TestWrap_MapsErrno(t *testing.T) {
	err := Wrap("bindSocket", syscall.EADDRINUSE)
	require.True(t, IsCode(err, InvalidState))
	require.Equal(t, syscall.EADDRINUSE, err.Errno)
}

func TestWrap_NilIsNil(t *testing.T) {
	require.Nil(t, Wrap("noop", nil))
}

func TestWrap_PreservesExistingError(t *testing.T) {
	inner := New("Lookup", NotFound, "no such binding")
	wrapped := Wrap("GetOrCreateBinding", inner)
	require.Equal(t, NotFound, wrapped.Code)
	require.Equal(t, "GetOrCreateBinding", wrapped.Op)
}
