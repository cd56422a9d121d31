package binding

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func localAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestGetOrCreate_WildcardLocalSkipsLookupAndCreatesFresh(t *testing.T) {
	r := New()

	b1, err := r.GetOrCreate(true, false, nil, nil, 0, nil)
	require.NoError(t, err)
	b2, err := r.GetOrCreate(true, false, nil, nil, 0, nil)
	require.NoError(t, err)

	require.NotSame(t, b1, b2)
	require.True(t, r.InUse())
}

func TestGetOrCreate_SharedCollisionIncrementsRef(t *testing.T) {
	r := New()

	b1, err := r.GetOrCreate(true, false, localAddr(), nil, 0, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, b1.RefCount())

	b2, err := r.GetOrCreate(true, false, b1.LocalAddr(), nil, 0, nil)
	require.NoError(t, err)

	require.Same(t, b1, b2)
	require.EqualValues(t, 2, b1.RefCount())
}

func TestGetOrCreate_ExclusiveCollisionRejected(t *testing.T) {
	r := New()

	b1, err := r.GetOrCreate(false, false, localAddr(), nil, 0, nil)
	require.NoError(t, err)

	_, err = r.GetOrCreate(true, false, b1.LocalAddr(), nil, 0, nil)
	require.Error(t, err)
}

func TestGetOrCreate_ServerOwnedMismatchRejected(t *testing.T) {
	r := New()

	b1, err := r.GetOrCreate(true, false, localAddr(), nil, 0, nil)
	require.NoError(t, err)

	_, err = r.GetOrCreate(true, true, b1.LocalAddr(), nil, 0, nil)
	require.Error(t, err)
}

func TestGetOrCreate_DifferentCompartmentsDoNotCollide(t *testing.T) {
	r := New()

	b1, err := r.GetOrCreate(false, false, localAddr(), nil, 0, nil)
	require.NoError(t, err)
	b2, err := r.GetOrCreate(false, false, b1.LocalAddr(), nil, 1, nil)
	require.NoError(t, err)

	require.NotSame(t, b1, b2)
}

func TestTryAddRef_FailsOnZeroRefCount(t *testing.T) {
	r := New()
	b, err := r.GetOrCreate(true, false, localAddr(), nil, 0, nil)
	require.NoError(t, err)

	r.Release(b)
	require.False(t, r.TryAddRef(b))
}

func TestTryAddRef_SucceedsWhileReferenced(t *testing.T) {
	r := New()
	b, err := r.GetOrCreate(true, false, localAddr(), nil, 0, nil)
	require.NoError(t, err)

	require.True(t, r.TryAddRef(b))
	require.EqualValues(t, 2, b.RefCount())
}

func TestRelease_RemovesFromRegistryAndClearsInUse(t *testing.T) {
	r := New()
	b, err := r.GetOrCreate(true, false, localAddr(), nil, 0, nil)
	require.NoError(t, err)
	require.True(t, r.InUse())

	r.Release(b)
	require.False(t, r.InUse())
}

func TestRelease_SharedBindingSurvivesUntilLastRef(t *testing.T) {
	r := New()
	b1, err := r.GetOrCreate(true, false, localAddr(), nil, 0, nil)
	require.NoError(t, err)
	b2, err := r.GetOrCreate(true, false, b1.LocalAddr(), nil, 0, nil)
	require.NoError(t, err)
	require.Same(t, b1, b2)

	r.Release(b1)
	require.True(t, r.InUse())

	r.Release(b2)
	require.False(t, r.InUse())
}
