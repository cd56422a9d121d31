package retrykey

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elkjaer/qcore/internal/qconst"
	"github.com/elkjaer/qcore/internal/qerr"
)

func TestGetCurrent_SameEpochReturnsSameKey(t *testing.T) {
	kr := New()

	now := time.Now()
	k1, err := kr.GetCurrent(now)
	require.NoError(t, err)
	k2, err := kr.GetCurrent(now.Add(time.Second))
	require.NoError(t, err)

	require.Same(t, k1, k2)
}

func TestGetCurrent_DifferentEpochsDiffer(t *testing.T) {
	kr := New()

	t0 := time.Unix(0, 0)
	t1 := t0.Add(qconst.StatelessRetryKeyLifetime)

	k1, err := kr.GetCurrent(t0)
	require.NoError(t, err)
	k2, err := kr.GetCurrent(t1)
	require.NoError(t, err)

	require.NotSame(t, k1, k2)
	require.NotEqual(t, k1.ValidFrom, k2.ValidFrom)
}

func TestGetForTimestamp_FindsRecentlyIssuedKey(t *testing.T) {
	kr := New()

	now := time.Now()
	issued, err := kr.GetCurrent(now)
	require.NoError(t, err)

	found, err := kr.GetForTimestamp(now)
	require.NoError(t, err)
	require.Same(t, issued, found)
}

func TestGetForTimestamp_FindsPreviousEpochAfterRotation(t *testing.T) {
	kr := New()

	t0 := time.Unix(0, 0)
	first, err := kr.GetCurrent(t0)
	require.NoError(t, err)

	t1 := t0.Add(qconst.StatelessRetryKeyLifetime)
	_, err = kr.GetCurrent(t1)
	require.NoError(t, err)

	found, err := kr.GetForTimestamp(t0)
	require.NoError(t, err)
	require.Same(t, first, found)
}

func TestGetForTimestamp_RejectsNeverIssuedEpoch(t *testing.T) {
	kr := New()

	_, err := kr.GetForTimestamp(time.Now())
	require.Error(t, err)
	require.True(t, qerr.IsCode(err, qerr.NotFound))
}

func TestGetForTimestamp_RejectsRotatedOutEpoch(t *testing.T) {
	kr := New()

	t0 := time.Unix(0, 0)
	_, err := kr.GetCurrent(t0)
	require.NoError(t, err)

	t1 := t0.Add(qconst.StatelessRetryKeyLifetime)
	_, err = kr.GetCurrent(t1)
	require.NoError(t, err)

	t2 := t1.Add(qconst.StatelessRetryKeyLifetime)
	_, err = kr.GetCurrent(t2)
	require.NoError(t, err)

	_, err = kr.GetForTimestamp(t0)
	require.Error(t, err)
	require.True(t, qerr.IsCode(err, qerr.NotFound))
}

func TestWindows_NeverOverlapAndHaveFixedLength(t *testing.T) {
	kr := New()

	t0 := time.Unix(0, 0)
	t1 := t0.Add(qconst.StatelessRetryKeyLifetime)

	k0, err := kr.GetCurrent(t0)
	require.NoError(t, err)
	k1, err := kr.GetCurrent(t1)
	require.NoError(t, err)

	require.Equal(t, qconst.StatelessRetryKeyLifetime, k0.ValidUntil.Sub(k0.ValidFrom))
	require.Equal(t, qconst.StatelessRetryKeyLifetime, k1.ValidUntil.Sub(k1.ValidFrom))
	require.True(t, k0.ValidUntil.Equal(k1.ValidFrom))
}

func TestGetCurrent_ConcurrentSameEpochCoalesces(t *testing.T) {
	kr := New()

	now := time.Now()
	var wg sync.WaitGroup
	keys := make([]*Key, 32)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := kr.GetCurrent(now)
			require.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		require.Same(t, keys[0], k)
	}
}

func TestKey_SealOpenRoundTrip(t *testing.T) {
	kr := New()

	k, err := kr.GetCurrent(time.Now())
	require.NoError(t, err)

	nonce := make([]byte, k.AEAD.NonceSize())
	plaintext := []byte("retry token payload")
	sealed := k.AEAD.Seal(nil, nonce, plaintext, nil)

	opened, err := k.AEAD.Open(nil, nonce, sealed, nil)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}
