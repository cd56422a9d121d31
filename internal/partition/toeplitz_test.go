package partition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToeplitzHash_Deterministic(t *testing.T) {
	var key [ToeplitzHashKeySize]byte
	for i := range key {
		key[i] = byte(i * 7)
	}
	h := NewToeplitzHash(key)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	a := h.Hash(data)
	b := h.Hash(data)
	require.Equal(t, a, b)
}

func TestToeplitzHash_DifferentKeysDiffer(t *testing.T) {
	var keyA, keyB [ToeplitzHashKeySize]byte
	for i := range keyA {
		keyA[i] = byte(i)
		keyB[i] = byte(255 - i)
	}
	data := []byte{9, 8, 7, 6}
	ha := NewToeplitzHash(keyA).Hash(data)
	hb := NewToeplitzHash(keyB).Hash(data)
	require.NotEqual(t, ha, hb)
}
