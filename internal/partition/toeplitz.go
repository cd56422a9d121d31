package partition

import "encoding/binary"

// ToeplitzHashKeySize is the size in bytes of the randomized hash key
// (spec.md §3: "key randomized once at init").
const ToeplitzHashKeySize = 40

// ToeplitzHash is a keyed PRF used to derive partition affinity from a
// connection ID or 5-tuple. It implements the Toeplitz hash used by
// RSS-style NIC hashing: for every set input bit, the 32-bit key window at
// that bit offset is XOR-folded into the result, so the same (addr) tuple always maps to the same
// partition for the lifetime of the process.
type ToeplitzHash struct {
	key [ToeplitzHashKeySize]byte
}

// NewToeplitzHash builds a ToeplitzHash from a randomized key. The caller
// is responsible for sourcing the key from a CSPRNG exactly once at
// library init (spec.md §4.1 step 2).
func NewToeplitzHash(key [ToeplitzHashKeySize]byte) *ToeplitzHash {
	return &ToeplitzHash{key: key}
}

// Hash computes the Toeplitz hash of data (typically a connection ID or a
// serialized 5-tuple). The result is masked by the caller with the
// partition mask, then folded to the partition count (spec.md §4.2).
func (h *ToeplitzHash) Hash(data []byte) uint32 {
	var result uint32
	for bit := 0; bit < len(data)*8; bit++ {
		byteIdx := bit / 8
		bitIdx := 7 - uint(bit%8)
		if data[byteIdx]&(1<<bitIdx) == 0 {
			continue
		}
		result ^= h.keyWindow(bit)
	}
	return result
}

// keyWindow returns the 32-bit big-endian window of the key starting at
// the given bit offset, as the Toeplitz construction requires.
func (h *ToeplitzHash) keyWindow(bitOffset int) uint32 {
	byteOffset := bitOffset / 8
	bitShift := uint(bitOffset % 8)

	window := make([]byte, 5)
	for i := range window {
		if byteOffset+i < len(h.key) {
			window[i] = h.key[byteOffset+i]
		}
	}

	v := binary.BigEndian.Uint64(append(window, 0, 0, 0))
	return uint32(v >> (32 - bitShift))
}
