// Package retrykey implements the StatelessRetryKeyring (spec.md §4.5): a
// two-slot, time-rotating AES-256-GCM key used to seal and validate
// Retry-packet tokens. The algorithm here is the RFC-named AES-256-GCM, so
// key generation and sealing use the standard library's crypto/aes and
// crypto/cipher directly rather than a third-party AEAD package.
package retrykey

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elkjaer/qcore/internal/qconst"
	"github.com/elkjaer/qcore/internal/qerr"
)

const keySizeBytes = 32 // AES-256

// Key is one slot's AEAD instance plus the window it is valid for.
type Key struct {
	AEAD       cipher.AEAD
	ValidFrom  time.Time
	ValidUntil time.Time
}

// Contains reports whether t falls within this key's validity window,
// matching the half-open interval tested by get_for_timestamp.
func (k *Key) Contains(t time.Time) bool {
	return !t.Before(k.ValidFrom) && t.Before(k.ValidUntil)
}

// Keyring holds the two rotating slots (spec.md §3: retry_keys[2],
// retry_keys_expiration[2], current_retry_key). Rotation happens only in
// GetCurrent and is serialized by mu (spec.md §4.5: "on multi-threaded
// implementations the rotation must be serialized, single writer");
// GetForTimestamp is pure, lock-free observation, matching the
// dispatch-level constraint that readers never block.
type Keyring struct {
	mu         sync.Mutex
	slots      [2]atomic.Pointer[Key]
	expiration [2]atomic.Int64 // epoch-ms; 0 means the slot has never held a key
	current    atomic.Int32
}

// New returns an empty Keyring. Both slots are cleared; the first call to
// GetCurrent generates the initial key.
func New() *Keyring {
	return &Keyring{}
}

func lifetimeMs() int64 {
	return qconst.StatelessRetryKeyLifetime.Milliseconds()
}

func generateKey(validFrom, validUntil time.Time) (*Key, error) {
	material := make([]byte, keySizeBytes)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, qerr.Wrap("retrykey.generateKey", err)
	}
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, qerr.Wrap("retrykey.generateKey", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, qerr.Wrap("retrykey.generateKey", err)
	}
	return &Key{AEAD: aead, ValidFrom: validFrom, ValidUntil: validUntil}, nil
}

// GetCurrent returns the key valid for now, rotating the keyring forward
// exactly when the current slot's epoch has elapsed (spec.md §4.5:
// "let now = epoch_ms(), start = floor(now/L)*L; if start < expiration
// of current, return the current key; otherwise generate a new key").
// A key-generation failure returns an error and performs no retry; the
// keyring is left exactly as it was.
func (k *Keyring) GetCurrent(now time.Time) (*Key, error) {
	L := lifetimeMs()
	start := (now.UnixMilli() / L) * L

	cur := int(k.current.Load())
	if start < k.expiration[cur].Load() {
		if key := k.slots[cur].Load(); key != nil {
			return key, nil
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	cur = int(k.current.Load())
	if start < k.expiration[cur].Load() {
		if key := k.slots[cur].Load(); key != nil {
			return key, nil
		}
	}

	other := 1 - cur
	validFrom := time.UnixMilli(start).UTC()
	validUntil := time.UnixMilli(start + L).UTC()
	newKey, err := generateKey(validFrom, validUntil)
	if err != nil {
		return nil, err
	}

	k.slots[other].Store(nil)
	k.expiration[other].Store(start + L)
	k.slots[other].Store(newKey)
	k.current.Store(int32(other))

	return newKey, nil
}

// GetForTimestamp validates a previously-issued Retry token by returning
// the slot whose window contains t, checking the non-current slot first
// and then the current slot (spec.md §4.5: GetStatelessRetryKeyForTimestamp).
// It never rotates or generates a key.
func (k *Keyring) GetForTimestamp(t time.Time) (*Key, error) {
	L := lifetimeMs()
	ms := t.UnixMilli()
	cur := int(k.current.Load())
	other := 1 - cur

	if exp := k.expiration[other].Load(); exp != 0 && ms >= exp-L && ms < exp {
		if key := k.slots[other].Load(); key != nil {
			return key, nil
		}
	}
	if exp := k.expiration[cur].Load(); exp != 0 && ms >= exp-L && ms < exp {
		if key := k.slots[cur].Load(); key != nil {
			return key, nil
		}
	}

	return nil, qerr.New("retrykey.GetForTimestamp", qerr.NotFound, "stateless retry key rotated out")
}
