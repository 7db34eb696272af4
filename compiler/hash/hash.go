// Package hash computes content keys for script sources.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashVersion prefixes the hashed bytes. Bumping it invalidates every
// stored key.
const HashVersion byte = 2

// Key is the SHA-256 content key of a normalized source.
type Key [32]byte

// String returns the key as lowercase hex.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Short returns the first 12 hex digits, for logs.
func (k Key) Short() string { return k.String()[:12] }

// SourceKey normalizes src and hashes the result. Sources that normalize to
// the same text share a key.
func SourceKey(src string) Key {
	return Sum(Normalize(src))
}

// Sum hashes already-normalized text.
func Sum(normalized string) Key {
	h := sha256.New()
	h.Write([]byte{HashVersion})
	h.Write([]byte(normalized))
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// ParseKey decodes the hex form produced by Key.String.
func ParseKey(s string) (Key, bool) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(k) {
		return k, false
	}
	copy(k[:], b)
	return k, true
}
