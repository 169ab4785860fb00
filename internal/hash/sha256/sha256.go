// Package sha256 digests logo bytes for content-addressed object names.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements storage.Hasher. Digests are hex encoded and cut to
// length characters, which keeps object names short while identical logos
// still share a name.
type Hasher struct {
	length int
}

// New returns a hasher producing length hex characters; zero or anything
// above 64 yields the full digest.
func New(length int) *Hasher {
	if length <= 0 || length > hex.EncodedLen(sha256.Size) {
		length = hex.EncodedLen(sha256.Size)
	}
	return &Hasher{length: length}
}

// Hash returns the (possibly shortened) hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:h.length], nil
}
