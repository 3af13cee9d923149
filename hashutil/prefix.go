// Package hashutil implements the node-hashing primitives the NSE labeling
// engine layers on top of SHA-256: the positional hash prefix, the
// field-fitting truncation rule, and the batch-hash reduction expander
// layers use to fold their wide parent set into a single digest.
//
// SHA-256 itself comes from github.com/minio/sha256-simd, a
// SIMD-accelerated drop-in for crypto/sha256; node hashing is the hot
// path this whole engine exists to make fast.
package hashutil

import (
	"encoding/binary"
	"hash"

	sha256simd "github.com/minio/sha256-simd"
)

// HashPrefix builds the first 32 bytes fed into every node's hash: the
// layer index (big-endian u32) followed by the absolute node index
// (big-endian u64), zero-padded to 32 bytes. Drift here silently corrupts
// every derived key, so the byte layout is fixed and covered by golden
// test vectors.
func HashPrefix(layer uint32, absoluteNodeIndex uint64) [32]byte {
	var prefix [32]byte
	binary.BigEndian.PutUint32(prefix[0:4], layer)
	binary.BigEndian.PutUint64(prefix[4:12], absoluteNodeIndex)
	return prefix
}

// Truncate clears the high two bits of the last byte of a 32-byte digest
// in place. Node values are interpreted as little-endian field elements,
// so this caps the value below 2^254, strictly less than the BLS12-381
// scalar field order. Applied to every node value written into a layer
// buffer and to every derived encoding key.
func Truncate(digest *[32]byte) {
	digest[31] &= 0x3f
}

// NewSHA256 returns a fresh streaming SHA-256 state, the primitive the
// rest of this package and the layer engine build on.
func NewSHA256() hash.Hash {
	return sha256simd.New()
}

// Sum256 is a convenience wrapper for one-shot hashing of already
// concatenated input, used by the mask layer.
func Sum256(data ...[]byte) [32]byte {
	h := NewSHA256()
	for _, d := range data {
		h.Write(d) //nolint:errcheck // hash.Hash.Write never returns an error
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
