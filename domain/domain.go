// Package domain implements the scalar field every derived key and data
// node is converted into before the additive encode/decode step: a
// 32-byte element of the BLS12-381 scalar field, the field the proving
// system downstream of this engine commits over.
//
// Elements are serialized as 32 little-endian bytes, matching the Fr
// wire format the rest of the proof pipeline uses. Under that layout,
// clearing the high two bits of byte 31 (the truncation rule applied to
// every node hash) caps the value below 2^254, which is strictly less
// than the field order, so engine-derived keys always convert cleanly.
//
// Arithmetic is built on github.com/holiman/uint256 rather than math/big
// so the per-node hot path (one Add or Sub per encoded node) allocates
// nothing.
package domain

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrNotAScalar is returned when 32 bytes do not represent a valid element
// of the scalar field (value >= the field order).
var ErrNotAScalar = errors.New("domain: bytes do not represent a valid scalar")

// scalarOrder is the order r of the BLS12-381 scalar field:
//
//	r = 0x73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001
var scalarOrder = uint256.MustFromHex(
	"0x73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001")

// Element is a single element of the scalar field, always held reduced
// modulo scalarOrder.
type Element struct {
	v uint256.Int
}

// Zero returns the additive identity.
func Zero() Element {
	return Element{}
}

// TryFromBytes interprets b as a 32-byte little-endian integer and returns
// the corresponding Element. It fails with ErrNotAScalar if the value is
// not strictly less than the field order. The truncation rule guarantees
// this never happens for keys derived by the engine itself, so a failure
// here on an engine-derived key is a bug, not a reachable runtime
// condition; user data nodes, however, arrive unvalidated and can fail.
func TryFromBytes(b []byte) (Element, error) {
	if len(b) != 32 {
		return Element{}, fmt.Errorf("domain: %w: expected 32 bytes, got %d", ErrNotAScalar, len(b))
	}
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = b[31-i]
	}
	var v uint256.Int
	v.SetBytes(be[:])
	if v.Cmp(scalarOrder) >= 0 {
		return Element{}, ErrNotAScalar
	}
	return Element{v: v}, nil
}

// IntoBytes serializes the element as 32 little-endian bytes.
func (e Element) IntoBytes() [32]byte {
	be := e.v.Bytes32()
	var le [32]byte
	for i := 0; i < 32; i++ {
		le[i] = be[31-i]
	}
	return le
}

// Add returns k + m in the scalar field (encode's underlying operation).
func Add(k, m Element) Element {
	var sum uint256.Int
	sum.Add(&k.v, &m.v)
	if sum.Cmp(scalarOrder) >= 0 {
		sum.Sub(&sum, scalarOrder)
	}
	return Element{v: sum}
}

// Sub returns c - k in the scalar field (decode's underlying operation).
func Sub(c, k Element) Element {
	var diff uint256.Int
	if c.v.Cmp(&k.v) >= 0 {
		diff.Sub(&c.v, &k.v)
	} else {
		// c < k: wrap around the field order without relying on
		// unsigned-integer underflow, which would wrap mod 2^256
		// instead of mod scalarOrder.
		diff.Sub(scalarOrder, &k.v)
		diff.Add(&diff, &c.v)
	}
	return Element{v: diff}
}

// Encode computes key + data, the additive encoding operation.
func Encode(key, data Element) Element {
	return Add(key, data)
}

// Decode computes encoded - key, inverting Encode. decode(k, encode(k, m))
// == m holds for all k, m by construction of Add/Sub above.
func Decode(key, encoded Element) Element {
	return Sub(encoded, key)
}
