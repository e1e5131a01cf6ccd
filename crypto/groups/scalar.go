// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package groups

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ScalarSize is the size of a serialized scalar.
const ScalarSize = 32

// ScalarFromBytes parses a big endian scalar. Values that are not smaller
// than the group order are rejected instead of being reduced.
func ScalarFromBytes(b []byte) (secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	if len(b) != ScalarSize {
		return s, fmt.Errorf("%w: got %d", ErrInvalidScalarLength, len(b))
	}
	if overflow := s.SetByteSlice(b); overflow {
		return s, ErrScalarOverflow
	}

	return s, nil
}

// ScalarFromHex parses a hex encoded scalar.
func ScalarFromHex(str string) (secp256k1.ModNScalar, error) {
	b, err := hex.DecodeString(str)
	if err != nil {
		return secp256k1.ModNScalar{}, err
	}

	return ScalarFromBytes(b)
}

// ScalarHex returns the hex encoding of s.
func ScalarHex(s *secp256k1.ModNScalar) string {
	b := s.Bytes()
	return hex.EncodeToString(b[:])
}

// ScalarFromUint64 returns v as a scalar.
func ScalarFromUint64(v uint64) secp256k1.ModNScalar {
	var (
		b [32]byte
		s secp256k1.ModNScalar
	)
	binary.BigEndian.PutUint64(b[24:], v)
	s.SetBytes(&b)

	return s
}

// ScalarFromInt64 returns v as a scalar, negative values map to their
// additive inverse.
func ScalarFromInt64(v int64) secp256k1.ModNScalar {
	if v >= 0 {
		return ScalarFromUint64(uint64(v))
	}

	// -math.MinInt64 overflows int64 but is representable as uint64.
	s := ScalarFromUint64(uint64(-(v + 1)) + 1)
	s.Negate()

	return s
}

// PowerOfTwo returns 2^i as a scalar for i < 256.
func PowerOfTwo(i int) secp256k1.ModNScalar {
	var (
		b [32]byte
		s secp256k1.ModNScalar
	)
	b[31-i/8] = 1 << (uint(i) % 8)
	s.SetBytes(&b)

	return s
}

// Add returns a + b.
func Add(a, b *secp256k1.ModNScalar) secp256k1.ModNScalar {
	var r secp256k1.ModNScalar
	r.Add2(a, b)
	return r
}

// Sub returns a - b.
func Sub(a, b *secp256k1.ModNScalar) secp256k1.ModNScalar {
	var r secp256k1.ModNScalar
	r.NegateVal(b).Add(a)
	return r
}

// Mul returns a·b.
func Mul(a, b *secp256k1.ModNScalar) secp256k1.ModNScalar {
	var r secp256k1.ModNScalar
	r.Mul2(a, b)
	return r
}

// Neg returns -a.
func Neg(a *secp256k1.ModNScalar) secp256k1.ModNScalar {
	var r secp256k1.ModNScalar
	r.NegateVal(a)
	return r
}

// ScalarVector is an ordered list of scalars, typically a witness.
type ScalarVector []secp256k1.ModNScalar

// Bytes concatenates the serialized scalars.
func (v ScalarVector) Bytes() []byte {
	out := make([]byte, 0, len(v)*ScalarSize)
	for i := range v {
		b := v[i].Bytes()
		out = append(out, b[:]...)
	}

	return out
}

// GroupElementVector is an ordered list of group elements, typically the
// generators of one equation.
type GroupElementVector []GroupElement

// MultiplyAdd returns Σ s_i·g_i. Both vectors must have the same length.
func (g GroupElementVector) MultiplyAdd(s ScalarVector) GroupElement {
	if len(g) != len(s) {
		panic("groups: vector length mismatch")
	}

	acc := Infinity()
	for i := range g {
		acc = acc.Add(g[i].Mul(&s[i]))
	}

	return acc
}

// Bytes concatenates the serialized group elements.
func (g GroupElementVector) Bytes() []byte {
	out := make([]byte, 0, len(g)*ElementSize)
	for _, e := range g {
		out = append(out, e.Bytes()...)
	}

	return out
}
