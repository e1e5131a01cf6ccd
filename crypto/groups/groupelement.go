// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package groups implements the prime order group used by the proof system:
// points and scalars of secp256k1.
package groups

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ElementSize is the size of a serialized group element. Elements are
// serialized in compressed form, the point at infinity is serialized as
// ElementSize zero bytes.
const ElementSize = 33

var (
	// ErrInvalidPoint is returned when a serialized group element does not
	// describe a point on the curve.
	ErrInvalidPoint = errors.New("invalid group element")

	// ErrScalarOverflow is returned when a serialized scalar is not
	// smaller than the group order.
	ErrScalarOverflow = errors.New("scalar overflows the group order")

	// ErrInvalidScalarLength is returned when a serialized scalar does not
	// have exactly 32 bytes.
	ErrInvalidScalarLength = errors.New("scalar must be 32 bytes")
)

// GroupElement is a point of the secp256k1 group. The zero value is the
// point at infinity.
type GroupElement struct {
	// p is always kept in affine coordinates so equality and encoding do
	// not need to normalize.
	p secp256k1.JacobianPoint

	// finite is false for the point at infinity.
	finite bool
}

// Infinity returns the identity element of the group.
func Infinity() GroupElement {
	return GroupElement{}
}

// isInfinity reports whether a jacobian point encodes the identity. Both the
// (0, 0) affine encoding and a zero Z coordinate are used by the curve
// implementation.
func isInfinity(j *secp256k1.JacobianPoint) bool {
	var x, y, z secp256k1.FieldVal
	x.Set(&j.X).Normalize()
	y.Set(&j.Y).Normalize()
	z.Set(&j.Z).Normalize()

	return (x.IsZero() && y.IsZero()) || z.IsZero()
}

// fromJacobian converts the result of a curve operation into a group
// element.
func fromJacobian(j *secp256k1.JacobianPoint) GroupElement {
	if isInfinity(j) {
		return Infinity()
	}

	var e GroupElement
	e.p.Set(j)
	e.p.ToAffine()
	e.finite = true

	return e
}

// IsInfinity reports whether e is the point at infinity.
func (e GroupElement) IsInfinity() bool {
	return !e.finite
}

// Equal reports whether e and o are the same point.
func (e GroupElement) Equal(o GroupElement) bool {
	if !e.finite || !o.finite {
		return e.finite == o.finite
	}

	return e.p.X.Equals(&o.p.X) && e.p.Y.Equals(&o.p.Y)
}

// Add returns e + o.
func (e GroupElement) Add(o GroupElement) GroupElement {
	switch {
	case !e.finite:
		return o
	case !o.finite:
		return e
	}

	var r secp256k1.JacobianPoint
	secp256k1.AddNonConst(&e.p, &o.p, &r)

	return fromJacobian(&r)
}

// Negate returns -e.
func (e GroupElement) Negate() GroupElement {
	if !e.finite {
		return e
	}

	n := e
	n.p.Y.Negate(1).Normalize()

	return n
}

// Sub returns e - o.
func (e GroupElement) Sub(o GroupElement) GroupElement {
	return e.Add(o.Negate())
}

// Mul returns s·e.
func (e GroupElement) Mul(s *secp256k1.ModNScalar) GroupElement {
	if !e.finite || s.IsZero() {
		return Infinity()
	}

	var r secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(s, &e.p, &r)

	return fromJacobian(&r)
}

// Bytes returns the compressed serialization of e.
func (e GroupElement) Bytes() []byte {
	b := make([]byte, ElementSize)
	if !e.finite {
		return b
	}

	b[0] = secp256k1.PubKeyFormatCompressedEven
	if e.p.Y.IsOdd() {
		b[0] = secp256k1.PubKeyFormatCompressedOdd
	}
	e.p.X.PutBytesUnchecked(b[1:])

	return b
}

// String returns the hex encoding of the serialized element.
func (e GroupElement) String() string {
	return hex.EncodeToString(e.Bytes())
}

// FromBytes parses a compressed group element.
func FromBytes(b []byte) (GroupElement, error) {
	if len(b) != ElementSize {
		return GroupElement{}, fmt.Errorf("%w: length %d", ErrInvalidPoint,
			len(b))
	}

	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return Infinity(), nil
	}

	pubKey, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return GroupElement{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}

	var j secp256k1.JacobianPoint
	pubKey.AsJacobian(&j)

	return fromJacobian(&j), nil
}

// FromHex parses a hex encoded compressed group element.
func FromHex(s string) (GroupElement, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return GroupElement{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}

	return FromBytes(b)
}

// MarshalText implements encoding.TextMarshaler.
func (e GroupElement) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *GroupElement) UnmarshalText(text []byte) error {
	parsed, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*e = parsed

	return nil
}

// BaseMul returns s·G where G is the standard secp256k1 generator.
func BaseMul(s *secp256k1.ModNScalar) GroupElement {
	if s.IsZero() {
		return Infinity()
	}

	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &r)

	return fromJacobian(&r)
}
