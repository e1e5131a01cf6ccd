// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package groups

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// The generators of the credential scheme. Except for G they are derived
// with FromText so nobody knows the discrete log relation between any two
// of them.
var (
	// G is the standard generator of secp256k1.
	G = BaseMul(scalarOne())

	// Gw and Gwp commit to the issuer's w and w' secrets.
	Gw  = FromText("WabiSabi_Gw")
	Gwp = FromText("WabiSabi_Gwp")

	// Gx0, Gx1 and Ga are bases for the x0, x1 and ya secrets.
	Gx0 = FromText("WabiSabi_Gx0")
	Gx1 = FromText("WabiSabi_Gx1")
	Ga  = FromText("WabiSabi_Ga")

	// GV is the base of the issuer parameter I.
	GV = FromText("WabiSabi_GV")

	// Gg and Gh are the Pedersen commitment bases for credential values
	// and their blinding randomness.
	Gg = FromText("WabiSabi_Gg")
	Gh = FromText("WabiSabi_Gh")

	// Gs is the base of credential serial numbers.
	Gs = FromText("WabiSabi_Gs")
)

func scalarOne() *secp256k1.ModNScalar {
	return new(secp256k1.ModNScalar).SetInt(1)
}

// FromText maps a string to a group element nobody knows the discrete log
// of.
func FromText(text string) GroupElement {
	return FromBuffer([]byte(text))
}

// FromBuffer maps arbitrary bytes to a group element with try and
// increment: the first counter value for which SHA256(buf || counter) is
// the x coordinate of a curve point selects the point with even y.
func FromBuffer(buf []byte) GroupElement {
	var counter [4]byte
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(counter[:], i)

		h := sha256.New()
		h.Write(buf)
		h.Write(counter[:])
		digest := h.Sum(nil)

		var x, y secp256k1.FieldVal
		if overflow := x.SetByteSlice(digest); overflow {
			continue
		}
		if !secp256k1.DecompressY(&x, false, &y) {
			continue
		}
		y.Normalize()

		var z secp256k1.FieldVal
		z.SetInt(1)
		j := secp256k1.MakeJacobianPoint(&x, &y, &z)

		return fromJacobian(&j)
	}
}
