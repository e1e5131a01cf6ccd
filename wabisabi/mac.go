// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// MAC is an algebraic message authentication code over an attribute
// commitment, produced with the issuer's secret key.
type MAC struct {
	T secp256k1.ModNScalar
	V groups.GroupElement
}

// macGenerator derives U from t.
func macGenerator(t *secp256k1.ModNScalar) groups.GroupElement {
	b := t.Bytes()
	return groups.FromBuffer(b[:])
}

// ComputeMAC returns the MAC of the attribute commitment ma for the given
// t: V = w·Gw + (x0 + x1·t)·U + ya·Ma.
func ComputeMAC(sk *CredentialIssuerSecretKey, ma groups.GroupElement,
	t *secp256k1.ModNScalar) MAC {

	u := macGenerator(t)
	x1t := groups.Mul(&sk.X1, t)
	coeff := groups.Add(&sk.X0, &x1t)

	v := groups.Gw.Mul(&sk.W).
		Add(u.Mul(&coeff)).
		Add(ma.Mul(&sk.Ya))

	return MAC{T: *t, V: v}
}

// Verify reports whether m is a valid MAC on ma under sk.
func (m *MAC) Verify(sk *CredentialIssuerSecretKey,
	ma groups.GroupElement) bool {

	expected := ComputeMAC(sk, ma, &m.T)
	return expected.V.Equal(m.V)
}

// U returns the MAC's generator.
func (m *MAC) U() groups.GroupElement {
	return macGenerator(&m.T)
}
