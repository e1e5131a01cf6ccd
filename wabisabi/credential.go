// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Credential is an issued credential held by a client: a value, the
// blinding randomness of its attribute commitment and the issuer's MAC.
type Credential struct {
	Value      int64
	Randomness secp256k1.ModNScalar
	Mac        MAC
}

// Ma returns the attribute commitment a·Gg + r·Gh the MAC was issued on.
func (c *Credential) Ma() groups.GroupElement {
	return pedersenCommitment(c.Value, &c.Randomness)
}

// SerialNumber returns S = r·Gs, the value revealed when presenting the
// credential.
func (c *Credential) SerialNumber() groups.GroupElement {
	return groups.Gs.Mul(&c.Randomness)
}

// Present randomizes the credential with z.
func (c *Credential) Present(z *secp256k1.ModNScalar) CredentialPresentation {
	u := c.Mac.U()
	tu := u.Mul(&c.Mac.T)

	return CredentialPresentation{
		Ca:  groups.Ga.Mul(z).Add(c.Ma()),
		Cx0: groups.Gx0.Mul(z).Add(u),
		Cx1: groups.Gx1.Mul(z).Add(tu),
		CV:  groups.GV.Mul(z).Add(c.Mac.V),
		S:   c.SerialNumber(),
	}
}

// CredentialPresentation is a randomized credential shown to the issuer.
type CredentialPresentation struct {
	Ca  groups.GroupElement
	Cx0 groups.GroupElement
	Cx1 groups.GroupElement
	CV  groups.GroupElement
	S   groups.GroupElement
}

// ComputeZ returns CV - (w·Gw + x0·Cx0 + x1·Cx1 + ya·Ca), which equals z·I
// for a presentation of a valid credential.
func (p *CredentialPresentation) ComputeZ(
	sk *CredentialIssuerSecretKey) groups.GroupElement {

	return p.CV.Sub(
		groups.Gw.Mul(&sk.W).
			Add(p.Cx0.Mul(&sk.X0)).
			Add(p.Cx1.Mul(&sk.X1)).
			Add(p.Ca.Mul(&sk.Ya)),
	)
}

// pedersenCommitment returns a·Gg + r·Gh.
func pedersenCommitment(a int64, r *secp256k1.ModNScalar) groups.GroupElement {
	as := groups.ScalarFromInt64(a)
	return groups.Gg.Mul(&as).Add(groups.Gh.Mul(r))
}
