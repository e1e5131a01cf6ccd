// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"fmt"

	"github.com/btcsuite/wabisabi/crypto/groups"
	zk "github.com/btcsuite/wabisabi/crypto/zeroknowledge"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// o is the point at infinity, used for cells of a statement's generator
// matrix whose secret does not appear in the equation.
var o = groups.Infinity()

// transcriptLabel binds every registration transcript to the range proof
// width and to whether it is a null request.
func transcriptLabel(rangeProofWidth int, isNullRequest bool) []byte {
	return []byte(fmt.Sprintf("UnifiedRegistration/%d/%t",
		rangeProofWidth, isNullRequest))
}

// issuerParametersStatement proves that a MAC was produced with the key
// behind the published parameters. Witness: (w, w', x0, x1, ya).
func issuerParametersStatement(params CredentialIssuerParameters, mac MAC,
	ma groups.GroupElement) (*zk.Statement, error) {

	u := mac.U()
	tu := u.Mul(&mac.T)

	return zk.NewStatement(
		zk.NewEquation(mac.V, groups.Gw, o, u, tu, ma),
		zk.NewEquation(groups.GV.Sub(params.I),
			o, o, groups.Gx0, groups.Gx1, groups.Ga),
		zk.NewEquation(params.Cw, groups.Gw, groups.Gwp, o, o, o),
	)
}

func issuerParametersKnowledge(sk *CredentialIssuerSecretKey,
	params CredentialIssuerParameters, mac MAC,
	ma groups.GroupElement) (*zk.Knowledge, error) {

	s, err := issuerParametersStatement(params, mac, ma)
	if err != nil {
		return nil, err
	}

	return zk.NewKnowledge(s, groups.ScalarVector{
		sk.W, sk.Wp, sk.X0, sk.X1, sk.Ya,
	})
}

// showCredentialStatement proves a presentation randomizes a valid
// credential whose serial number is S. Witness: (z, z0, t, a, r) with
// z0 = -t·z.
func showCredentialStatement(p *CredentialPresentation,
	z groups.GroupElement, iParam groups.GroupElement) (*zk.Statement,
	error) {

	return zk.NewStatement(
		zk.NewEquation(z, iParam, o, o, o, o),
		zk.NewEquation(p.Cx1, groups.Gx1, groups.Gx0, p.Cx0, o, o),
		zk.NewEquation(p.Ca, groups.Ga, o, o, groups.Gg, groups.Gh),
		zk.NewEquation(p.S, o, o, o, o, groups.Gs),
	)
}

func showCredentialKnowledge(p *CredentialPresentation,
	z *secp256k1.ModNScalar, c *Credential,
	params CredentialIssuerParameters) (*zk.Knowledge, error) {

	s, err := showCredentialStatement(p, params.I.Mul(z), params.I)
	if err != nil {
		return nil, err
	}

	tz := groups.Mul(&c.Mac.T, z)
	z0 := groups.Neg(&tz)
	a := groups.ScalarFromInt64(c.Value)

	return zk.NewKnowledge(s, groups.ScalarVector{
		*z, z0, c.Mac.T, a, c.Randomness,
	})
}

// rangeProofStatement proves that Ma commits to a value in
// [0, 2^width) using the bit commitments B_i. Witness:
// (r, b_0..b_n-1, r_0..r_n-1, p_0..p_n-1) with p_i = -b_i·r_i.
func rangeProofStatement(ma groups.GroupElement,
	bitCommitments groups.GroupElementVector) (*zk.Statement, error) {

	n := len(bitCommitments)
	width := 1 + 3*n
	row := func() groups.GroupElementVector {
		return make(groups.GroupElementVector, width)
	}

	equations := make([]zk.Equation, 0, 1+2*n)

	// Ma - Σ2^i·B_i = r·Gh - Σ2^i·r_i·Gh
	sum := ma
	first := row()
	first[0] = groups.Gh
	for i, b := range bitCommitments {
		p := groups.PowerOfTwo(i)
		sum = sum.Sub(b.Mul(&p))
		first[1+n+i] = groups.Gh.Mul(&p).Negate()
	}
	equations = append(equations, zk.Equation{
		Public: sum, Generators: first,
	})

	for i, b := range bitCommitments {
		// B_i = b_i·Gg + r_i·Gh
		commit := row()
		commit[1+i] = groups.Gg
		commit[1+n+i] = groups.Gh
		equations = append(equations, zk.Equation{
			Public: b, Generators: commit,
		})

		// O = b_i·(B_i - Gg) + p_i·Gh
		bit := row()
		bit[1+i] = b.Sub(groups.Gg)
		bit[1+2*n+i] = groups.Gh
		equations = append(equations, zk.Equation{
			Public: o, Generators: bit,
		})
	}

	return zk.NewStatement(equations...)
}

// bitCommitmentWitness is the private part of a range proof.
type bitCommitmentWitness struct {
	bits       groups.ScalarVector
	randomness groups.ScalarVector
}

func rangeProofKnowledge(ma groups.GroupElement,
	bitCommitments groups.GroupElementVector, r *secp256k1.ModNScalar,
	w *bitCommitmentWitness) (*zk.Knowledge, error) {

	s, err := rangeProofStatement(ma, bitCommitments)
	if err != nil {
		return nil, err
	}

	n := len(bitCommitments)
	witness := make(groups.ScalarVector, 1+3*n)
	witness[0] = *r
	for i := 0; i < n; i++ {
		witness[1+i] = w.bits[i]
		witness[1+n+i] = w.randomness[i]
		br := groups.Mul(&w.bits[i], &w.randomness[i])
		witness[1+2*n+i] = groups.Neg(&br)
	}

	return zk.NewKnowledge(s, witness)
}

// zeroProofStatement proves that Ma commits to zero. Witness: (r).
func zeroProofStatement(ma groups.GroupElement) (*zk.Statement, error) {
	return zk.NewStatement(zk.NewEquation(ma, groups.Gh))
}

func zeroProofKnowledge(ma groups.GroupElement,
	r *secp256k1.ModNScalar) (*zk.Knowledge, error) {

	s, err := zeroProofStatement(ma)
	if err != nil {
		return nil, err
	}

	return zk.NewKnowledge(s, groups.ScalarVector{*r})
}

// balanceCommitment returns Δ·Gg + ΣCa - ΣMa'.
func balanceCommitment(delta int64, presented []CredentialPresentation,
	requested []IssuanceRequest) groups.GroupElement {

	d := groups.ScalarFromInt64(delta)
	b := groups.Gg.Mul(&d)
	for i := range presented {
		b = b.Add(presented[i].Ca)
	}
	for i := range requested {
		b = b.Sub(requested[i].Ma)
	}

	return b
}

// balanceProofStatement proves that the requested values minus the
// presented values equal delta. Witness: (Σz, Σr - Σr').
func balanceProofStatement(b groups.GroupElement) (*zk.Statement, error) {
	return zk.NewStatement(zk.NewEquation(b, groups.Ga, groups.Gh))
}

func balanceProofKnowledge(b groups.GroupElement, zSum,
	rDelta *secp256k1.ModNScalar) (*zk.Knowledge, error) {

	s, err := balanceProofStatement(b)
	if err != nil {
		return nil, err
	}

	return zk.NewKnowledge(s, groups.ScalarVector{*zSum, *rDelta})
}
