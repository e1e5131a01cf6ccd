// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"fmt"

	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/internal/zero"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// secretKeySize is the size of a serialized CredentialIssuerSecretKey.
const secretKeySize = 5 * groups.ScalarSize

// CredentialIssuerSecretKey is the coordinator's key for issuing and
// verifying credentials.
type CredentialIssuerSecretKey struct {
	W, Wp, X0, X1, Ya secp256k1.ModNScalar
}

// NewCredentialIssuerSecretKey draws a fresh secret key from rnd.
func NewCredentialIssuerSecretKey(
	rnd randomness.WasabiRandom) *CredentialIssuerSecretKey {

	return &CredentialIssuerSecretKey{
		W:  nonZeroScalar(rnd),
		Wp: nonZeroScalar(rnd),
		X0: nonZeroScalar(rnd),
		X1: nonZeroScalar(rnd),
		Ya: nonZeroScalar(rnd),
	}
}

// SecretKeyFromBytes parses a key serialized with Bytes.
func SecretKeyFromBytes(b []byte) (*CredentialIssuerSecretKey, error) {
	if len(b) != secretKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d",
			secretKeySize, len(b))
	}

	var sk CredentialIssuerSecretKey
	fields := []*secp256k1.ModNScalar{&sk.W, &sk.Wp, &sk.X0, &sk.X1, &sk.Ya}
	for i, f := range fields {
		s, err := groups.ScalarFromBytes(
			b[i*groups.ScalarSize : (i+1)*groups.ScalarSize],
		)
		if err != nil {
			return nil, err
		}
		*f = s
	}

	return &sk, nil
}

// Bytes serializes the key. Callers should wipe the returned slice with
// zero.Bytes once it has been persisted.
func (sk *CredentialIssuerSecretKey) Bytes() []byte {
	return groups.ScalarVector{sk.W, sk.Wp, sk.X0, sk.X1, sk.Ya}.Bytes()
}

// Zero clears the key material.
func (sk *CredentialIssuerSecretKey) Zero() {
	zero.Scalars(&sk.W, &sk.Wp, &sk.X0, &sk.X1, &sk.Ya)
}

// ComputeCredentialIssuerParameters returns the public parameters clients
// verify issued credentials against.
func (sk *CredentialIssuerSecretKey) ComputeCredentialIssuerParameters() CredentialIssuerParameters {
	cw := groups.Gw.Mul(&sk.W).Add(groups.Gwp.Mul(&sk.Wp))
	i := groups.GV.Sub(
		groups.Gx0.Mul(&sk.X0).
			Add(groups.Gx1.Mul(&sk.X1)).
			Add(groups.Ga.Mul(&sk.Ya)),
	)

	return CredentialIssuerParameters{Cw: cw, I: i}
}

// CredentialIssuerParameters are the public counterpart of a
// CredentialIssuerSecretKey.
type CredentialIssuerParameters struct {
	Cw groups.GroupElement
	I  groups.GroupElement
}

// nonZeroScalar draws scalars from rnd until a non-zero one is found.
func nonZeroScalar(rnd randomness.WasabiRandom) secp256k1.ModNScalar {
	for {
		s := rnd.GetScalar()
		if !s.IsZero() {
			return s
		}
	}
}
