// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package zeroknowledge

import (
	"fmt"

	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Proof is a non-interactive proof of knowledge for one statement: one
// nonce commitment per equation and one response per witness scalar.
type Proof struct {
	PublicNonces groups.GroupElementVector
	Responses    groups.ScalarVector
}

// Prove creates proofs for all knowledges over a shared transcript. All
// statements are committed first, then the nonce commitments of every
// proof, and a single challenge is derived for all of them.
func Prove(t *Transcript, knowledges []*Knowledge,
	rnd randomness.WasabiRandom) ([]*Proof, error) {

	if len(knowledges) == 0 {
		return nil, fmt.Errorf("%w: nothing to prove", ErrInvalidArgument)
	}

	for _, k := range knowledges {
		t.CommitStatement(k.Statement)
	}

	secretNonces := make([]groups.ScalarVector, len(knowledges))
	proofs := make([]*Proof, len(knowledges))
	for i, k := range knowledges {
		nonces := t.GenerateSecretNonces(k.Witness, rnd)
		publicNonces := make(groups.GroupElementVector,
			len(k.Statement.Equations))
		for j := range k.Statement.Equations {
			eq := &k.Statement.Equations[j]
			publicNonces[j] = eq.Generators.MultiplyAdd(nonces)
		}
		t.CommitPublicNonces(publicNonces)

		secretNonces[i] = nonces
		proofs[i] = &Proof{PublicNonces: publicNonces}
	}

	challenge := t.GenerateChallenge()
	for i, k := range knowledges {
		responses := make(groups.ScalarVector, len(k.Witness))
		for j := range k.Witness {
			// s = k + e·w
			ew := groups.Mul(&challenge, &k.Witness[j])
			responses[j] = groups.Add(&secretNonces[i][j], &ew)
		}
		proofs[i].Responses = responses
	}

	return proofs, nil
}

// Verify checks proofs created by Prove. The transcript must be in the same
// state the prover's was and statements must be given in the same order.
func Verify(t *Transcript, statements []*Statement, proofs []*Proof) bool {
	if len(statements) == 0 || len(statements) != len(proofs) {
		return false
	}

	for _, s := range statements {
		t.CommitStatement(s)
	}
	for i, p := range proofs {
		if p == nil || len(p.PublicNonces) != len(statements[i].Equations) {
			return false
		}
		t.CommitPublicNonces(p.PublicNonces)
	}

	challenge := t.GenerateChallenge()
	for i, s := range statements {
		if !s.verify(proofs[i], &challenge) {
			return false
		}
	}

	return true
}

// maxZeroNonces is how many zero nonces in a row CreateProof accepts from
// the random source before giving up on it.
const maxZeroNonces = 3

// dlLabel labels transcripts of standalone discrete log proofs.
var dlLabel = []byte("WabiSabi_DiscreteLog")

// CreateProof proves knowledge of secret such that public = secret·g using
// nonces drawn from rnd.
func CreateProof(secret *secp256k1.ModNScalar, public,
	generator groups.GroupElement,
	rnd randomness.WasabiRandom) (*Proof, error) {

	if err := checkDLArguments(secret, public, generator); err != nil {
		return nil, err
	}

	zeros := 0
	for {
		var (
			b     [32]byte
			nonce secp256k1.ModNScalar
		)
		rnd.GetBytes(b[:])
		if overflow := nonce.SetBytes(&b); overflow != 0 {
			continue
		}
		if nonce.IsZero() {
			zeros++
			if zeros >= maxZeroNonces {
				return nil, fmt.Errorf("%w: random source keeps "+
					"returning zero", ErrInvalidOperation)
			}
			continue
		}

		return CreateProofWithNonce(secret, &nonce, public, generator)
	}
}

// CreateProofWithNonce proves public = secret·g with a caller supplied
// nonce.
func CreateProofWithNonce(secret, nonce *secp256k1.ModNScalar, public,
	generator groups.GroupElement) (*Proof, error) {

	if err := checkDLArguments(secret, public, generator); err != nil {
		return nil, err
	}
	if nonce.IsZero() {
		return nil, fmt.Errorf("%w: zero nonce", ErrInvalidArgument)
	}
	if !generator.Mul(secret).Equal(public) {
		return nil, fmt.Errorf("%w: public point is not secret·generator",
			ErrInvalidOperation)
	}

	publicNonce := generator.Mul(nonce)
	if publicNonce.Equal(public) {
		return nil, fmt.Errorf("%w: nonce commitment equals the public "+
			"point", ErrInvalidOperation)
	}

	statement, err := NewDLStatement(public, generator)
	if err != nil {
		return nil, err
	}

	t := NewTranscript(dlLabel)
	t.CommitStatement(statement)
	t.CommitPublicNonces(groups.GroupElementVector{publicNonce})
	challenge := t.GenerateChallenge()

	ew := groups.Mul(&challenge, secret)
	response := groups.Add(nonce, &ew)

	return &Proof{
		PublicNonces: groups.GroupElementVector{publicNonce},
		Responses:    groups.ScalarVector{response},
	}, nil
}

// VerifyProof checks a proof created by CreateProof.
func VerifyProof(p *Proof, public, generator groups.GroupElement) bool {
	if p == nil || len(p.PublicNonces) != 1 || len(p.Responses) != 1 {
		return false
	}
	if p.PublicNonces[0].Equal(public) {
		return false
	}

	statement, err := NewDLStatement(public, generator)
	if err != nil {
		return false
	}

	t := NewTranscript(dlLabel)
	t.CommitStatement(statement)
	t.CommitPublicNonces(p.PublicNonces)
	challenge := t.GenerateChallenge()

	return statement.verify(p, &challenge)
}

func checkDLArguments(secret *secp256k1.ModNScalar, public,
	generator groups.GroupElement) error {

	switch {
	case secret.IsZero():
		return fmt.Errorf("%w: zero secret", ErrInvalidArgument)
	case public.IsInfinity():
		return fmt.Errorf("%w: public point at infinity",
			ErrInvalidArgument)
	case generator.IsInfinity():
		return fmt.Errorf("%w: generator at infinity", ErrInvalidArgument)
	}

	return nil
}
