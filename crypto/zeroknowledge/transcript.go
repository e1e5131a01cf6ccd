// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package zeroknowledge

import (
	"encoding/binary"

	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// domainSeparator customizes the cSHAKE256 instance backing every
// transcript.
const domainSeparator = "WabiSabi_v1.0"

// Message tags absorbed ahead of each transcript entry.
const (
	tagLabel       = "label"
	tagStatement   = "statement"
	tagPublicNonce = "nonce-commitment"
	tagChallenge   = "challenge"
	tagSynthetic   = "secret-nonce"
	tagWitness     = "witness"
	tagRandomness  = "random"
)

// Transcript is a Fiat-Shamir transcript. The prover and the verifier feed
// it the same sequence of statements and nonce commitments, in the same
// order, and derive the same challenge from it.
type Transcript struct {
	h sha3.ShakeHash
}

// NewTranscript returns a transcript bound to label.
func NewTranscript(label []byte) *Transcript {
	t := &Transcript{
		h: sha3.NewCShake256(nil, []byte(domainSeparator)),
	}
	t.addMessage(tagLabel, label)

	return t
}

// Clone returns an independent copy of the transcript state.
func (t *Transcript) Clone() *Transcript {
	return &Transcript{h: t.h.Clone()}
}

// addMessage absorbs a length prefixed tag followed by a length prefixed
// payload.
func (t *Transcript) addMessage(tag string, data []byte) {
	var l [4]byte

	binary.BigEndian.PutUint32(l[:], uint32(len(tag)))
	t.h.Write(l[:])
	t.h.Write([]byte(tag))

	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	t.h.Write(l[:])
	t.h.Write(data)
}

// CommitStatement absorbs every public point and generator of s.
func (t *Transcript) CommitStatement(s *Statement) {
	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.Equations)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(s.Width()))
	for _, eq := range s.Equations {
		buf = append(buf, eq.Public.Bytes()...)
		buf = append(buf, eq.Generators.Bytes()...)
	}

	t.addMessage(tagStatement, buf)
}

// CommitPublicNonces absorbs the nonce commitments of one proof.
func (t *Transcript) CommitPublicNonces(nonces groups.GroupElementVector) {
	t.addMessage(tagPublicNonce, nonces.Bytes())
}

// squeezeScalars reads n non-zero scalars from h, skipping values that
// overflow the group order or are zero.
func squeezeScalars(h sha3.ShakeHash, n int) groups.ScalarVector {
	out := make(groups.ScalarVector, 0, n)
	for len(out) < n {
		var (
			b [32]byte
			s secp256k1.ModNScalar
		)
		h.Read(b[:])
		if overflow := s.SetBytes(&b); overflow != 0 || s.IsZero() {
			continue
		}
		out = append(out, s)
	}

	return out
}

// GenerateSecretNonces derives one secret nonce per witness scalar from the
// current transcript state, the witness itself and fresh randomness. The
// transcript state is not modified.
func (t *Transcript) GenerateSecretNonces(witness groups.ScalarVector,
	rnd randomness.WasabiRandom) groups.ScalarVector {

	fork := t.Clone()
	fork.addMessage(tagSynthetic, nil)
	fork.addMessage(tagWitness, witness.Bytes())

	var random [32]byte
	rnd.GetBytes(random[:])
	fork.addMessage(tagRandomness, random[:])

	return squeezeScalars(fork.h, len(witness))
}

// GenerateChallenge derives the challenge scalar from everything committed
// so far and binds the challenge into the transcript.
func (t *Transcript) GenerateChallenge() secp256k1.ModNScalar {
	fork := t.Clone()
	fork.addMessage(tagChallenge, nil)
	challenge := squeezeScalars(fork.h, 1)[0]

	b := challenge.Bytes()
	t.addMessage(tagChallenge, b[:])

	return challenge
}
