// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ownershipTag domain separates ownership proof signatures.
var ownershipTag = []byte("WabiSabi/ownership")

// ErrInvalidOwnershipProof is returned when an ownership proof cannot be
// parsed.
var ErrInvalidOwnershipProof = errors.New("invalid ownership proof")

// OwnershipProof proves control of the key behind an output script and
// commits to the round it is used in.
type OwnershipProof struct {
	// PubKey is the 33 byte compressed key for P2WPKH outputs and the 32
	// byte x-only output key for taproot outputs.
	PubKey []byte

	// Signature is a BIP340 signature.
	Signature []byte
}

// CommitmentData returns the data ownership proofs for a round commit to.
func CommitmentData(coordinationIdentifier string,
	roundID chainhash.Hash) []byte {

	data := make([]byte, 0, len(coordinationIdentifier)+chainhash.HashSize)
	data = append(data, coordinationIdentifier...)
	data = append(data, roundID[:]...)

	return data
}

// ownershipSigHash returns the message an ownership proof signs.
func ownershipSigHash(commitmentData, pkScript []byte) *chainhash.Hash {
	return chainhash.TaggedHash(ownershipTag, commitmentData, pkScript)
}

// NewOwnershipProof signs an ownership proof for pkScript with key. For
// taproot outputs key must be the tweaked output key.
func NewOwnershipProof(key *btcec.PrivateKey, pkScript,
	commitmentData []byte) (*OwnershipProof, error) {

	t, ok := ScriptTypeOf(pkScript)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported script",
			ErrInvalidOwnershipProof)
	}

	var pubKey []byte
	switch t {
	case ScriptTypeP2WPKH:
		pubKey = key.PubKey().SerializeCompressed()

	case ScriptTypeTaproot:
		pubKey = schnorr.SerializePubKey(key.PubKey())
	}

	sig, err := schnorr.Sign(key, ownershipSigHash(commitmentData,
		pkScript)[:])
	if err != nil {
		return nil, err
	}

	proof := &OwnershipProof{PubKey: pubKey, Signature: sig.Serialize()}
	if !proof.Verify(pkScript, commitmentData) {
		return nil, fmt.Errorf("%w: key does not control script",
			ErrInvalidOwnershipProof)
	}

	return proof, nil
}

// Verify reports whether the proof is valid for pkScript and
// commitmentData.
func (p *OwnershipProof) Verify(pkScript, commitmentData []byte) bool {
	t, ok := ScriptTypeOf(pkScript)
	if !ok {
		return false
	}

	var pubKey *btcec.PublicKey
	switch t {
	case ScriptTypeP2WPKH:
		key, err := btcec.ParsePubKey(p.PubKey)
		if err != nil || len(p.PubKey) != btcec.PubKeyBytesLenCompressed {
			return false
		}
		if !bytes.Equal(btcutil.Hash160(p.PubKey), pkScript[2:]) {
			return false
		}
		pubKey = key

	case ScriptTypeTaproot:
		if !bytes.Equal(p.PubKey, pkScript[2:]) {
			return false
		}
		key, err := schnorr.ParsePubKey(p.PubKey)
		if err != nil {
			return false
		}
		pubKey = key
	}

	sig, err := schnorr.ParseSignature(p.Signature)
	if err != nil {
		return false
	}

	return sig.Verify(ownershipSigHash(commitmentData, pkScript)[:], pubKey)
}

// Bytes serializes the proof as a length prefixed key followed by the
// signature.
func (p *OwnershipProof) Bytes() []byte {
	b := make([]byte, 0, 1+len(p.PubKey)+len(p.Signature))
	b = append(b, byte(len(p.PubKey)))
	b = append(b, p.PubKey...)
	b = append(b, p.Signature...)

	return b
}

// ParseOwnershipProof parses a proof serialized with Bytes.
func ParseOwnershipProof(b []byte) (*OwnershipProof, error) {
	if len(b) < 1 {
		return nil, ErrInvalidOwnershipProof
	}

	n := int(b[0])
	if len(b) != 1+n+schnorr.SignatureSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidOwnershipProof,
			len(b))
	}

	return &OwnershipProof{
		PubKey:    append([]byte(nil), b[1:1+n]...),
		Signature: append([]byte(nil), b[1+n:]...),
	}, nil
}
