// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	zk "github.com/btcsuite/wabisabi/crypto/zeroknowledge"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Client creates credential requests for one issuer and turns the issuer's
// responses into credentials.
type Client struct {
	params          CredentialIssuerParameters
	rnd             randomness.WasabiRandom
	maxAmount       int64
	rangeProofWidth int
}

// NewClient returns a client for an issuer publishing params and issuing
// values up to maxAmount.
func NewClient(params CredentialIssuerParameters, maxAmount int64,
	rnd randomness.WasabiRandom) *Client {

	return &Client{
		params:          params,
		rnd:             rnd,
		maxAmount:       maxAmount,
		rangeProofWidth: RangeProofWidth(maxAmount),
	}
}

// MaxAmount returns the largest value a credential may carry.
func (c *Client) MaxAmount() int64 {
	return c.maxAmount
}

// ResponseValidation holds what the client needs to check a response and
// build credentials from it.
type ResponseValidation struct {
	transcript *zk.Transcript
	requested  []IssuanceRequest
	values     []int64
	randomness []secp256k1.ModNScalar
}

// CreateRequestForZeroAmount creates a null request for
// NumberOfCredentials zero value credentials.
func (c *Client) CreateRequestForZeroAmount() (*CredentialsRequest,
	*ResponseValidation, error) {

	requested := make([]IssuanceRequest, NumberOfCredentials)
	knowledges := make([]*zk.Knowledge, NumberOfCredentials)
	validation := &ResponseValidation{
		requested:  requested,
		values:     make([]int64, NumberOfCredentials),
		randomness: make([]secp256k1.ModNScalar, NumberOfCredentials),
	}

	for i := range requested {
		r := nonZeroScalar(c.rnd)
		ma := groups.Gh.Mul(&r)

		k, err := zeroProofKnowledge(ma, &r)
		if err != nil {
			return nil, nil, err
		}

		requested[i] = IssuanceRequest{Ma: ma}
		knowledges[i] = k
		validation.randomness[i] = r
	}

	transcript := zk.NewTranscript(transcriptLabel(c.rangeProofWidth, true))
	proofs, err := zk.Prove(transcript, knowledges, c.rnd)
	if err != nil {
		return nil, nil, err
	}
	validation.transcript = transcript

	return &CredentialsRequest{
		Requested: requested,
		Proofs:    proofs,
	}, validation, nil
}

// CreateRequest presents credentials and requests credentials for amounts.
// Missing amounts are requested as zero value credentials.
func (c *Client) CreateRequest(amounts []int64,
	presented []*Credential) (*CredentialsRequest, *ResponseValidation,
	error) {

	if len(amounts) > NumberOfCredentials {
		return nil, nil, cryptoError(
			ErrInvalidNumberOfRequestedCredentials,
			"cannot request %d credentials", len(amounts))
	}
	if len(presented) != NumberOfCredentials {
		return nil, nil, cryptoError(
			ErrInvalidNumberOfPresentedCredentials,
			"must present %d credentials, got %d",
			NumberOfCredentials, len(presented))
	}

	values := make([]int64, NumberOfCredentials)
	copy(values, amounts)

	var delta int64
	for _, v := range values {
		if v < 0 || v > c.maxAmount {
			return nil, nil, cryptoError(ErrValueOutOfRange,
				"value %d not in [0, %d]", v, c.maxAmount)
		}
		delta += v
	}

	var (
		knowledges  []*zk.Knowledge
		zSum, rSum  secp256k1.ModNScalar
		seen        = make(map[serial]struct{})
		credentials = make([]CredentialPresentation, len(presented))
	)
	for i, cred := range presented {
		k := serialKey(cred.SerialNumber())
		if _, ok := seen[k]; ok {
			return nil, nil, cryptoError(ErrSerialNumberDuplicated,
				"credential presented twice")
		}
		seen[k] = struct{}{}

		z := nonZeroScalar(c.rnd)
		credentials[i] = cred.Present(&z)

		knowledge, err := showCredentialKnowledge(&credentials[i], &z,
			cred, c.params)
		if err != nil {
			return nil, nil, err
		}
		knowledges = append(knowledges, knowledge)

		delta -= cred.Value
		zSum.Add(&z)
		rSum.Add(&cred.Randomness)
	}

	requested := make([]IssuanceRequest, NumberOfCredentials)
	randomnessOut := make([]secp256k1.ModNScalar, NumberOfCredentials)
	for i, v := range values {
		r := nonZeroScalar(c.rnd)
		ma := pedersenCommitment(v, &r)

		bitCommitments, witness := c.commitBits(v)
		knowledge, err := rangeProofKnowledge(ma, bitCommitments, &r,
			witness)
		if err != nil {
			return nil, nil, err
		}
		knowledges = append(knowledges, knowledge)

		requested[i] = IssuanceRequest{
			Ma:             ma,
			BitCommitments: bitCommitments,
		}
		randomnessOut[i] = r
		rSum = groups.Sub(&rSum, &r)
	}

	b := balanceCommitment(delta, credentials, requested)
	knowledge, err := balanceProofKnowledge(b, &zSum, &rSum)
	if err != nil {
		return nil, nil, err
	}
	knowledges = append(knowledges, knowledge)

	transcript := zk.NewTranscript(transcriptLabel(c.rangeProofWidth, false))
	proofs, err := zk.Prove(transcript, knowledges, c.rnd)
	if err != nil {
		return nil, nil, err
	}

	req := &CredentialsRequest{
		Delta:     delta,
		Presented: credentials,
		Requested: requested,
		Proofs:    proofs,
	}
	validation := &ResponseValidation{
		transcript: transcript,
		requested:  requested,
		values:     values,
		randomness: randomnessOut,
	}

	return req, validation, nil
}

// commitBits commits to each bit of v.
func (c *Client) commitBits(v int64) (groups.GroupElementVector,
	*bitCommitmentWitness) {

	n := c.rangeProofWidth
	commitments := make(groups.GroupElementVector, n)
	w := &bitCommitmentWitness{
		bits:       make(groups.ScalarVector, n),
		randomness: make(groups.ScalarVector, n),
	}
	for i := 0; i < n; i++ {
		bit := int64((uint64(v) >> uint(i)) & 1)
		r := nonZeroScalar(c.rnd)

		w.bits[i] = groups.ScalarFromInt64(bit)
		w.randomness[i] = r
		commitments[i] = pedersenCommitment(bit, &r)
	}

	return commitments, w
}

// HandleResponse verifies the issuance proofs of resp and returns the new
// credentials.
func (c *Client) HandleResponse(resp *CredentialsResponse,
	v *ResponseValidation) ([]*Credential, error) {

	if len(resp.IssuedCredentials) != len(v.requested) {
		return nil, cryptoError(ErrIssuedCredentialNumberMismatch,
			"requested %d credentials, received %d", len(v.requested),
			len(resp.IssuedCredentials))
	}

	statements := make([]*zk.Statement, len(v.requested))
	for i := range v.requested {
		s, err := issuerParametersStatement(c.params,
			resp.IssuedCredentials[i], v.requested[i].Ma)
		if err != nil {
			return nil, cryptoError(ErrClientReceivedInvalidProofs,
				"malformed response: %v", err)
		}
		statements[i] = s
	}

	if !zk.Verify(v.transcript.Clone(), statements, resp.Proofs) {
		return nil, cryptoError(ErrClientReceivedInvalidProofs,
			"issuance proofs do not verify")
	}

	credentials := make([]*Credential, len(v.requested))
	for i := range v.requested {
		credentials[i] = &Credential{
			Value:      v.values[i],
			Randomness: v.randomness[i],
			Mac:        resp.IssuedCredentials[i],
		}
	}

	return credentials, nil
}
