// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"errors"
	"math/bits"
	"sync"

	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	zk "github.com/btcsuite/wabisabi/crypto/zeroknowledge"
)

// RangeProofWidth returns the number of bits needed to represent values up
// to maxAmount.
func RangeProofWidth(maxAmount int64) int {
	return bits.Len64(uint64(maxAmount))
}

// serial is the map key of a credential serial number.
type serial [groups.ElementSize]byte

func serialKey(s groups.GroupElement) serial {
	var k serial
	copy(k[:], s.Bytes())
	return k
}

// CredentialIssuer verifies credential requests and issues new
// credentials. It keeps the set of seen serial numbers, the balance of
// value issued and not yet presented, and the ledger of accepted requests.
type CredentialIssuer struct {
	sk              *CredentialIssuerSecretKey
	params          CredentialIssuerParameters
	rnd             randomness.WasabiRandom
	maxAmount       int64
	rangeProofWidth int

	mu      sync.Mutex
	serials map[serial]struct{}
	balance int64
	ledger  []StateTransition
}

// NewCredentialIssuer returns an issuer for values in [0, maxAmount].
func NewCredentialIssuer(sk *CredentialIssuerSecretKey, maxAmount int64,
	rnd randomness.WasabiRandom) *CredentialIssuer {

	return &CredentialIssuer{
		sk:              sk,
		params:          sk.ComputeCredentialIssuerParameters(),
		rnd:             rnd,
		maxAmount:       maxAmount,
		rangeProofWidth: RangeProofWidth(maxAmount),
		serials:         make(map[serial]struct{}),
	}
}

// Parameters returns the public parameters of the issuer.
func (ci *CredentialIssuer) Parameters() CredentialIssuerParameters {
	return ci.params
}

// MaxAmount returns the largest value a credential may carry.
func (ci *CredentialIssuer) MaxAmount() int64 {
	return ci.maxAmount
}

// RangeProofWidth returns the bit width of requested credential values.
func (ci *CredentialIssuer) RangeProofWidth() int {
	return ci.rangeProofWidth
}

// Balance returns the sum of the deltas of all accepted requests.
func (ci *CredentialIssuer) Balance() int64 {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	return ci.balance
}

// Ledger returns a copy of the accepted state transitions in order.
func (ci *CredentialIssuer) Ledger() []StateTransition {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	ledger := make([]StateTransition, len(ci.ledger))
	copy(ledger, ci.ledger)

	return ledger
}

// checkSerials must be called with the mutex held.
func (ci *CredentialIssuer) checkSerials(req *CredentialsRequest) error {
	seen := make(map[serial]struct{}, len(req.Presented))
	for _, s := range req.SerialNumbers() {
		k := serialKey(s)
		if _, ok := seen[k]; ok {
			return cryptoError(ErrSerialNumberDuplicated,
				"serial number %v presented twice", s)
		}
		seen[k] = struct{}{}

		if _, ok := ci.serials[k]; ok {
			return cryptoError(ErrSerialNumberAlreadyUsed,
				"serial number %v already used", s)
		}
	}

	return nil
}

// checkBalance must be called with the mutex held.
func (ci *CredentialIssuer) checkBalance(delta int64) error {
	if ci.balance+delta < 0 {
		return cryptoError(ErrNegativeBalance, "balance %d, delta %d",
			ci.balance, delta)
	}

	return nil
}

// validateShape checks credential counts and bit commitment widths.
func (ci *CredentialIssuer) validateShape(req *CredentialsRequest) error {
	if len(req.Requested) != NumberOfCredentials {
		return cryptoError(ErrInvalidNumberOfRequestedCredentials,
			"expected %d requested credentials, got %d",
			NumberOfCredentials, len(req.Requested))
	}

	if len(req.Presented) == 0 && req.Delta != 0 {
		return cryptoError(ErrNullCredentialRequestNotAllowed,
			"request without presented credentials has delta %d",
			req.Delta)
	}

	isNull := req.IsNullRequest()
	if !isNull && len(req.Presented) != NumberOfCredentials {
		return cryptoError(ErrInvalidNumberOfPresentedCredentials,
			"expected %d presented credentials, got %d",
			NumberOfCredentials, len(req.Presented))
	}

	width := ci.rangeProofWidth
	if isNull {
		width = 0
	}
	for i := range req.Requested {
		if n := len(req.Requested[i].BitCommitments); n != width {
			return cryptoError(ErrInvalidBitCommitment,
				"expected %d bit commitments, got %d", width, n)
		}
	}

	return nil
}

// requestStatements rebuilds the statements a client proved for req, in
// the order they were proven.
func (ci *CredentialIssuer) requestStatements(
	req *CredentialsRequest) ([]*zk.Statement, error) {

	statements := make([]*zk.Statement, 0,
		len(req.Presented)+len(req.Requested)+1)

	for i := range req.Presented {
		p := &req.Presented[i]
		s, err := showCredentialStatement(p, p.ComputeZ(ci.sk), ci.params.I)
		if err != nil {
			return nil, err
		}
		statements = append(statements, s)
	}

	for i := range req.Requested {
		var (
			s   *zk.Statement
			err error
		)
		r := &req.Requested[i]
		if req.IsNullRequest() {
			s, err = zeroProofStatement(r.Ma)
		} else {
			s, err = rangeProofStatement(r.Ma, r.BitCommitments)
		}
		if err != nil {
			return nil, err
		}
		statements = append(statements, s)
	}

	if !req.IsNullRequest() {
		b := balanceCommitment(req.Delta, req.Presented, req.Requested)
		s, err := balanceProofStatement(b)
		if err != nil {
			return nil, err
		}
		statements = append(statements, s)
	}

	return statements, nil
}

// HandleRequest verifies req and, if it is valid, marks its serial
// numbers used, applies its delta to the balance and issues the requested
// credentials. Either all of this happens or none of it does.
func (ci *CredentialIssuer) HandleRequest(
	req *CredentialsRequest) (*CredentialsResponse, error) {

	prepared, err := ci.PrepareResponse(req)
	if err != nil {
		return nil, err
	}

	return prepared.Commit()
}

// PreparedResponse holds the credentials for a verified request. They are
// only handed out once the request is committed.
type PreparedResponse struct {
	issuer    *CredentialIssuer
	req       *CredentialsRequest
	resp      *CredentialsResponse
	committed bool
}

// PrepareResponse verifies req and creates the requested credentials
// without changing the state of the issuer. Verification does not hold
// the issuer's lock, so requests are verified concurrently.
func (ci *CredentialIssuer) PrepareResponse(
	req *CredentialsRequest) (*PreparedResponse, error) {

	if err := ci.validateShape(req); err != nil {
		return nil, err
	}

	// Cheap checks first so replays do not cost a proof verification.
	ci.mu.Lock()
	err := ci.checkSerials(req)
	if err == nil {
		err = ci.checkBalance(req.Delta)
	}
	ci.mu.Unlock()
	if err != nil {
		return nil, err
	}

	statements, err := ci.requestStatements(req)
	if err != nil {
		return nil, cryptoError(ErrCoordinatorReceivedInvalidProofs,
			"malformed request: %v", err)
	}

	transcript := zk.NewTranscript(
		transcriptLabel(ci.rangeProofWidth, req.IsNullRequest()),
	)
	if !zk.Verify(transcript, statements, req.Proofs) {
		return nil, cryptoError(ErrCoordinatorReceivedInvalidProofs,
			"request proofs do not verify")
	}

	resp, err := ci.issue(transcript, req.Requested)
	if err != nil {
		return nil, err
	}

	return &PreparedResponse{issuer: ci, req: req, resp: resp}, nil
}

// Commit marks the serial numbers of the request used, applies its delta
// and returns the credentials. It fails if a concurrent request used the
// same serial numbers or the balance would become negative since the
// request was prepared.
func (p *PreparedResponse) Commit() (*CredentialsResponse, error) {
	ci := p.issuer

	ci.mu.Lock()
	defer ci.mu.Unlock()

	if p.committed {
		return nil, errors.New("response already committed")
	}
	if err := ci.checkSerials(p.req); err != nil {
		return nil, err
	}
	if err := ci.checkBalance(p.req.Delta); err != nil {
		return nil, err
	}

	for _, s := range p.req.SerialNumbers() {
		ci.serials[serialKey(s)] = struct{}{}
	}
	ci.balance += p.req.Delta
	ci.ledger = append(ci.ledger, StateTransition{
		Request:  p.req,
		Response: p.resp,
	})
	p.committed = true

	log.Debugf("Issued %d credentials (delta %d, balance %d)",
		len(p.resp.IssuedCredentials), p.req.Delta, ci.balance)

	return p.resp, nil
}

// issue creates MACs for the requested commitments and proves they were
// made with the issuer's key, continuing the request's transcript.
func (ci *CredentialIssuer) issue(transcript *zk.Transcript,
	requested []IssuanceRequest) (*CredentialsResponse, error) {

	macs := make([]MAC, len(requested))
	knowledges := make([]*zk.Knowledge, len(requested))
	for i := range requested {
		t := nonZeroScalar(ci.rnd)
		macs[i] = ComputeMAC(ci.sk, requested[i].Ma, &t)

		k, err := issuerParametersKnowledge(ci.sk, ci.params, macs[i],
			requested[i].Ma)
		if err != nil {
			return nil, err
		}
		knowledges[i] = k
	}

	proofs, err := zk.Prove(transcript, knowledges, ci.rnd)
	if err != nil {
		return nil, err
	}

	return &CredentialsResponse{IssuedCredentials: macs, Proofs: proofs}, nil
}

// UpdateBalance applies delta to the balance outside of a credential
// request, for example when a registration is undone.
func (ci *CredentialIssuer) UpdateBalance(delta int64) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if err := ci.checkBalance(delta); err != nil {
		return err
	}
	ci.balance += delta

	return nil
}
