// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"github.com/btcsuite/wabisabi/crypto/groups"
	zk "github.com/btcsuite/wabisabi/crypto/zeroknowledge"
)

// NumberOfCredentials is the number of credentials requested, and unless
// the request is a null request presented, in every registration message.
const NumberOfCredentials = 2

// IssuanceRequest asks the issuer for a MAC on the attribute commitment Ma.
// BitCommitments are empty for null requests.
type IssuanceRequest struct {
	Ma             groups.GroupElement
	BitCommitments groups.GroupElementVector
}

// CredentialsRequest presents credentials and requests new ones. Delta is
// the requested value minus the presented value.
type CredentialsRequest struct {
	Delta     int64
	Presented []CredentialPresentation
	Requested []IssuanceRequest
	Proofs    []*zk.Proof
}

// IsNullRequest reports whether the request only asks for zero value
// credentials without presenting any.
func (r *CredentialsRequest) IsNullRequest() bool {
	return r.Delta == 0 && len(r.Presented) == 0
}

// SerialNumbers returns the serial numbers of the presented credentials.
func (r *CredentialsRequest) SerialNumbers() []groups.GroupElement {
	serials := make([]groups.GroupElement, len(r.Presented))
	for i := range r.Presented {
		serials[i] = r.Presented[i].S
	}

	return serials
}

// CredentialsResponse carries the issued MACs and the proofs that they were
// issued with the published key.
type CredentialsResponse struct {
	IssuedCredentials []MAC
	Proofs            []*zk.Proof
}

// StateTransition is one accepted request and the response it produced.
type StateTransition struct {
	Request  *CredentialsRequest
	Response *CredentialsResponse
}
