// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/google/uuid"
)

// InputRegistrationRequest registers a coin as an input of a round.
type InputRegistrationRequest struct {
	RoundID                      chainhash.Hash
	Input                        wire.OutPoint
	OwnershipProof               *OwnershipProof
	ZeroAmountCredentialRequests *wabisabi.CredentialsRequest
	ZeroVsizeCredentialRequests  *wabisabi.CredentialsRequest
}

// InputRegistrationResponse identifies the registered Alice and carries
// her zero credentials.
type InputRegistrationResponse struct {
	AliceID           uuid.UUID
	AmountCredentials *wabisabi.CredentialsResponse
	VsizeCredentials  *wabisabi.CredentialsResponse
}

// ConnectionConfirmationRequest confirms that an Alice is still
// participating. The real requests are only answered once the round is in
// connection confirmation.
type ConnectionConfirmationRequest struct {
	RoundID                      chainhash.Hash
	AliceID                      uuid.UUID
	ZeroAmountCredentialRequests *wabisabi.CredentialsRequest
	RealAmountCredentialRequests *wabisabi.CredentialsRequest
	ZeroVsizeCredentialRequests  *wabisabi.CredentialsRequest
	RealVsizeCredentialRequests  *wabisabi.CredentialsRequest
}

// ConnectionConfirmationResponse always carries zero credentials. The real
// credentials are set only when the connection was confirmed.
type ConnectionConfirmationResponse struct {
	ZeroAmountCredentials *wabisabi.CredentialsResponse
	ZeroVsizeCredentials  *wabisabi.CredentialsResponse
	RealAmountCredentials *wabisabi.CredentialsResponse
	RealVsizeCredentials  *wabisabi.CredentialsResponse
}

// IsConfirmed reports whether the response carries real credentials.
func (r *ConnectionConfirmationResponse) IsConfirmed() bool {
	return r.RealAmountCredentials != nil && r.RealVsizeCredentials != nil
}

// InputsRemovalRequest unregisters an Alice during input registration.
type InputsRemovalRequest struct {
	RoundID chainhash.Hash
	AliceID uuid.UUID
}

// OutputRegistrationRequest registers an output paid by the presented
// credentials.
type OutputRegistrationRequest struct {
	RoundID                  chainhash.Hash
	Script                   []byte
	AmountCredentialRequests *wabisabi.CredentialsRequest
	VsizeCredentialRequests  *wabisabi.CredentialsRequest
}

// ReissueCredentialRequest exchanges credentials for others of the same
// total value.
type ReissueCredentialRequest struct {
	RoundID                      chainhash.Hash
	RealAmountCredentialRequests *wabisabi.CredentialsRequest
	RealVsizeCredentialRequests  *wabisabi.CredentialsRequest
	ZeroAmountCredentialRequests *wabisabi.CredentialsRequest
	ZeroVsizeCredentialRequests  *wabisabi.CredentialsRequest
}

// ReissueCredentialResponse carries the reissued credentials.
type ReissueCredentialResponse struct {
	RealAmountCredentials *wabisabi.CredentialsResponse
	RealVsizeCredentials  *wabisabi.CredentialsResponse
	ZeroAmountCredentials *wabisabi.CredentialsResponse
	ZeroVsizeCredentials  *wabisabi.CredentialsResponse
}

// ReadyToSignRequestRequest signals that an Alice has registered all her
// outputs.
type ReadyToSignRequestRequest struct {
	RoundID chainhash.Hash
	AliceID uuid.UUID
}

// TransactionSignaturesRequest provides the witness of one input.
type TransactionSignaturesRequest struct {
	RoundID    chainhash.Hash
	InputIndex int
	Witness    wire.TxWitness
}

// RoundStateRequest asks for the state of the active rounds. Rounds with a
// checkpoint are answered with a delta.
type RoundStateRequest struct {
	RoundCheckpoints []RoundStateCheckpoint
}

// Checkpoint returns the number of events known for id.
func (r *RoundStateRequest) Checkpoint(id chainhash.Hash) int {
	for _, c := range r.RoundCheckpoints {
		if c.RoundID == id {
			return c.StateID
		}
	}

	return 0
}

// RoundStateResponse carries the state of the active rounds.
type RoundStateResponse struct {
	RoundStates []*RoundState
}
