// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

func TestDualCasing(t *testing.T) {
	t.Parallel()

	aliceID := uuid.New()
	bodies := []string{
		`{"roundId":"` + testRoundID.String() + `","aliceId":"` +
			aliceID.String() + `"}`,
		`{"RoundId":"` + testRoundID.String() + `","AliceId":"` +
			aliceID.String() + `"}`,
	}
	for _, body := range bodies {
		var req InputsRemovalRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		require.Equal(t, testRoundID, req.RoundID)
		require.Equal(t, aliceID, req.AliceID)
	}

	var req ReadyToSignRequestRequest
	err := json.Unmarshal([]byte(`{"aliceId":"`+aliceID.String()+`"}`),
		&req)
	require.Error(t, err)
}

func TestProtocolErrorJSON(t *testing.T) {
	t.Parallel()

	banned := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	errs := []*ProtocolError{
		NewProtocolError(ErrAliceNotFound, "alice gone"),
		WrongPhaseError(testRoundID, PhaseOutputRegistration),
		{
			ErrorCode:     ErrInputBanned,
			Description:   "banned",
			ExceptionData: InputBannedExceptionData{BannedUntil: banned},
		},
	}
	for _, e := range errs {
		body, err := json.Marshal(e)
		require.NoError(t, err)

		var decoded ProtocolError
		require.NoError(t, json.Unmarshal(body, &decoded))
		require.Equal(t, e.ErrorCode, decoded.ErrorCode)
		require.Equal(t, e.Description, decoded.Description)
		require.Equal(t, e.ExceptionData, decoded.ExceptionData)
	}

	var decoded ProtocolError
	err := json.Unmarshal([]byte(`{"Type":"ProtocolError",`+
		`"ErrorCode":"WrongPhase","Description":"x","ExceptionData":`+
		`{"Type":"WrongPhaseExceptionData","CurrentPhase":"Ended"}}`),
		&decoded)
	require.NoError(t, err)
	require.Equal(t, WrongPhaseExceptionData{CurrentPhase: PhaseEnded},
		decoded.ExceptionData)
}

func TestCredentialRequestJSON(t *testing.T) {
	t.Parallel()

	rnd := randomness.NewInsecureRandomFromSeed(7)
	sk := wabisabi.NewCredentialIssuerSecretKey(rnd)
	issuer := wabisabi.NewCredentialIssuer(sk, 1000, rnd)
	client := wabisabi.NewClient(issuer.Parameters(), 1000, rnd)

	zeroReq, validation, err := client.CreateRequestForZeroAmount()
	require.NoError(t, err)

	key := newP2WPKHKey(t)
	req := &InputRegistrationRequest{
		RoundID: testRoundID,
		Input:   key.coin(10_000, 3).Outpoint,
		OwnershipProof: key.proof(t, CommitmentData("c",
			testRoundID)),
		ZeroAmountCredentialRequests: zeroReq,
		ZeroVsizeCredentialRequests:  zeroReq,
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded InputRegistrationRequest
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, req.RoundID, decoded.RoundID)
	require.Equal(t, req.Input, decoded.Input)
	require.Equal(t, req.OwnershipProof, decoded.OwnershipProof)

	// The decoded request is still accepted by the issuer and its response
	// survives the wire as well.
	resp, err := issuer.HandleRequest(decoded.ZeroAmountCredentialRequests)
	require.NoError(t, err)

	body, err = json.Marshal(&InputRegistrationResponse{
		AliceID:           uuid.New(),
		AmountCredentials: resp,
		VsizeCredentials:  resp,
	})
	require.NoError(t, err)

	var decodedResp InputRegistrationResponse
	require.NoError(t, json.Unmarshal(body, &decodedResp))
	creds, err := client.HandleResponse(decodedResp.AmountCredentials,
		validation)
	require.NoError(t, err)
	require.Len(t, creds, wabisabi.NumberOfCredentials)
}

func TestRoundStateDelta(t *testing.T) {
	t.Parallel()

	rnd := randomness.NewInsecureRandomFromSeed(1)
	params := testParams()
	commitment := CommitmentData(params.CoordinationIdentifier, testRoundID)
	amountKey := wabisabi.NewCredentialIssuerSecretKey(rnd)
	vsizeKey := wabisabi.NewCredentialIssuerSecretKey(rnd)

	alice := newP2WPKHKey(t)
	construction := NewConstructionState(params)
	construction, err := construction.AddInput(alice.coin(100_000, 0),
		alice.proof(t, commitment), commitment)
	require.NoError(t, err)

	server := &RoundState{
		ID:                               testRoundID,
		BlameOf:                          fn.Some(chainhash.HashH([]byte("blamed"))),
		AmountCredentialIssuerParameters: amountKey.ComputeCredentialIssuerParameters(),
		VsizeCredentialIssuerParameters:  vsizeKey.ComputeCredentialIssuerParameters(),
		Phase:                            PhaseInputRegistration,
		InputRegistrationStart:           time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		InputRegistrationTimeout:         params.StandardInputRegistrationTimeout,
		CoinjoinState:                    construction,
	}

	// The first poll carries every event and decodes to a complete state.
	body, err := json.Marshal(&RoundStateResponse{
		RoundStates: []*RoundState{server},
	})
	require.NoError(t, err)

	var first RoundStateResponse
	require.NoError(t, json.Unmarshal(body, &first))
	require.Len(t, first.RoundStates, 1)
	known := first.RoundStates[0]
	require.NotNil(t, known.CoinjoinState)
	require.True(t, known.IsBlame())
	require.True(t, server.AmountCredentialIssuerParameters.Cw.Equal(
		known.AmountCredentialIssuerParameters.Cw))
	require.Equal(t, server.InputRegistrationEnd(),
		known.InputRegistrationEnd().UTC())
	require.Equal(t, params.CoordinationIdentifier,
		known.Parameters().CoordinationIdentifier)
	require.Equal(t, RoundStateCheckpoint{RoundID: testRoundID, StateID: 2},
		known.Checkpoint())

	// The coordinator moves on to signing.
	construction, err = construction.AddOutput(wire.TxOut{
		Value: 90_000, PkScript: newTaprootKey(t).pkScript,
	})
	require.NoError(t, err)
	signing := construction.Finalize()
	signing, err = signing.AddWitness(0, alice.p2wpkhWitness(t, signing, 0))
	require.NoError(t, err)
	server.Phase = PhaseTransactionSigning
	server.CoinjoinState = signing

	req := RoundStateRequest{
		RoundCheckpoints: []RoundStateCheckpoint{known.Checkpoint()},
	}
	delta := server.WithCheckpoint(req.Checkpoint(testRoundID))
	require.Equal(t, 2, delta.Delta.Skip)
	require.Len(t, delta.Delta.Events, 1)

	body, err = json.Marshal(delta)
	require.NoError(t, err)

	var partial RoundState
	require.NoError(t, json.Unmarshal(body, &partial))
	require.Nil(t, partial.CoinjoinState)

	_, err = partial.Merge(nil)
	require.ErrorIs(t, err, ErrStaleCheckpoint)

	merged, err := partial.Merge(known)
	require.NoError(t, err)
	mergedSigning, ok := merged.Signing()
	require.True(t, ok)
	require.True(t, mergedSigning.IsFullySigned())
	require.Equal(t, signing.CreateTransaction().TxHash(),
		mergedSigning.CreateTransaction().TxHash())
	require.Equal(t, signing.CreateTransaction().WitnessHash(),
		mergedSigning.CreateTransaction().WitnessHash())
}
