// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var testRoundID = chainhash.HashH([]byte("round"))

func TestOwnershipProof(t *testing.T) {
	t.Parallel()

	commitment := CommitmentData("coordinator", testRoundID)
	other := CommitmentData("coordinator", chainhash.HashH([]byte("x")))

	for _, key := range []*testKey{newP2WPKHKey(t), newTaprootKey(t)} {
		proof := key.proof(t, commitment)
		require.True(t, proof.Verify(key.pkScript, commitment))
		require.False(t, proof.Verify(key.pkScript, other))

		// A proof does not transfer to another script.
		stranger := newP2WPKHKey(t)
		require.False(t, proof.Verify(stranger.pkScript, commitment))

		parsed, err := ParseOwnershipProof(proof.Bytes())
		require.NoError(t, err)
		require.Equal(t, proof, parsed)
		require.True(t, parsed.Verify(key.pkScript, commitment))
	}

	_, err := ParseOwnershipProof([]byte{33, 1, 2})
	require.ErrorIs(t, err, ErrInvalidOwnershipProof)
}

func TestConstructionStateAddInput(t *testing.T) {
	t.Parallel()

	params := testParams()
	commitment := CommitmentData(params.CoordinationIdentifier, testRoundID)
	key := newP2WPKHKey(t)

	state := NewConstructionState(params)
	state, err := state.AddInput(key.coin(100_000, 0),
		key.proof(t, commitment), commitment)
	require.NoError(t, err)
	require.Len(t, state.Inputs(), 1)
	require.Len(t, state.Events(), 2)

	tests := []struct {
		name  string
		coin  Coin
		proof *OwnershipProof
		code  ErrorCode
	}{{
		name:  "duplicate input",
		coin:  key.coin(100_000, 0),
		proof: key.proof(t, commitment),
		code:  ErrNonUniqueInputs,
	}, {
		name:  "not enough funds",
		coin:  key.coin(4_999, 1),
		proof: key.proof(t, commitment),
		code:  ErrNotEnoughFunds,
	}, {
		name:  "too much funds",
		coin:  key.coin(btcutil.SatoshiPerBitcoin+1, 1),
		proof: key.proof(t, commitment),
		code:  ErrTooMuchFunds,
	}, {
		name: "script not allowed",
		coin: Coin{
			TxOut: wire.TxOut{Value: 100_000, PkScript: []byte{0x51}},
		},
		code: ErrScriptNotAllowed,
	}, {
		name:  "wrong ownership proof",
		coin:  key.coin(100_000, 2),
		proof: key.proof(t, CommitmentData("other", testRoundID)),
		code:  ErrWrongOwnershipProof,
	}}
	for _, test := range tests {
		_, err := state.AddInput(test.coin, test.proof, commitment)
		require.Truef(t, IsErrorCode(err, test.code), "%s: %v",
			test.name, err)
	}

	// The failed additions left the state untouched.
	require.Len(t, state.Inputs(), 1)

	for i := uint32(1); i < uint32(params.MaxInputCountByRound); i++ {
		state, err = state.AddInput(key.coin(100_000, i),
			key.proof(t, commitment), commitment)
		require.NoError(t, err)
	}
	_, err = state.AddInput(key.coin(100_000, 9), key.proof(t, commitment),
		commitment)
	require.True(t, IsErrorCode(err, ErrTooManyInputs))
}

func TestConstructionStateAddOutput(t *testing.T) {
	t.Parallel()

	params := testParams()
	params.AllowedOutputAmounts.Min = 1
	key := newP2WPKHKey(t)

	state := NewConstructionState(params)
	_, err := state.AddOutput(wire.TxOut{Value: 100, PkScript: key.pkScript})
	require.True(t, IsErrorCode(err, ErrNonStandardOutput))

	_, err = state.AddOutput(wire.TxOut{Value: 100_000, PkScript: []byte{0x51}})
	require.True(t, IsErrorCode(err, ErrScriptNotAllowed))

	state, err = state.AddOutput(wire.TxOut{
		Value: 100_000, PkScript: key.pkScript,
	})
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(-100_000), state.Balance())
	require.EqualValues(t, SharedOverhead+ScriptTypeP2WPKH.OutputVsize(),
		state.EstimatedVsize())
}

func TestSigningState(t *testing.T) {
	t.Parallel()

	params := testParams()
	commitment := CommitmentData(params.CoordinationIdentifier, testRoundID)
	small, large := newP2WPKHKey(t), newP2WPKHKey(t)
	dest1, dest2 := newP2WPKHKey(t), newTaprootKey(t)

	state := NewConstructionState(params)
	var err error
	state, err = state.AddInput(small.coin(50_000, 0),
		small.proof(t, commitment), commitment)
	require.NoError(t, err)
	state, err = state.AddInput(large.coin(150_000, 0),
		large.proof(t, commitment), commitment)
	require.NoError(t, err)

	for _, out := range []wire.TxOut{
		{Value: 60_000, PkScript: dest1.pkScript},
		{Value: 70_000, PkScript: dest2.pkScript},
		{Value: 60_000, PkScript: dest1.pkScript},
	} {
		state, err = state.AddOutput(out)
		require.NoError(t, err)
	}
	require.Equal(t, btcutil.Amount(10_000), state.Balance())

	signing := state.Finalize()

	// Inputs are ordered by amount, outputs are merged and ordered by
	// value.
	require.Equal(t, int64(150_000), signing.Inputs()[0].TxOut.Value)
	require.Equal(t, int64(50_000), signing.Inputs()[1].TxOut.Value)
	require.Equal(t, []wire.TxOut{
		{Value: 120_000, PkScript: dest1.pkScript},
		{Value: 70_000, PkScript: dest2.pkScript},
	}, signing.Outputs())
	require.Equal(t, state.Balance(), signing.Balance())

	idx, ok := signing.InputIndex(small.coin(50_000, 0).Outpoint)
	require.True(t, ok)
	require.Equal(t, 1, idx)

	// A witness made by the wrong key is rejected.
	bad := small.p2wpkhWitness(t, signing, 0)
	err = signing.VerifyWitness(0, bad)
	require.True(t, IsErrorCode(err, ErrWrongCoinjoinSignature))

	witness := large.p2wpkhWitness(t, signing, 0)
	require.NoError(t, signing.VerifyWitness(0, witness))
	signed, err := signing.AddWitness(0, witness)
	require.NoError(t, err)
	require.False(t, signing.IsInputSigned(0))
	require.True(t, signed.IsInputSigned(0))
	require.False(t, signed.IsFullySigned())
	require.Len(t, signed.UnsignedInputs(), 1)

	_, err = signed.AddWitness(0, witness)
	require.True(t, IsErrorCode(err, ErrWitnessAlreadyProvided))

	witness = small.p2wpkhWitness(t, signed, 1)
	require.NoError(t, signed.VerifyWitness(1, witness))
	signed, err = signed.AddWitness(1, witness)
	require.NoError(t, err)
	require.True(t, signed.IsFullySigned())
	require.Len(t, signed.SignedInputs(), 2)

	tx := signed.CreateTransaction()
	require.Len(t, tx.TxIn, 2)
	require.Len(t, tx.TxOut, 2)
	require.Equal(t, signing.CreateUnsignedTransaction().TxHash(),
		tx.TxHash())

	packet, err := signing.UnsignedPacket()
	require.NoError(t, err)
	require.Equal(t, int64(150_000), packet.Inputs[0].WitnessUtxo.Value)
}
