// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/netparams"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/stretchr/testify/require"
)

func testParams() *RoundParameters {
	types := []ScriptType{ScriptTypeP2WPKH, ScriptTypeTaproot}

	return &RoundParameters{
		Network:                          &netparams.RegressionNetParams,
		MiningFeeRate:                    unit.SatsPerKVByte(10_000),
		MinRelayTxFee:                    unit.SatsPerKVByte(1_000),
		MaxInputCountByRound:             3,
		MinInputCountByRound:             1,
		AllowedInputAmounts:              MoneyRange{Min: 5_000, Max: btcutil.SatoshiPerBitcoin},
		AllowedOutputAmounts:             MoneyRange{Min: 5_000, Max: btcutil.SatoshiPerBitcoin},
		AllowedInputTypes:                types,
		AllowedOutputTypes:               types,
		StandardInputRegistrationTimeout: time.Hour,
		ConnectionConfirmationTimeout:    time.Minute,
		OutputRegistrationTimeout:        time.Minute,
		TransactionSigningTimeout:        time.Minute,
		BlameInputRegistrationTimeout:    3 * time.Minute,
		MaxVsizeAllocationPerAlice:       255,
		MaxSuggestedAmount:               10 * btcutil.SatoshiPerBitcoin,
		MaxTransactionSize:               StandardTransactionVsize,
		CoordinationIdentifier:           "CoinJoinCoordinatorIdentifier",
	}
}

type testKey struct {
	priv     *btcec.PrivateKey
	pkScript []byte
}

func newP2WPKHKey(t *testing.T) *testKey {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash).
		Script()
	require.NoError(t, err)

	return &testKey{priv: priv, pkScript: pkScript}
}

func newTaprootKey(t *testing.T) *testKey {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pkScript, err := txscript.PayToTaprootScript(priv.PubKey())
	require.NoError(t, err)

	return &testKey{priv: priv, pkScript: pkScript}
}

// coin returns a coin of key worth amount at a fresh outpoint.
func (k *testKey) coin(amount btcutil.Amount, index uint32) Coin {
	return Coin{
		Outpoint: wire.OutPoint{
			Hash:  chainhash.HashH(k.pkScript),
			Index: index,
		},
		TxOut: wire.TxOut{Value: int64(amount), PkScript: k.pkScript},
	}
}

func (k *testKey) proof(t *testing.T, commitment []byte) *OwnershipProof {
	t.Helper()

	p, err := NewOwnershipProof(k.priv, k.pkScript, commitment)
	require.NoError(t, err)

	return p
}

// p2wpkhWitness signs input index of the coinjoin.
func (k *testKey) p2wpkhWitness(t *testing.T, s *SigningState,
	index int) wire.TxWitness {

	t.Helper()

	tx := s.CreateUnsignedTransaction()
	sigHashes := txscript.NewTxSigHashes(tx, s.PrevOutputFetcher())
	witness, err := txscript.WitnessSignature(tx, sigHashes, index,
		s.Inputs()[index].TxOut.Value, k.pkScript, txscript.SigHashAll,
		k.priv, true)
	require.NoError(t, err)

	return witness
}
