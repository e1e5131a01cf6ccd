// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/coins"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

// KeyChain proves ownership of the wallet's coins and signs their inputs.
type KeyChain interface {
	// OwnershipProof proves that the wallet controls coin, committing
	// to commitmentData.
	OwnershipProof(coin *coins.SmartCoin,
		commitmentData []byte) (*models.OwnershipProof, error)

	// Sign returns the witness spending coin as input index of tx.
	Sign(tx *wire.MsgTx, index int, coin *coins.SmartCoin,
		prevOuts txscript.PrevOutputFetcher) (wire.TxWitness, error)
}

// OutputProvider hands out fresh scripts coinjoin outputs pay to.
type OutputProvider interface {
	// SupportedScriptTypes returns the script types the wallet can
	// create, preferred first.
	SupportedScriptTypes() []models.ScriptType

	// NextScripts returns n scripts of type t that were never used.
	NextScripts(n int, t models.ScriptType) ([][]byte, error)
}

// KeyRing is an in memory KeyChain and OutputProvider holding one private
// key per script.
type KeyRing struct {
	mu    sync.Mutex
	keys  map[string]*btcec.PrivateKey
	types []models.ScriptType
}

// A compile time check to ensure KeyRing implements KeyChain and
// OutputProvider.
var (
	_ KeyChain       = (*KeyRing)(nil)
	_ OutputProvider = (*KeyRing)(nil)
)

// NewKeyRing returns an empty key ring creating outputs of types.
func NewKeyRing(types ...models.ScriptType) *KeyRing {
	if len(types) == 0 {
		types = []models.ScriptType{models.ScriptTypeP2WPKH}
	}

	return &KeyRing{
		keys:  make(map[string]*btcec.PrivateKey),
		types: types,
	}
}

// PayToScript returns the script of type t paying to key.
func PayToScript(key *btcec.PublicKey, t models.ScriptType) ([]byte,
	error) {

	switch t {
	case models.ScriptTypeP2WPKH:
		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(btcutil.Hash160(key.SerializeCompressed())).
			Script()

	case models.ScriptTypeTaproot:
		return txscript.PayToTaprootScript(
			txscript.ComputeTaprootKeyNoScript(key),
		)
	}

	return nil, fmt.Errorf("unsupported script type %v", t)
}

// AddKey adds key to the ring and returns its script of type t.
func (k *KeyRing) AddKey(key *btcec.PrivateKey,
	t models.ScriptType) ([]byte, error) {

	script, err := PayToScript(key.PubKey(), t)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.keys[string(script)] = key
	k.mu.Unlock()

	return script, nil
}

func (k *KeyRing) key(script []byte) (*btcec.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	key, ok := k.keys[string(script)]
	if !ok {
		return nil, ErrUnknownScript
	}

	return key, nil
}

// OwnershipProof proves ownership of coin's script.
func (k *KeyRing) OwnershipProof(coin *coins.SmartCoin,
	commitmentData []byte) (*models.OwnershipProof, error) {

	key, err := k.key(coin.TxOut.PkScript)
	if err != nil {
		return nil, err
	}

	if t, _ := coin.ScriptType(); t == models.ScriptTypeTaproot {
		key = txscript.TweakTaprootPrivKey(*key, nil)
	}

	return models.NewOwnershipProof(key, coin.TxOut.PkScript,
		commitmentData)
}

// Sign returns the witness spending coin as input index of tx.
func (k *KeyRing) Sign(tx *wire.MsgTx, index int, coin *coins.SmartCoin,
	prevOuts txscript.PrevOutputFetcher) (wire.TxWitness, error) {

	key, err := k.key(coin.TxOut.PkScript)
	if err != nil {
		return nil, err
	}

	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)
	t, _ := coin.ScriptType()
	switch t {
	case models.ScriptTypeTaproot:
		return txscript.TaprootWitnessSignature(tx, sigHashes, index,
			coin.TxOut.Value, coin.TxOut.PkScript,
			txscript.SigHashDefault, key)

	default:
		return txscript.WitnessSignature(tx, sigHashes, index,
			coin.TxOut.Value, coin.TxOut.PkScript,
			txscript.SigHashAll, key, true)
	}
}

// SupportedScriptTypes returns the types the ring creates outputs of.
func (k *KeyRing) SupportedScriptTypes() []models.ScriptType {
	return k.types
}

// NextScripts generates n new keys and returns their scripts of type t.
func (k *KeyRing) NextScripts(n int, t models.ScriptType) ([][]byte,
	error) {

	scripts := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		key, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, err
		}
		script, err := k.AddKey(key, t)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}

	return scripts, nil
}
