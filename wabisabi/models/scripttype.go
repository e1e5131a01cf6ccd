// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/wabisabi/pkg/unit"
)

// ScriptType is a kind of output script a round accepts.
type ScriptType int

// The script types the protocol knows how to estimate and verify.
const (
	ScriptTypeP2WPKH ScriptType = iota
	ScriptTypeTaproot
)

var scriptTypeStrings = map[ScriptType]string{
	ScriptTypeP2WPKH:  "P2WPKH",
	ScriptTypeTaproot: "Taproot",
}

// String returns the script type name.
func (t ScriptType) String() string {
	if s, ok := scriptTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ScriptType (%d)", int(t))
}

// ParseScriptType parses a script type name.
func ParseScriptType(s string) (ScriptType, error) {
	for t, name := range scriptTypeStrings {
		if name == s {
			return t, nil
		}
	}

	return 0, fmt.Errorf("unknown script type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t ScriptType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ScriptType) UnmarshalText(text []byte) error {
	parsed, err := ParseScriptType(string(text))
	if err != nil {
		return err
	}
	*t = parsed

	return nil
}

// ScriptTypeOf classifies pkScript.
func ScriptTypeOf(pkScript []byte) (ScriptType, bool) {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.WitnessV0PubKeyHashTy:
		return ScriptTypeP2WPKH, true

	case txscript.WitnessV1TaprootTy:
		return ScriptTypeTaproot, true
	}

	return 0, false
}

// witnessVBytes converts a witness weight to vbytes, rounding up.
func witnessVBytes(weight int) int {
	return (weight + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor
}

// InputVsize returns the vsize an input of this type adds to a
// transaction.
func (t ScriptType) InputVsize() unit.VByte {
	switch t {
	case ScriptTypeTaproot:
		return unit.VByte(txsizes.RedeemP2TRInputSize +
			witnessVBytes(txsizes.RedeemP2TRInputWitnessWeight))

	default:
		return unit.VByte(txsizes.RedeemP2WPKHInputSize +
			witnessVBytes(txsizes.RedeemP2WPKHInputWitnessWeight))
	}
}

// OutputVsize returns the vsize an output of this type adds to a
// transaction.
func (t ScriptType) OutputVsize() unit.VByte {
	switch t {
	case ScriptTypeTaproot:
		return unit.VByte(txsizes.P2TROutputSize)

	default:
		return unit.VByte(txsizes.P2WPKHOutputSize)
	}
}

// ContainsScriptType reports whether types contains t.
func ContainsScriptType(types []ScriptType, t ScriptType) bool {
	for _, c := range types {
		if c == t {
			return true
		}
	}

	return false
}

// MoneyRange is an inclusive range of amounts.
type MoneyRange struct {
	Min btcutil.Amount
	Max btcutil.Amount
}

// Contains reports whether a is within the range.
func (r MoneyRange) Contains(a btcutil.Amount) bool {
	return a >= r.Min && a <= r.Max
}
