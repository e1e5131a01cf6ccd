// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/wabisabi/netparams"
	"github.com/btcsuite/wabisabi/pkg/unit"
)

// StandardTransactionVsize is the largest coinjoin the coordinator builds.
const StandardTransactionVsize = 100_000

// RoundParameters are the rules a round is created with. They never change
// during the lifetime of the round.
type RoundParameters struct {
	Network *netparams.Params

	MiningFeeRate unit.SatPerKVByte
	MinRelayTxFee unit.SatPerKVByte

	MaxInputCountByRound int
	MinInputCountByRound int

	AllowedInputAmounts  MoneyRange
	AllowedOutputAmounts MoneyRange
	AllowedInputTypes    []ScriptType
	AllowedOutputTypes   []ScriptType

	StandardInputRegistrationTimeout time.Duration
	ConnectionConfirmationTimeout    time.Duration
	OutputRegistrationTimeout        time.Duration
	TransactionSigningTimeout        time.Duration
	BlameInputRegistrationTimeout    time.Duration

	MaxVsizeAllocationPerAlice int64
	MaxSuggestedAmount         btcutil.Amount
	MaxTransactionSize         int64

	// CoordinationIdentifier is committed to by every ownership proof so
	// proofs cannot be replayed against other coordinators.
	CoordinationIdentifier string
}

// MaxAmountCredentialValue is the largest value of an amount credential.
func (p *RoundParameters) MaxAmountCredentialValue() int64 {
	return int64(p.AllowedInputAmounts.Max)
}

// MaxVsizeCredentialValue is the largest value of a vsize credential.
func (p *RoundParameters) MaxVsizeCredentialValue() int64 {
	return p.MaxVsizeAllocationPerAlice
}

// InputEffectiveValue returns the value of an input minus the fee paying
// for it. It may be negative.
func (p *RoundParameters) InputEffectiveValue(amount btcutil.Amount,
	t ScriptType) btcutil.Amount {

	return amount - p.MiningFeeRate.FeeForVSize(t.InputVsize())
}

// OutputEffectiveCost returns the value of an output plus the fee paying
// for it.
func (p *RoundParameters) OutputEffectiveCost(amount btcutil.Amount,
	t ScriptType) btcutil.Amount {

	return amount + p.MiningFeeRate.FeeForVSize(t.OutputVsize())
}

// VsizeAllocation returns the vsize credential an input of type t
// receives when confirming its connection.
func (p *RoundParameters) VsizeAllocation(t ScriptType) int64 {
	return p.MaxVsizeAllocationPerAlice - int64(t.InputVsize())
}

// Clone returns a copy sharing nothing mutable with p.
func (p *RoundParameters) Clone() *RoundParameters {
	c := *p
	c.AllowedInputTypes = append([]ScriptType(nil), p.AllowedInputTypes...)
	c.AllowedOutputTypes = append([]ScriptType(nil),
		p.AllowedOutputTypes...)

	return &c
}
