// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/coins"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

// CoinJoinResult is the outcome of a coinjoin attempt. It is one of
// SuccessfulCoinJoinResult, FailedCoinJoinResult and
// DisruptedCoinJoinResult.
type CoinJoinResult interface {
	// Round returns the id of the round the result is about.
	Round() chainhash.Hash

	coinJoinResult()
}

// SuccessfulCoinJoinResult is returned once the coinjoin spending Coins
// was broadcast.
type SuccessfulCoinJoinResult struct {
	RoundID          chainhash.Hash
	Coins            coins.CoinSet
	OutputScripts    [][]byte
	UnsignedCoinJoin *wire.MsgTx
}

// FailedCoinJoinResult is returned when the round ended without a
// coinjoin the wallet took part in.
type FailedCoinJoinResult struct {
	RoundID       chainhash.Hash
	EndRoundState models.EndRoundState
}

// DisruptedCoinJoinResult is returned when the round failed at signing.
// SignedCoins are the coins the wallet signed and that may join the blame
// round.
type DisruptedCoinJoinResult struct {
	RoundID     chainhash.Hash
	SignedCoins coins.CoinSet
}

// Round returns the id of the round.
func (r *SuccessfulCoinJoinResult) Round() chainhash.Hash { return r.RoundID }

// Round returns the id of the round.
func (r *FailedCoinJoinResult) Round() chainhash.Hash { return r.RoundID }

// Round returns the id of the round.
func (r *DisruptedCoinJoinResult) Round() chainhash.Hash { return r.RoundID }

func (*SuccessfulCoinJoinResult) coinJoinResult() {}
func (*FailedCoinJoinResult) coinJoinResult()     {}
func (*DisruptedCoinJoinResult) coinJoinResult()  {}
