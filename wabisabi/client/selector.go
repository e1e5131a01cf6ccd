// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/wabisabi/coins"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

const (
	// DefaultMaxInputsRegistrableByWallet is the most coins a wallet
	// registers in one round.
	DefaultMaxInputsRegistrableByWallet = 10

	// DefaultMaxCoinsPerTransaction is the most coins created by the
	// same transaction that are registered together.
	DefaultMaxCoinsPerTransaction = 2
)

// CoinJoinCoinSelector picks the coins a wallet registers in a round.
type CoinJoinCoinSelector struct {
	// AnonScoreTarget is the anonymity score a coin needs to be
	// considered private.
	AnonScoreTarget float64

	// MaxInputs caps the number of selected coins.
	MaxInputs int

	// MaxCoinsPerTransaction caps the number of selected coins created
	// by the same transaction.
	MaxCoinsPerTransaction int

	rnd randomness.WasabiRandom
}

// NewCoinJoinCoinSelector returns a selector aiming for anonScoreTarget.
func NewCoinJoinCoinSelector(anonScoreTarget float64,
	rnd randomness.WasabiRandom) *CoinJoinCoinSelector {

	return &CoinJoinCoinSelector{
		AnonScoreTarget:        anonScoreTarget,
		MaxInputs:              DefaultMaxInputsRegistrableByWallet,
		MaxCoinsPerTransaction: DefaultMaxCoinsPerTransaction,
		rnd:                    rnd,
	}
}

// eligible returns the coins a round with params accepts and that are
// worth registering.
func eligible(candidates coins.CoinSet,
	params *models.RoundParameters) coins.CoinSet {

	return candidates.Filter(func(c *coins.SmartCoin) bool {
		t, ok := c.ScriptType()
		if !ok || !models.ContainsScriptType(params.AllowedInputTypes, t) {
			return false
		}
		if !params.AllowedInputAmounts.Contains(c.Amount()) {
			return false
		}
		if params.MaxSuggestedAmount > 0 &&
			c.Amount() > params.MaxSuggestedAmount {

			return false
		}

		return c.EffectiveValue(params) > 0
	})
}

// SelectCoinsForRound selects the coins to register in a round with
// params. Nothing is selected when every eligible coin is already
// private. Coins furthest from the anonymity target are preferred, and at
// most one private coin is added to them.
func (s *CoinJoinCoinSelector) SelectCoinsForRound(candidates coins.CoinSet,
	params *models.RoundParameters) coins.CoinSet {

	filtered := eligible(candidates, params)
	nonPrivate := filtered.NonPrivate(s.AnonScoreTarget)
	if len(nonPrivate) == 0 {
		return nil
	}
	private := filtered.Private(s.AnonScoreTarget)

	maxInputs := s.MaxInputs
	if maxInputs <= 0 || maxInputs > params.MaxInputCountByRound {
		maxInputs = params.MaxInputCountByRound
	}
	if maxInputs > len(filtered) {
		maxInputs = len(filtered)
	}
	inputCount := s.rnd.GetInt(1, maxInputs+1)

	sort.SliceStable(nonPrivate, func(i, j int) bool {
		a, b := nonPrivate[i], nonPrivate[j]
		if a.AnonymityScore != b.AnonymityScore {
			return a.AnonymityScore < b.AnonymityScore
		}
		return a.Amount() > b.Amount()
	})

	var (
		selected coins.CoinSet
		perTx    = make(map[chainhash.Hash]int)
	)
	add := func(c *coins.SmartCoin) bool {
		if len(selected) >= inputCount {
			return false
		}
		if s.MaxCoinsPerTransaction > 0 &&
			perTx[c.Outpoint.Hash] >= s.MaxCoinsPerTransaction {

			return false
		}
		perTx[c.Outpoint.Hash]++
		selected = append(selected, c)

		return true
	}

	for _, c := range nonPrivate {
		add(c)
	}

	// Half of the time one private coin joins as well.
	if len(private) > 0 && s.rnd.GetInt(0, 2) == 1 {
		add(private[s.rnd.GetInt(0, len(private))])
	}

	log.Debugf("Selected %d %s of %d candidates", len(selected),
		pickNoun(len(selected), "coin", "coins"), len(candidates))

	return selected
}
