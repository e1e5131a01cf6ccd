// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coins

import (
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// CoinSet is a list of wallet coins.
type CoinSet []*SmartCoin

// Total returns the value of the coins.
func (s CoinSet) Total() btcutil.Amount {
	var total btcutil.Amount
	for _, c := range s {
		total += c.Amount()
	}

	return total
}

// Filter returns the coins keep accepts.
func (s CoinSet) Filter(keep func(*SmartCoin) bool) CoinSet {
	var result CoinSet
	for _, c := range s {
		if keep(c) {
			result = append(result, c)
		}
	}

	return result
}

// Available returns the coins that may be registered at now.
func (s CoinSet) Available(now time.Time) CoinSet {
	return s.Filter(func(c *SmartCoin) bool {
		return c.IsAvailable(now)
	})
}

// Private returns the coins that reached the anonymity score target.
func (s CoinSet) Private(target float64) CoinSet {
	return s.Filter(func(c *SmartCoin) bool {
		return c.IsPrivate(target)
	})
}

// NonPrivate returns the coins below the anonymity score target.
func (s CoinSet) NonPrivate(target float64) CoinSet {
	return s.Filter(func(c *SmartCoin) bool {
		return !c.IsPrivate(target)
	})
}

// Find returns the coin spending op.
func (s CoinSet) Find(op wire.OutPoint) (*SmartCoin, bool) {
	for _, c := range s {
		if c.Outpoint == op {
			return c, true
		}
	}

	return nil, false
}

// Outpoints returns the outpoints of the coins.
func (s CoinSet) Outpoints() []wire.OutPoint {
	ops := make([]wire.OutPoint, len(s))
	for i, c := range s {
		ops[i] = c.Outpoint
	}

	return ops
}

// ByTransaction groups the coins by the transaction that created them.
// Groups are returned largest value first.
func (s CoinSet) ByTransaction() []CoinSet {
	index := make(map[chainhash.Hash]int)

	var groups []CoinSet
	for _, c := range s {
		i, ok := index[c.Outpoint.Hash]
		if !ok {
			i = len(groups)
			index[c.Outpoint.Hash] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Total() > groups[j].Total()
	})

	return groups
}

// SetCoinJoinInProgress marks every coin.
func (s CoinSet) SetCoinJoinInProgress(v bool) {
	for _, c := range s {
		c.SetCoinJoinInProgress(v)
	}
}
