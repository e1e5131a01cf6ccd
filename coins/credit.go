// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coins

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wtxmgr"
)

// FromCredit returns the coin of an unspent wallet credit. Coinbase credits
// are returned excluded, the caller clears Excluded once they mature.
func FromCredit(c *wtxmgr.Credit, anonymityScore float64) *SmartCoin {
	coin := NewSmartCoin(c.OutPoint, wire.TxOut{
		Value:    int64(c.Amount),
		PkScript: c.PkScript,
	})
	if c.Height > 0 {
		coin.Height = c.Height
	}
	if anonymityScore > 0 {
		coin.AnonymityScore = anonymityScore
	}
	coin.Excluded = c.FromCoinBase

	return coin
}

// FromCredits returns the coins of a list of unspent credits, all with the
// same anonymity score.
func FromCredits(credits []wtxmgr.Credit, anonymityScore float64) CoinSet {
	set := make(CoinSet, len(credits))
	for i := range credits {
		set[i] = FromCredit(&credits[i], anonymityScore)
	}

	return set
}
