// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coins describes the wallet coins that take part in coinjoins.
package coins

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

// SmartCoin is an unspent output owned by the wallet together with the
// privacy metadata coinjoins need.
type SmartCoin struct {
	Outpoint wire.OutPoint
	TxOut    wire.TxOut

	// Height is the height of the block the coin was mined in, zero if
	// it is unconfirmed.
	Height int32

	// AnonymityScore estimates the size of the set the coin cannot be
	// distinguished from.
	AnonymityScore float64

	// Excluded coins are never selected for a coinjoin.
	Excluded bool

	mu                 sync.Mutex
	coinJoinInProgress bool
	bannedUntil        time.Time
}

// NewSmartCoin returns an unconfirmed coin with an anonymity score of one.
func NewSmartCoin(op wire.OutPoint, out wire.TxOut) *SmartCoin {
	return &SmartCoin{
		Outpoint:       op,
		TxOut:          out,
		AnonymityScore: 1,
	}
}

// String returns the outpoint and value of the coin.
func (c *SmartCoin) String() string {
	return fmt.Sprintf("%v (%v)", c.Outpoint, c.Amount())
}

// Amount returns the value of the coin.
func (c *SmartCoin) Amount() btcutil.Amount {
	return btcutil.Amount(c.TxOut.Value)
}

// Confirmed reports whether the coin is in a block.
func (c *SmartCoin) Confirmed() bool {
	return c.Height > 0
}

// ScriptType returns the script type of the coin, false if coinjoins do
// not support it.
func (c *SmartCoin) ScriptType() (models.ScriptType, bool) {
	return models.ScriptTypeOf(c.TxOut.PkScript)
}

// Coin returns the coin as a coinjoin input.
func (c *SmartCoin) Coin() models.Coin {
	return models.Coin{Outpoint: c.Outpoint, TxOut: c.TxOut}
}

// EffectiveValue returns the value of the coin minus the fee of spending
// it in a round with params.
func (c *SmartCoin) EffectiveValue(
	params *models.RoundParameters) btcutil.Amount {

	t, _ := c.ScriptType()
	return params.InputEffectiveValue(c.Amount(), t)
}

// IsPrivate reports whether the coin reached the anonymity score target.
func (c *SmartCoin) IsPrivate(target float64) bool {
	return c.AnonymityScore >= target
}

// CoinJoinInProgress reports whether the coin is registered in a round.
func (c *SmartCoin) CoinJoinInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.coinJoinInProgress
}

// SetCoinJoinInProgress marks the coin as registered in a round or
// released from it.
func (c *SmartCoin) SetCoinJoinInProgress(v bool) {
	c.mu.Lock()
	c.coinJoinInProgress = v
	c.mu.Unlock()
}

// BannedUntil returns the time a coordinator ban on the coin ends.
func (c *SmartCoin) BannedUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.bannedUntil
}

// SetBannedUntil records a coordinator ban.
func (c *SmartCoin) SetBannedUntil(t time.Time) {
	c.mu.Lock()
	c.bannedUntil = t
	c.mu.Unlock()
}

// IsBanned reports whether the coin is banned at now.
func (c *SmartCoin) IsBanned(now time.Time) bool {
	return now.Before(c.BannedUntil())
}

// IsAvailable reports whether the coin may be registered in a round at
// now.
func (c *SmartCoin) IsAvailable(now time.Time) bool {
	return !c.Excluded && !c.CoinJoinInProgress() && !c.IsBanned(now)
}
