// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coins

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/stretchr/testify/require"
)

var p2wpkh = append([]byte{0x00, 0x14}, make([]byte, 20)...)

func testCoin(tx byte, index uint32, value int64,
	score float64) *SmartCoin {

	c := NewSmartCoin(
		wire.OutPoint{Hash: chainhash.Hash{tx}, Index: index},
		wire.TxOut{Value: value, PkScript: p2wpkh},
	)
	c.Height = 100
	c.AnonymityScore = score

	return c
}

// TestSmartCoinAvailability checks the flags that keep a coin out of
// rounds.
func TestSmartCoinAvailability(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := testCoin(1, 0, 10_000, 1)
	require.True(t, c.IsAvailable(now))
	require.True(t, c.Confirmed())

	typ, ok := c.ScriptType()
	require.True(t, ok)
	require.Equal(t, models.ScriptTypeP2WPKH, typ)

	c.SetCoinJoinInProgress(true)
	require.False(t, c.IsAvailable(now))
	c.SetCoinJoinInProgress(false)

	c.SetBannedUntil(now.Add(time.Hour))
	require.True(t, c.IsBanned(now))
	require.False(t, c.IsAvailable(now))
	require.True(t, c.IsAvailable(now.Add(2*time.Hour)))

	c.Excluded = true
	require.False(t, c.IsAvailable(now.Add(2*time.Hour)))
}

// TestCoinSet checks filtering and grouping of coins.
func TestCoinSet(t *testing.T) {
	t.Parallel()

	set := CoinSet{
		testCoin(1, 0, 1000, 1),
		testCoin(2, 0, 5000, 10),
		testCoin(1, 1, 3000, 1),
	}
	require.Equal(t, btcutil.Amount(9000), set.Total())
	require.Len(t, set.Private(5), 1)
	require.Len(t, set.NonPrivate(5), 2)

	groups := set.ByTransaction()
	require.Len(t, groups, 2)
	require.Equal(t, btcutil.Amount(5000), groups[0].Total())
	require.Equal(t, btcutil.Amount(4000), groups[1].Total())

	c, ok := set.Find(set[2].Outpoint)
	require.True(t, ok)
	require.Same(t, set[2], c)

	set.SetCoinJoinInProgress(true)
	require.Empty(t, set.Available(time.Now()))
}

// TestFromCredit checks the conversion of wallet credits.
func TestFromCredit(t *testing.T) {
	t.Parallel()

	credits := []wtxmgr.Credit{
		{
			OutPoint: wire.OutPoint{Index: 1},
			BlockMeta: wtxmgr.BlockMeta{
				Block: wtxmgr.Block{Height: 50},
			},
			Amount:   20_000,
			PkScript: p2wpkh,
		},
		{
			OutPoint: wire.OutPoint{Index: 2},
			BlockMeta: wtxmgr.BlockMeta{
				Block: wtxmgr.Block{Height: -1},
			},
			Amount:       30_000,
			PkScript:     p2wpkh,
			FromCoinBase: true,
		},
	}

	set := FromCredits(credits, 0)
	require.Len(t, set, 2)

	require.Equal(t, btcutil.Amount(20_000), set[0].Amount())
	require.EqualValues(t, 50, set[0].Height)
	require.Equal(t, 1.0, set[0].AnonymityScore)
	require.False(t, set[0].Excluded)

	require.False(t, set[1].Confirmed())
	require.True(t, set[1].Excluded)
}
