// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/wabisabi/internal/sqltest"
	"github.com/stretchr/testify/require"
)

// TestCoinJoinIDStore checks that coinjoin ids are recorded once and
// survive reopening the store.
func TestCoinJoinIDStore(t *testing.T) {
	t.Parallel()

	sqltest.RunDatabaseTest(t, func(t *testing.T,
		dbFactory sqltest.DBFactory) {

		ctx := context.Background()
		db := dbFactory(t)
		now := time.Unix(1_700_000_000, 0)

		store, err := NewCoinJoinIDStore(ctx, db)
		require.NoError(t, err)

		txid := chainhash.Hash{1}
		require.False(t, store.Contains(txid))

		added, err := store.TryAdd(ctx, txid, chainhash.Hash{2}, now)
		require.NoError(t, err)
		require.True(t, added)
		require.True(t, store.Contains(txid))

		added, err = store.TryAdd(ctx, txid, chainhash.Hash{2}, now)
		require.NoError(t, err)
		require.False(t, added)

		reopened, err := NewCoinJoinIDStore(ctx, db)
		require.NoError(t, err)
		require.True(t, reopened.Contains(txid))
		require.False(t, reopened.Contains(chainhash.Hash{3}))
	})
}
