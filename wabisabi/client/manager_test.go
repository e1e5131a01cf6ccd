// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/wabisabi/coins"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func nextStatus(t *testing.T, m *CoinJoinManager) StatusChangedEvent {
	t.Helper()

	select {
	case e := <-m.StatusChanged():
		return e

	case <-time.After(5 * time.Second):
		t.Fatal("no status change")
	}

	return StatusChangedEvent{}
}

func testWalletConfig(t *testing.T, handler RequestHandler,
	updater *RoundStateUpdater) *Config {

	t.Helper()

	ring := NewKeyRing(models.ScriptTypeP2WPKH)
	cfg := DefaultConfig()
	cfg.Handler = handler
	cfg.Updater = updater
	cfg.KeyChain = ring
	cfg.OutputProvider = ring

	return cfg
}

// TestCoinJoinManagerAllCoinsPrivate checks that a wallet whose coins are
// all private stops mixing on its own.
func TestCoinJoinManagerAllCoinsPrivate(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, testCoordinatorConfig(),
		ticker.NewForce(time.Hour))
	c.step()

	updater := NewRoundStateUpdater(c.arena, ticker.NewForce(time.Hour))
	require.NoError(t, updater.Update(context.Background()))

	private := newP2WPKHCoin(1, 0, btcutil.SatoshiPerBitcoin/10, 100)

	m := NewCoinJoinManager(time.Millisecond)
	t.Cleanup(m.Stop)

	require.NoError(t, m.StartCoinJoin(&ManagedWallet{
		Name:   "private",
		Config: testWalletConfig(t, c.arena, updater),
		Candidates: func() coins.CoinSet {
			return coins.CoinSet{private}
		},
		StopWhenAllMixed: true,
	}))

	e := nextStatus(t, m)
	require.Equal(t, StatusStarted, e.Kind)
	require.Equal(t, "private", e.Wallet)

	e = nextStatus(t, m)
	require.Equal(t, StatusCoinJoinStatus, e.Kind)
	require.Equal(t, ProgressWaitingForRound, e.Progress.Kind)

	e = nextStatus(t, m)
	require.Equal(t, StatusStartError, e.Kind)
	require.True(t, IsCoinjoinError(e.Err, ErrAllCoinsPrivate))

	e = nextStatus(t, m)
	require.Equal(t, StatusStopped, e.Kind)

	require.Eventually(t, func() bool {
		return !m.IsMixing("private")
	}, 5*time.Second, 10*time.Millisecond)
}

// TestCoinJoinManagerStartStop checks the events of a wallet stopped while
// it waits for a round.
func TestCoinJoinManagerStartStop(t *testing.T) {
	t.Parallel()

	handler := &mockHandler{}
	handler.On("GetStatus", mock.Anything).Return(
		statusResponse(), nil,
	).Maybe()
	updater := NewRoundStateUpdater(handler, ticker.NewForce(time.Hour))

	wallet := &ManagedWallet{
		Name:   "waiting",
		Config: testWalletConfig(t, handler, updater),
		Candidates: func() coins.CoinSet {
			return nil
		},
		Synchronized: func() bool { return false },
	}

	m := NewCoinJoinManager(time.Hour)
	t.Cleanup(m.Stop)

	require.NoError(t, m.StartCoinJoin(wallet))
	require.ErrorIs(t, m.StartCoinJoin(wallet), ErrAlreadyMixing)
	require.True(t, m.IsMixing("waiting"))

	e := nextStatus(t, m)
	require.Equal(t, StatusStarted, e.Kind)

	e = nextStatus(t, m)
	require.Equal(t, StatusStartError, e.Kind)
	require.True(t, IsCoinjoinError(e.Err, ErrBackendNotSynchronized))

	require.NoError(t, m.StopCoinJoin("waiting"))
	require.ErrorIs(t, m.StopCoinJoin("waiting"), ErrNotMixing)

	e = nextStatus(t, m)
	require.Equal(t, StatusStopped, e.Kind)
}
