// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/wabisabi/coins"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/netparams"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/btcsuite/wabisabi/wabisabi/coordinator"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

// A compile-time assertion to ensure the coordinator serves clients in
// process.
var _ RequestHandler = (*coordinator.Arena)(nil)

// mockHandler is a mock implementation of the RequestHandler interface.
type mockHandler struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockHandler implements
// RequestHandler.
var _ RequestHandler = (*mockHandler)(nil)

// GetStatus implements the RequestHandler interface.
func (m *mockHandler) GetStatus(_ context.Context,
	req *models.RoundStateRequest) (*models.RoundStateResponse, error) {

	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RoundStateResponse), args.Error(1)
}

// RegisterInput implements the RequestHandler interface.
func (m *mockHandler) RegisterInput(_ context.Context,
	req *models.InputRegistrationRequest) (
	*models.InputRegistrationResponse, error) {

	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.InputRegistrationResponse), args.Error(1)
}

// ConfirmConnection implements the RequestHandler interface.
func (m *mockHandler) ConfirmConnection(_ context.Context,
	req *models.ConnectionConfirmationRequest) (
	*models.ConnectionConfirmationResponse, error) {

	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ConnectionConfirmationResponse),
		args.Error(1)
}

// RemoveInput implements the RequestHandler interface.
func (m *mockHandler) RemoveInput(_ context.Context,
	req *models.InputsRemovalRequest) error {

	return m.Called(req).Error(0)
}

// RegisterOutput implements the RequestHandler interface.
func (m *mockHandler) RegisterOutput(_ context.Context,
	req *models.OutputRegistrationRequest) error {

	return m.Called(req).Error(0)
}

// ReissueCredentials implements the RequestHandler interface.
func (m *mockHandler) ReissueCredentials(_ context.Context,
	req *models.ReissueCredentialRequest) (
	*models.ReissueCredentialResponse, error) {

	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ReissueCredentialResponse), args.Error(1)
}

// ReadyToSign implements the RequestHandler interface.
func (m *mockHandler) ReadyToSign(_ context.Context,
	req *models.ReadyToSignRequestRequest) error {

	return m.Called(req).Error(0)
}

// SignTransaction implements the RequestHandler interface.
func (m *mockHandler) SignTransaction(_ context.Context,
	req *models.TransactionSignaturesRequest) error {

	return m.Called(req).Error(0)
}

// mockRPC is a mock implementation of the coordinator's RPCClient
// interface.
type mockRPC struct {
	mock.Mock
}

// GetTxOut implements the coordinator.RPCClient interface.
func (m *mockRPC) GetTxOut(_ context.Context, op wire.OutPoint,
	includeMempool bool) (*coordinator.TxOutInfo, error) {

	args := m.Called(op, includeMempool)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*coordinator.TxOutInfo), args.Error(1)
}

// SendRawTransaction implements the coordinator.RPCClient interface.
func (m *mockRPC) SendRawTransaction(_ context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	args := m.Called(tx)
	if err := args.Error(0); err != nil {
		return nil, err
	}

	txid := tx.TxHash()
	return &txid, nil
}

// EstimateSmartFee implements the coordinator.RPCClient interface.
func (m *mockRPC) EstimateSmartFee(_ context.Context,
	confTarget int64) (unit.SatPerKVByte, error) {

	args := m.Called(confTarget)
	return args.Get(0).(unit.SatPerKVByte), args.Error(1)
}

// testFeeRate is the mining fee rate of the test coordinator.
var testFeeRate = unit.SatsPerKVByte(10_000)

func testCoordinatorConfig() *coordinator.Config {
	cfg := coordinator.DefaultConfig(&netparams.RegressionNetParams)
	cfg.MaxInputCountByRound = 1
	cfg.AllowedInputAmounts = models.MoneyRange{
		Min: 5_000, Max: btcutil.SatoshiPerBitcoin,
	}
	cfg.AllowedOutputAmounts = cfg.AllowedInputAmounts
	cfg.AllowedInputTypes = []models.ScriptType{models.ScriptTypeP2WPKH}
	cfg.AllowedOutputTypes = cfg.AllowedInputTypes

	return cfg
}

// testCoordinator is an in process coordinator backed by a mocked node.
type testCoordinator struct {
	t     *testing.T
	arena *coordinator.Arena
	rpc   *mockRPC
}

// newTestCoordinator creates an arena stepped by stepTicker.
func newTestCoordinator(t *testing.T, cfg *coordinator.Config,
	stepTicker ticker.Ticker) *testCoordinator {

	t.Helper()

	db, err := walletdb.Create(
		"bdb", filepath.Join(t.TempDir(), "prison.db"), true,
		time.Second, false,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	prison, err := coordinator.NewPrison(db, time.Hour, 24*time.Hour)
	require.NoError(t, err)

	rpc := &mockRPC{}
	rpc.On("EstimateSmartFee", cfg.ConfirmationTarget).Return(
		testFeeRate, nil,
	).Maybe()
	rpc.On("SendRawTransaction", mock.Anything).Return(nil).Maybe()

	arena, err := coordinator.NewArena(coordinator.ArenaConfig{
		Config:     cfg,
		RPC:        rpc,
		Prison:     prison,
		Random:     randomness.NewInsecureRandomFromSeed(1),
		StepTicker: stepTicker,
	})
	require.NoError(t, err)

	return &testCoordinator{t: t, arena: arena, rpc: rpc}
}

func (c *testCoordinator) step() {
	c.t.Helper()
	require.NoError(c.t, c.arena.Step(context.Background()))
}

// newCoin creates a confirmed coin of amount paying to a script of ring
// and makes it known to the coordinator's node.
func (c *testCoordinator) newCoin(ring *KeyRing,
	amount btcutil.Amount) *coins.SmartCoin {

	c.t.Helper()

	scripts, err := ring.NextScripts(1, models.ScriptTypeP2WPKH)
	require.NoError(c.t, err)

	op := wire.OutPoint{Hash: chainhash.HashH(scripts[0])}
	out := wire.TxOut{Value: int64(amount), PkScript: scripts[0]}
	c.rpc.On("GetTxOut", op, true).Return(&coordinator.TxOutInfo{
		TxOut:         out,
		Confirmations: 6,
	}, nil).Maybe()

	coin := coins.NewSmartCoin(op, out)
	coin.Height = 100

	return coin
}

// roundIn returns the state of a standard round in phase known to
// updater.
func roundIn(t *testing.T, updater *RoundStateUpdater,
	phase models.Phase) *models.RoundState {

	t.Helper()

	for _, s := range updater.RoundStates() {
		if s.Phase == phase && !s.IsBlame() {
			return s
		}
	}
	t.Fatalf("no round in %v", phase)

	return nil
}
