// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strings"
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
	"github.com/btcsuite/wabisabi/wabisabi/client"
	"github.com/btcsuite/wabisabi/wabisabi/coordinator"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

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

	if err := m.Called(tx).Error(0); err != nil {
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

// testHarness is a coordinator served over a local listener and a client
// connected to it.
type testHarness struct {
	t      *testing.T
	arena  *coordinator.Arena
	rpc    *mockRPC
	url    string
	client *Client
}

func newTestHarness(t *testing.T, cfg *coordinator.Config,
	stepTicker ticker.Ticker) *testHarness {

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
		unit.SatsPerKVByte(10_000), nil,
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

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(DefaultOptions(), arena, []net.Listener{lis})
	t.Cleanup(server.Stop)

	url := "http://" + lis.Addr().String()
	c, err := NewClient(&ClientConfig{URL: url, Timeout: 10 * time.Second})
	require.NoError(t, err)

	return &testHarness{t: t, arena: arena, rpc: rpc, url: url, client: c}
}

func testCoordinatorConfig() *coordinator.Config {
	cfg := coordinator.DefaultConfig(&netparams.RegressionNetParams)
	cfg.AllowedInputAmounts = models.MoneyRange{
		Min: 5_000, Max: btcutil.SatoshiPerBitcoin,
	}
	cfg.AllowedOutputAmounts = cfg.AllowedInputAmounts
	cfg.AllowedInputTypes = []models.ScriptType{models.ScriptTypeP2WPKH}
	cfg.AllowedOutputTypes = cfg.AllowedInputTypes

	return cfg
}

// TestGetStatus checks that round states survive the trip to the client.
func TestGetStatus(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, testCoordinatorConfig(),
		ticker.NewForce(time.Hour))
	require.NoError(t, h.arena.Step(context.Background()))

	want := h.arena.Rounds()
	require.Len(t, want, 1)

	resp, err := h.client.GetStatus(context.Background(),
		&models.RoundStateRequest{})
	require.NoError(t, err)
	require.Len(t, resp.RoundStates, 1)

	got := resp.RoundStates[0]
	require.Equal(t, want[0].ID, got.ID)
	require.Equal(t, models.PhaseInputRegistration, got.Phase)
	require.False(t, got.IsBlame())

	wantParams, gotParams := want[0].Parameters(), got.Parameters()
	require.Zero(t, wantParams.MiningFeeRate.Cmp(
		gotParams.MiningFeeRate.Rat))
	require.Equal(t, wantParams.AllowedInputAmounts,
		gotParams.AllowedInputAmounts)
	require.Equal(t, wantParams.MaxInputCountByRound,
		gotParams.MaxInputCountByRound)
}

// TestProtocolErrors checks that refused requests are reported to the
// client as the coordinator's protocol errors.
func TestProtocolErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t, testCoordinatorConfig(),
		ticker.NewForce(time.Hour))
	require.NoError(t, h.arena.Step(ctx))
	roundID := h.arena.Rounds()[0].ID

	err := h.client.RemoveInput(ctx, &models.InputsRemovalRequest{
		RoundID: chainhash.Hash{1},
		AliceID: uuid.New(),
	})
	require.True(t, models.IsErrorCode(err, models.ErrRoundNotFound),
		"got %v", err)

	err = h.client.ReadyToSign(ctx, &models.ReadyToSignRequestRequest{
		RoundID: roundID,
		AliceID: uuid.New(),
	})
	perr, ok := models.AsProtocolError(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, models.ErrWrongPhase, perr.ErrorCode)
	require.Equal(t, models.WrongPhaseExceptionData{
		CurrentPhase: models.PhaseInputRegistration,
	}, perr.ExceptionData)

	// Removing an unknown Alice succeeds.
	err = h.client.RemoveInput(ctx, &models.InputsRemovalRequest{
		RoundID: roundID,
		AliceID: uuid.New(),
	})
	require.NoError(t, err)
}

// TestMalformedRequests checks the answers to requests the server cannot
// decode.
func TestMalformedRequests(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, testCoordinatorConfig(),
		ticker.NewForce(time.Hour))

	resp, err := http.Post(h.url+InputRegistrationPath,
		"application/json", strings.NewReader("{"))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(h.url + StatusPath)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(h.url+"/wabisabi/unknown", "application/json",
		strings.NewReader("{}"))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestNewClient checks the validation of client configurations.
func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   ClientConfig
		valid bool
	}{
		{
			name:  "direct",
			cfg:   ClientConfig{URL: "http://127.0.0.1:37127/"},
			valid: true,
		},
		{
			name: "proxied with isolation",
			cfg: ClientConfig{
				URL:            "http://coordinator.onion",
				Proxy:          "127.0.0.1:9050",
				IsolateStreams: true,
			},
			valid: true,
		},
		{
			name: "unsupported scheme",
			cfg:  ClientConfig{URL: "ftp://127.0.0.1"},
		},
		{
			name: "unparsable",
			cfg:  ClientConfig{URL: "http://[::1"},
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewClient(&tc.cfg)
			if !tc.valid {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.False(t, strings.HasSuffix(c.baseURL, "/"))
		})
	}
}

// TestClientProxyUnreachable checks that requests fail when the proxy
// cannot be reached instead of going out directly.
func TestClientProxyUnreachable(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, testCoordinatorConfig(),
		ticker.NewForce(time.Hour))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	proxyAddr := lis.Addr().String()
	require.NoError(t, lis.Close())

	c, err := NewClient(&ClientConfig{URL: h.url, Proxy: proxyAddr})
	require.NoError(t, err)

	_, err = c.GetStatus(context.Background(), &models.RoundStateRequest{})
	require.Error(t, err)
	_, ok := models.AsProtocolError(err)
	require.False(t, ok)
}

// TestCoinJoinOverHTTP lets a wallet take part in a round of a coordinator
// it only reaches over HTTP.
func TestCoinJoinOverHTTP(t *testing.T) {
	t.Parallel()

	const interval = 20 * time.Millisecond

	cfg := testCoordinatorConfig()
	cfg.MaxInputCountByRound = 2
	cfg.StandardInputRegistrationTimeout = 3 * time.Second
	cfg.ConnectionConfirmationTimeout = 2 * time.Second
	cfg.OutputRegistrationTimeout = 2 * time.Second
	cfg.TransactionSigningTimeout = 2 * time.Second
	cfg.StepInterval = interval

	h := newTestHarness(t, cfg, ticker.New(interval))
	require.NoError(t, h.arena.Start())
	t.Cleanup(h.arena.Stop)

	updater := client.NewRoundStateUpdater(h.client, ticker.New(interval))
	require.NoError(t, updater.Start())
	t.Cleanup(updater.Stop)

	ring := client.NewKeyRing(models.ScriptTypeP2WPKH)
	wallet := make(coins.CoinSet, 0, 2)
	for _, amount := range []btcutil.Amount{5_000_000, 2_000_000} {
		scripts, err := ring.NextScripts(1, models.ScriptTypeP2WPKH)
		require.NoError(t, err)

		op := wire.OutPoint{Hash: chainhash.HashH(scripts[0])}
		out := wire.TxOut{Value: int64(amount), PkScript: scripts[0]}
		h.rpc.On("GetTxOut", op, true).Return(&coordinator.TxOutInfo{
			TxOut:         out,
			Confirmations: 6,
		}, nil).Maybe()

		coin := coins.NewSmartCoin(op, out)
		coin.Height = 100
		wallet = append(wallet, coin)
	}

	clientCfg := client.DefaultConfig()
	clientCfg.Handler = h.client
	clientCfg.Updater = updater
	clientCfg.KeyChain = ring
	clientCfg.OutputProvider = ring
	clientCfg.Random = randomness.NewInsecureRandomFromSeed(5)
	clientCfg.AbsoluteMinInputCount = 1
	clientCfg.AllowSoloCoinjoining = true
	clientCfg.MaximumRequestDelay = 10 * time.Millisecond
	clientCfg.TimeoutMargin = time.Second
	clientCfg.MinRegistrationTime = 2 * time.Second

	cj, err := client.NewCoinJoinClient(clientCfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(),
		30*time.Second)
	defer cancel()

	result, err := cj.StartCoinJoin(ctx,
		func() coins.CoinSet { return wallet }, false)
	require.NoError(t, err)

	success, ok := result.(*client.SuccessfulCoinJoinResult)
	require.True(t, ok, "unexpected result %T", result)
	require.Len(t, success.UnsignedCoinJoin.TxIn, len(success.Coins))

	h.rpc.AssertCalled(t, "SendRawTransaction", mock.Anything)
}
