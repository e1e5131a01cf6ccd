// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/netparams"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

// mockRPC is a mock implementation of the RPCClient interface.
type mockRPC struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockRPC implements RPCClient.
var _ RPCClient = (*mockRPC)(nil)

// GetTxOut implements the RPCClient interface.
func (m *mockRPC) GetTxOut(_ context.Context, op wire.OutPoint,
	includeMempool bool) (*TxOutInfo, error) {

	args := m.Called(op, includeMempool)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*TxOutInfo), args.Error(1)
}

// SendRawTransaction implements the RPCClient interface.
func (m *mockRPC) SendRawTransaction(_ context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	args := m.Called(tx)
	if err := args.Error(0); err != nil {
		return nil, err
	}

	txid := tx.TxHash()
	return &txid, nil
}

// EstimateSmartFee implements the RPCClient interface.
func (m *mockRPC) EstimateSmartFee(_ context.Context,
	confTarget int64) (unit.SatPerKVByte, error) {

	args := m.Called(confTarget)
	return args.Get(0).(unit.SatPerKVByte), args.Error(1)
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func testConfig() *Config {
	cfg := DefaultConfig(&netparams.RegressionNetParams)
	cfg.MaxInputCountByRound = 2
	cfg.MinInputCountByRoundMultiplier = 0.5
	cfg.AllowedInputAmounts = models.MoneyRange{
		Min: 5_000, Max: btcutil.SatoshiPerBitcoin,
	}
	cfg.AllowedOutputAmounts = cfg.AllowedInputAmounts
	cfg.MaxSuggestedAmountBase = btcutil.SatoshiPerBitcoin / 4

	return cfg
}

func newTestPrison(t *testing.T) *Prison {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "prison.db")
	db, err := walletdb.Create("bdb", dbPath, true, time.Second, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	p, err := NewPrison(db, time.Hour, 30*24*time.Hour)
	require.NoError(t, err)

	return p
}

// testHarness is an arena with mocked collaborators.
type testHarness struct {
	t      *testing.T
	arena  *Arena
	rpc    *mockRPC
	clock  *testClock
	ticker *ticker.Force
	rnd    randomness.WasabiRandom
}

func newTestHarness(t *testing.T, cfg *Config) *testHarness {
	t.Helper()

	rpc := &mockRPC{}
	rpc.On("EstimateSmartFee", cfg.ConfirmationTarget).Return(
		unit.SatsPerKVByte(10_000), nil,
	).Maybe()

	clock := newTestClock()
	force := ticker.NewForce(time.Hour)

	arena, err := NewArena(ArenaConfig{
		Config:     cfg,
		RPC:        rpc,
		Prison:     newTestPrison(t),
		Random:     randomness.NewInsecureRandomFromSeed(1),
		Clock:      clock.Now,
		StepTicker: force,
	})
	require.NoError(t, err)

	return &testHarness{
		t:      t,
		arena:  arena,
		rpc:    rpc,
		clock:  clock,
		ticker: force,
		rnd:    randomness.NewInsecureRandomFromSeed(2),
	}
}

func (h *testHarness) step() {
	h.t.Helper()
	require.NoError(h.t, h.arena.Step(context.Background()))
}

// registering returns the standard round accepting inputs.
func (h *testHarness) registering() *models.RoundState {
	h.t.Helper()

	for _, s := range h.arena.Rounds() {
		if s.Phase == models.PhaseInputRegistration && !s.IsBlame() {
			return s
		}
	}
	h.t.Fatal("no round in input registration")

	return nil
}

// round returns the current state of the round with id.
func (h *testHarness) round(id chainhash.Hash) *models.RoundState {
	h.t.Helper()

	for _, s := range h.arena.Rounds() {
		if s.ID == id {
			return s
		}
	}
	h.t.Fatalf("round %v not found", id)

	return nil
}

// testAlice is a participant holding one P2WPKH coin.
type testAlice struct {
	priv     *btcec.PrivateKey
	pkScript []byte
	coin     models.Coin
	id       uuid.UUID

	amountClient *wabisabi.Client
	vsizeClient  *wabisabi.Client

	zeroAmount []*wabisabi.Credential
	zeroVsize  []*wabisabi.Credential
	realAmount []*wabisabi.Credential
	realVsize  []*wabisabi.Credential
}

func p2wpkhScript(t *testing.T, pub *btcec.PublicKey) []byte {
	t.Helper()

	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pub.SerializeCompressed())).
		Script()
	require.NoError(t, err)

	return pkScript
}

// newUnknownAlice creates a participant whose coin the backend does not
// know about.
func newUnknownAlice(t *testing.T, amount btcutil.Amount) *testAlice {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pkScript := p2wpkhScript(t, priv.PubKey())

	return &testAlice{
		priv:     priv,
		pkScript: pkScript,
		coin: models.Coin{
			Outpoint: wire.OutPoint{Hash: chainhash.HashH(pkScript)},
			TxOut: wire.TxOut{
				Value:    int64(amount),
				PkScript: pkScript,
			},
		},
	}
}

// newTestAlice creates a participant whose coin the backend reports as
// confirmed.
func (h *testHarness) newTestAlice(amount btcutil.Amount) *testAlice {
	h.t.Helper()

	a := newUnknownAlice(h.t, amount)
	h.rpc.On("GetTxOut", a.coin.Outpoint, true).Return(&TxOutInfo{
		TxOut:         a.coin.TxOut,
		Confirmations: 6,
	}, nil).Maybe()

	return a
}

func (h *testHarness) zeroRequest(c *wabisabi.Client) (
	*wabisabi.CredentialsRequest, *wabisabi.ResponseValidation) {

	h.t.Helper()

	req, v, err := c.CreateRequestForZeroAmount()
	require.NoError(h.t, err)

	return req, v
}

func (h *testHarness) handle(c *wabisabi.Client,
	resp *wabisabi.CredentialsResponse,
	v *wabisabi.ResponseValidation) []*wabisabi.Credential {

	h.t.Helper()

	creds, err := c.HandleResponse(resp, v)
	require.NoError(h.t, err)

	return creds
}

func (h *testHarness) registerInput(a *testAlice,
	s *models.RoundState) error {

	h.t.Helper()

	a.amountClient = s.CreateAmountCredentialClient(h.rnd)
	a.vsizeClient = s.CreateVsizeCredentialClient(h.rnd)

	proof, err := models.NewOwnershipProof(a.priv, a.pkScript,
		models.CommitmentData(s.Parameters().CoordinationIdentifier,
			s.ID))
	require.NoError(h.t, err)

	amountReq, amountV := h.zeroRequest(a.amountClient)
	vsizeReq, vsizeV := h.zeroRequest(a.vsizeClient)

	resp, err := h.arena.RegisterInput(context.Background(),
		&models.InputRegistrationRequest{
			RoundID:                      s.ID,
			Input:                        a.coin.Outpoint,
			OwnershipProof:               proof,
			ZeroAmountCredentialRequests: amountReq,
			ZeroVsizeCredentialRequests:  vsizeReq,
		})
	if err != nil {
		return err
	}

	a.id = resp.AliceID
	a.zeroAmount = h.handle(a.amountClient, resp.AmountCredentials,
		amountV)
	a.zeroVsize = h.handle(a.vsizeClient, resp.VsizeCredentials, vsizeV)

	return nil
}

// confirm confirms the connection of a, requesting real credentials when
// the round is in connection confirmation.
func (h *testHarness) confirm(a *testAlice, s *models.RoundState) error {
	h.t.Helper()

	params := s.Parameters()
	zeroAmountReq, zeroAmountV := h.zeroRequest(a.amountClient)
	zeroVsizeReq, zeroVsizeV := h.zeroRequest(a.vsizeClient)

	amount := params.InputEffectiveValue(a.coin.Amount(),
		models.ScriptTypeP2WPKH)
	realAmountReq, realAmountV, err := a.amountClient.CreateRequest(
		[]int64{int64(amount)}, a.zeroAmount,
	)
	require.NoError(h.t, err)
	realVsizeReq, realVsizeV, err := a.vsizeClient.CreateRequest(
		[]int64{params.VsizeAllocation(models.ScriptTypeP2WPKH)},
		a.zeroVsize,
	)
	require.NoError(h.t, err)

	resp, err := h.arena.ConfirmConnection(context.Background(),
		&models.ConnectionConfirmationRequest{
			RoundID:                      s.ID,
			AliceID:                      a.id,
			ZeroAmountCredentialRequests: zeroAmountReq,
			ZeroVsizeCredentialRequests:  zeroVsizeReq,
			RealAmountCredentialRequests: realAmountReq,
			RealVsizeCredentialRequests:  realVsizeReq,
		})
	if err != nil {
		return err
	}

	a.zeroAmount = h.handle(a.amountClient, resp.ZeroAmountCredentials,
		zeroAmountV)
	a.zeroVsize = h.handle(a.vsizeClient, resp.ZeroVsizeCredentials,
		zeroVsizeV)
	if resp.IsConfirmed() {
		a.realAmount = h.handle(a.amountClient,
			resp.RealAmountCredentials, realAmountV)
		a.realVsize = h.handle(a.vsizeClient,
			resp.RealVsizeCredentials, realVsizeV)
	}

	return nil
}

// registerOutput spends all real credentials of a on one output to
// pkScript.
func (h *testHarness) registerOutput(a *testAlice, s *models.RoundState,
	pkScript []byte) error {

	h.t.Helper()

	outputVsize := int64(models.ScriptTypeP2WPKH.OutputVsize())
	var vsizeLeft int64
	for _, c := range a.realVsize {
		vsizeLeft += c.Value
	}

	amountReq, _, err := a.amountClient.CreateRequest(nil, a.realAmount)
	require.NoError(h.t, err)
	vsizeReq, _, err := a.vsizeClient.CreateRequest(
		[]int64{vsizeLeft - outputVsize}, a.realVsize,
	)
	require.NoError(h.t, err)

	return h.arena.RegisterOutput(context.Background(),
		&models.OutputRegistrationRequest{
			RoundID:                  s.ID,
			Script:                   pkScript,
			AmountCredentialRequests: amountReq,
			VsizeCredentialRequests:  vsizeReq,
		})
}

// sign signs the input of a in the round's coinjoin.
func (h *testHarness) sign(a *testAlice, s *models.RoundState) error {
	h.t.Helper()

	signing, ok := s.Signing()
	require.True(h.t, ok)

	index, ok := signing.InputIndex(a.coin.Outpoint)
	require.True(h.t, ok)

	tx := signing.CreateUnsignedTransaction()
	sigHashes := txscript.NewTxSigHashes(tx, signing.PrevOutputFetcher())
	witness, err := txscript.WitnessSignature(tx, sigHashes, index,
		a.coin.TxOut.Value, a.pkScript, txscript.SigHashAll, a.priv,
		true)
	require.NoError(h.t, err)

	return h.arena.SignTransaction(context.Background(),
		&models.TransactionSignaturesRequest{
			RoundID:    s.ID,
			InputIndex: index,
			Witness:    witness,
		})
}
