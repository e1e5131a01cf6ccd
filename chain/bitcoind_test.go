// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/stretchr/testify/require"
)

// rpcHandler answers one JSON-RPC method with a result or an error.
type rpcHandler func(params []json.RawMessage) (any, *btcjson.RPCError)

// fakeBitcoind is a JSON-RPC server answering the methods it has handlers
// for.
type fakeBitcoind struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    []string
}

func (f *fakeBitcoind) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     json.RawMessage   `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, req.Method)
	handler, ok := f.handlers[req.Method]
	f.mu.Unlock()

	var (
		result any
		rpcErr *btcjson.RPCError
	)
	if ok {
		result, rpcErr = handler(req.Params)
	} else {
		rpcErr = btcjson.NewRPCError(btcjson.ErrRPCMethodNotFound.Code,
			"Method not found")
	}

	status := http.StatusOK
	if rpcErr != nil {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"result": result,
		"error":  rpcErr,
		"id":     req.ID,
	})
}

func (f *fakeBitcoind) called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.calls {
		if m == method {
			return true
		}
	}

	return false
}

// regtestHandlers returns the handlers of a regtest node that knows no
// outputs.
func regtestHandlers() map[string]rpcHandler {
	return map[string]rpcHandler{
		"getblockhash": func([]json.RawMessage) (any, *btcjson.RPCError) {
			return chaincfg.RegressionNetParams.GenesisHash.String(),
				nil
		},
		"getnetworkinfo": func([]json.RawMessage) (any,
			*btcjson.RPCError) {

			return map[string]any{
				"version":    270000,
				"subversion": "/Satoshi:27.0.0/",
			}, nil
		},
		"gettxout": func([]json.RawMessage) (any, *btcjson.RPCError) {
			return nil, nil
		},
	}
}

func newTestClient(t *testing.T, params *chaincfg.Params,
	handlers map[string]rpcHandler) (*BitcoindClient, *fakeBitcoind) {

	t.Helper()

	fake := &fakeBitcoind{handlers: handlers}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := NewBitcoindClient(&BitcoindConfig{
		ChainParams: params,
		Host:        strings.TrimPrefix(server.URL, "http://"),
		User:        "user",
		Pass:        "pass",
		DisableTLS:  true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Stop)

	return client, fake
}

// TestBitcoindStart checks that the node's network is verified.
func TestBitcoindStart(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, &chaincfg.RegressionNetParams,
		regtestHandlers())
	require.NoError(t, client.Start())

	client, _ = newTestClient(t, &chaincfg.MainNetParams,
		regtestHandlers())
	require.ErrorContains(t, client.Start(), "expected network")
}

// TestBitcoindGetTxOut checks the conversion of gettxout results.
func TestBitcoindGetTxOut(t *testing.T) {
	t.Parallel()

	pkScript, _ := hex.DecodeString(
		"0014751e76e8199196d454941c45d1b3a323f1433bd6",
	)
	known := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 3}

	handlers := regtestHandlers()
	handlers["gettxout"] = func(params []json.RawMessage) (any,
		*btcjson.RPCError) {

		var txid string
		if err := json.Unmarshal(params[0], &txid); err != nil ||
			txid != known.Hash.String() {

			return nil, nil
		}

		return map[string]any{
			"bestblock":     chainhash.Hash{}.String(),
			"confirmations": 12,
			"value":         0.5,
			"scriptPubKey": map[string]any{
				"hex":  hex.EncodeToString(pkScript),
				"type": "witness_v0_keyhash",
			},
			"coinbase": true,
		}, nil
	}

	client, _ := newTestClient(t, &chaincfg.RegressionNetParams, handlers)
	ctx := context.Background()

	info, err := client.GetTxOut(ctx, known, true)
	require.NoError(t, err)
	require.NotNil(t, info)
	require.EqualValues(t, 50_000_000, info.TxOut.Value)
	require.Equal(t, pkScript, info.TxOut.PkScript)
	require.EqualValues(t, 12, info.Confirmations)
	require.True(t, info.Coinbase)

	spent := wire.OutPoint{Hash: chainhash.Hash{2}}
	info, err = client.GetTxOut(ctx, spent, true)
	require.NoError(t, err)
	require.Nil(t, info)
}

// TestBitcoindEstimateSmartFee checks that fee rates are converted to
// sat/kvB and missing estimates are reported.
func TestBitcoindEstimateSmartFee(t *testing.T) {
	t.Parallel()

	handlers := regtestHandlers()
	handlers["estimatesmartfee"] = func(params []json.RawMessage) (any,
		*btcjson.RPCError) {

		var target int64
		_ = json.Unmarshal(params[0], &target)
		if target > 100 {
			return map[string]any{
				"errors": []string{"Insufficient data"},
				"blocks": 0,
			}, nil
		}

		return map[string]any{
			"feerate": 0.00012,
			"blocks":  target,
		}, nil
	}

	client, _ := newTestClient(t, &chaincfg.RegressionNetParams, handlers)
	ctx := context.Background()

	rate, err := client.EstimateSmartFee(ctx, 6)
	require.NoError(t, err)
	require.True(t, rate.Equal(unit.SatsPerKVByte(12_000)), rate)

	_, err = client.EstimateSmartFee(ctx, 108)
	require.ErrorIs(t, err, ErrNoFeeEstimate)
	require.ErrorContains(t, err, "Insufficient data")
}

// TestBitcoindSendRawTransaction checks that rejections are mapped and a
// transaction the node already has counts as broadcast.
func TestBitcoindSendRawTransaction(t *testing.T) {
	t.Parallel()

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{3}},
		nil, nil))
	tx.AddTxOut(wire.NewTxOut(10_000, []byte{0x51}))

	testCases := []struct {
		name    string
		message string
		code    int
		err     error
	}{
		{
			name:    "already in mempool",
			message: "txn-already-in-mempool",
			code:    -27,
		},
		{
			name:    "already confirmed",
			message: "Transaction already in block chain",
			code:    -27,
		},
		{
			name:    "missing inputs",
			message: "bad-txns-inputs-missingorspent",
			code:    -25,
			err:     ErrMissingInputs,
		},
		{
			name:    "fee too low",
			message: "min relay fee not met, 100 < 141",
			code:    -26,
			err:     ErrMinRelayFeeNotMet,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handlers := regtestHandlers()
			handlers["sendrawtransaction"] = func([]json.RawMessage) (
				any, *btcjson.RPCError) {

				return nil, btcjson.NewRPCError(
					btcjson.RPCErrorCode(tc.code), tc.message,
				)
			}
			client, fake := newTestClient(
				t, &chaincfg.RegressionNetParams, handlers,
			)

			ctx, cancel := context.WithTimeout(
				context.Background(), 10*time.Second,
			)
			defer cancel()

			hash, err := client.SendRawTransaction(ctx, tx)
			require.True(t, fake.called("sendrawtransaction"))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tx.TxHash(), *hash)
		})
	}
}

// TestReceiveContext checks that a call outliving its context is
// abandoned.
func TestReceiveContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)

	_, err := receive(ctx, func() (int, error) {
		<-block
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
