// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain connects the coordinator to a bitcoind backend over its
// JSON-RPC interface.
package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/btcsuite/wabisabi/wabisabi/coordinator"
)

const (
	// bitcoindStartTimeout is how long we wait for bitcoind to finish
	// loading its block index on startup.
	bitcoindStartTimeout = 30 * time.Second

	// errStillLoadingCode is the error code returned when an RPC request
	// is made but bitcoind is still in the process of loading or
	// verifying blocks.
	errStillLoadingCode = "-28"
)

// ErrNoFeeEstimate is returned when bitcoind has not seen enough blocks to
// estimate a fee rate.
var ErrNoFeeEstimate = errors.New("no fee estimate available")

// BitcoindConfig contains all of the parameters required to establish a
// connection to a bitcoind's RPC.
type BitcoindConfig struct {
	// ChainParams are the chain parameters the bitcoind server is running
	// on.
	ChainParams *chaincfg.Params

	// Host is the IP address and port of the bitcoind's RPC server.
	Host string

	// User is the username to use to authenticate to bitcoind's RPC
	// server.
	User string

	// Pass is the passphrase to use to authenticate to bitcoind's RPC
	// server.
	Pass string

	// Certificates are the PEM encoded root certificates the server's
	// certificate is verified against. The system roots are used when
	// empty.
	Certificates []byte

	// DisableTLS connects over plain HTTP.
	DisableTLS bool
}

// BitcoindClient checks inputs against, estimates fees with and broadcasts
// coinjoins to a bitcoind node.
type BitcoindClient struct {
	cfg    *BitcoindConfig
	client *rpcclient.Client

	stopOnce sync.Once
	quit     chan struct{}
}

// A compile-time assertion to ensure that BitcoindClient implements
// coordinator.RPCClient.
var _ coordinator.RPCClient = (*BitcoindClient)(nil)

// NewBitcoindClient creates a client for the bitcoind node described by
// cfg. No connection is made until Start is called.
func NewBitcoindClient(cfg *BitcoindConfig) (*BitcoindClient, error) {
	clientCfg := &rpcclient.ConnConfig{
		Host:                cfg.Host,
		User:                cfg.User,
		Pass:                cfg.Pass,
		Certificates:        cfg.Certificates,
		DisableTLS:          cfg.DisableTLS,
		DisableConnectOnNew: true,
		HTTPPostMode:        true,
	}
	client, err := rpcclient.New(clientCfg, nil)
	if err != nil {
		return nil, err
	}

	return &BitcoindClient{
		cfg:    cfg,
		client: client,
		quit:   make(chan struct{}),
	}, nil
}

// Start verifies that the node is reachable and running on the expected
// network.
func (c *BitcoindClient) Start() error {
	hash, err := c.getBlockHashDuringStartup()
	if err != nil {
		return err
	}

	if !hash.IsEqual(c.cfg.ChainParams.GenesisHash) {
		return fmt.Errorf("expected network %v with genesis %v, got "+
			"genesis %v", c.cfg.ChainParams.Name,
			c.cfg.ChainParams.GenesisHash, hash)
	}

	log.Infof("Connected to bitcoind at %v on %v", c.cfg.Host,
		c.cfg.ChainParams.Name)

	return nil
}

// Stop shuts the RPC client down.
func (c *BitcoindClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		c.client.Shutdown()
		c.client.WaitForShutdown()
	})
}

// getBlockHashDuringStartup fetches the genesis hash, retrying while
// bitcoind is still loading.
func (c *BitcoindClient) getBlockHashDuringStartup() (*chainhash.Hash, error) {
	hash, err := c.client.GetBlockHash(0)

	// Exit early if there's no error.
	if err == nil {
		return hash, nil
	}

	// If the error doesn't start with "-28", it's an unexpected error so
	// we exit with it.
	if !strings.Contains(err.Error(), errStillLoadingCode) {
		return nil, err
	}

	timeout := time.After(bitcoindStartTimeout)

	// Otherwise, we'd retry calling getblockhash or time out.
	for {
		select {
		case <-timeout:
			return nil, ErrBitcoindStartTimeout

		case <-c.quit:
			return nil, errors.New("bitcoind client shutting down")

		// Retry every second.
		case <-time.After(time.Second):
			hash, err = c.client.GetBlockHash(0)
			if err == nil {
				return hash, nil
			}

			if !strings.Contains(err.Error(), errStillLoadingCode) {
				return nil, err
			}
		}
	}
}

// receive runs a blocking RPC call and returns its result, or the context's
// error once it is done.
func receive[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	c := make(chan result, 1)
	go func() {
		v, err := call()
		c <- result{v, err}
	}()

	select {
	case r := <-c:
		return r.value, r.err

	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetTxOut returns the unspent output op, or nil if it is spent or unknown.
func (c *BitcoindClient) GetTxOut(ctx context.Context, op wire.OutPoint,
	includeMempool bool) (*coordinator.TxOutInfo, error) {

	res, err := receive(ctx, func() (*btcjson.GetTxOutResult, error) {
		return c.client.GetTxOut(&op.Hash, op.Index, includeMempool)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	value, err := btcutil.NewAmount(res.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid value of %v: %w", op, err)
	}
	pkScript, err := hex.DecodeString(res.ScriptPubKey.Hex)
	if err != nil {
		return nil, fmt.Errorf("invalid script of %v: %w", op, err)
	}

	return &coordinator.TxOutInfo{
		TxOut: wire.TxOut{
			Value:    int64(value),
			PkScript: pkScript,
		},
		Confirmations: res.Confirmations,
		Coinbase:      res.Coinbase,
	}, nil
}

// SendRawTransaction broadcasts tx. A transaction the node already knows is
// not an error.
func (c *BitcoindClient) SendRawTransaction(ctx context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	hash, err := receive(ctx, func() (*chainhash.Hash, error) {
		return c.client.SendRawTransaction(tx, false)
	})
	if err == nil {
		return hash, nil
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {

		return nil, err
	}

	err = MapRPCErr(err)
	switch {
	case errors.Is(err, ErrTxAlreadyInMempool),
		errors.Is(err, ErrTxAlreadyKnown),
		errors.Is(err, ErrTxAlreadyConfirmed):

		txid := tx.TxHash()
		log.Debugf("Transaction %v already known: %v", txid, err)

		return &txid, nil
	}

	return nil, err
}

// EstimateSmartFee estimates the fee rate confirming within confTarget
// blocks.
func (c *BitcoindClient) EstimateSmartFee(ctx context.Context,
	confTarget int64) (unit.SatPerKVByte, error) {

	mode := btcjson.EstimateModeConservative
	res, err := receive(ctx, func() (*btcjson.EstimateSmartFeeResult,
		error) {

		return c.client.EstimateSmartFee(confTarget, &mode)
	})
	if err != nil {
		return unit.SatPerKVByte{}, err
	}
	if res.FeeRate == nil {
		return unit.SatPerKVByte{}, fmt.Errorf("%w: %v",
			ErrNoFeeEstimate, strings.Join(res.Errors, ", "))
	}

	// The fee rate is reported in BTC/kvB.
	rate, err := btcutil.NewAmount(*res.FeeRate)
	if err != nil {
		return unit.SatPerKVByte{}, err
	}

	return unit.SatsPerKVByte(int64(rate)), nil
}
