// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/pkg/unit"
)

// TxOutInfo describes an unspent output known to the backend.
type TxOutInfo struct {
	TxOut         wire.TxOut
	Confirmations int64
	Coinbase      bool
}

// RPCClient is the part of the bitcoind interface the coordinator needs.
type RPCClient interface {
	// GetTxOut returns the unspent output op, or nil if it is spent or
	// unknown.
	GetTxOut(ctx context.Context, op wire.OutPoint,
		includeMempool bool) (*TxOutInfo, error)

	// SendRawTransaction broadcasts tx.
	SendRawTransaction(ctx context.Context,
		tx *wire.MsgTx) (*chainhash.Hash, error)

	// EstimateSmartFee estimates the fee rate confirming within
	// confTarget blocks.
	EstimateSmartFee(ctx context.Context,
		confTarget int64) (unit.SatPerKVByte, error)
}
