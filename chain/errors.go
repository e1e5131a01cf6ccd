// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBitcoindStartTimeout is returned when bitcoind is still loading its
// block index once the startup timeout expired.
var ErrBitcoindStartTimeout = errors.New("bitcoind start timeout")

// RPCErr is an error bitcoind rejects a transaction with.
type RPCErr uint32

const (
	// ErrMissingInputs is returned when an input is unknown or spent.
	ErrMissingInputs RPCErr = iota

	// ErrTxAlreadyInMempool is returned when the transaction is already
	// in the mempool.
	ErrTxAlreadyInMempool

	// ErrTxAlreadyKnown is returned when the transaction was already
	// seen by the node.
	ErrTxAlreadyKnown

	// ErrTxAlreadyConfirmed is returned when the transaction is already
	// in the chain.
	ErrTxAlreadyConfirmed

	// ErrInsufficientFee is returned when the fee does not cover the
	// node's relay policy.
	ErrInsufficientFee

	// ErrMempoolMinFeeNotMet is returned when the fee rate is below the
	// node's dynamic mempool minimum.
	ErrMempoolMinFeeNotMet

	// ErrMinRelayFeeNotMet is returned when the fee rate is below the
	// node's minimum relay fee.
	ErrMinRelayFeeNotMet

	// ErrNonStandard is returned when the transaction breaks the node's
	// standardness rules.
	ErrNonStandard

	// ErrUndefined is returned for rejections that are not mapped.
	ErrUndefined

	// errSentinel marks the end of the error codes.
	errSentinel
)

// Error returns a human-readable string for the error.
func (r RPCErr) Error() string {
	switch r {
	case ErrMissingInputs:
		return "missing inputs"

	case ErrTxAlreadyInMempool:
		return "txn already in mempool"

	case ErrTxAlreadyKnown:
		return "txn already known"

	case ErrTxAlreadyConfirmed:
		return "transaction already in block chain"

	case ErrInsufficientFee:
		return "insufficient fee"

	case ErrMempoolMinFeeNotMet:
		return "mempool min fee not met"

	case ErrMinRelayFeeNotMet:
		return "min relay fee not met"

	case ErrNonStandard:
		return "non-standard transaction"

	case ErrUndefined:
		return "undefined error"
	}

	return "unknown error"
}

// bitcoindErrors maps the rejection reasons bitcoind reports to their
// RPCErr. A reason may be reported with dashes or spaces.
var bitcoindErrors = []struct {
	match string
	err   RPCErr
}{
	{"bad-txns-inputs-missingorspent", ErrMissingInputs},
	{"missing-inputs", ErrMissingInputs},
	{"txn-already-in-mempool", ErrTxAlreadyInMempool},
	{"txn-already-known", ErrTxAlreadyKnown},
	{"transaction already in block chain", ErrTxAlreadyConfirmed},
	{"insufficient fee", ErrInsufficientFee},
	{"mempool min fee not met", ErrMempoolMinFeeNotMet},
	{"min relay fee not met", ErrMinRelayFeeNotMet},
	{"non-mandatory-script-verify-flag", ErrNonStandard},
	{"tx-size", ErrNonStandard},
	{"dust", ErrNonStandard},
}

// MapRPCErr maps an error returned by bitcoind's sendrawtransaction to an
// RPCErr. The original error is kept in the chain.
func MapRPCErr(err error) error {
	if err == nil {
		return nil
	}

	for _, e := range bitcoindErrors {
		if matchErrStr(err, e.match) {
			return fmt.Errorf("%w: %v", e.err, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrUndefined, err)
}

// matchErrStr takes an error returned from the RPC client and matches it
// against the specified string. Dashes are replaced with spaces and the
// match is case insensitive.
func matchErrStr(err error, s string) bool {
	errStr := strings.ReplaceAll(strings.ToLower(err.Error()), "-", " ")
	s = strings.ReplaceAll(strings.ToLower(s), "-", " ")

	return strings.Contains(errStr, s)
}
