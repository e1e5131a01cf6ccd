// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMatchErrStr checks that `matchErrStr` can correctly replace the dashes
// with spaces and turn title cases into lowercases for a given error and match
// it against the specified string pattern.
func TestMatchErrStr(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		bitcoindErr error
		matchStr    string
		matched     bool
	}{
		{
			name:        "error without dashes",
			bitcoindErr: errors.New("missing inputs"),
			matchStr:    "missing inputs",
			matched:     true,
		},
		{
			name:        "match str with dashes",
			bitcoindErr: errors.New("missing inputs"),
			matchStr:    "missing-inputs",
			matched:     true,
		},
		{
			name:        "error with title case and dash",
			bitcoindErr: errors.New("-25: Missing-Inputs"),
			matchStr:    "missing inputs",
			matched:     true,
		},
		{
			name:        "unmatched error",
			bitcoindErr: errors.New("missing inputs"),
			matchStr:    "missingorspent",
			matched:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			matched := matchErrStr(tc.bitcoindErr, tc.matchStr)
			require.Equal(t, tc.matched, matched)
		})
	}
}

// TestBitcoindErrorSentinel checks that all defined RPCErr errors are added
// to the method `Error`.
func TestBitcoindErrorSentinel(t *testing.T) {
	t.Parallel()

	rt := require.New(t)

	for i := uint32(0); i < uint32(errSentinel); i++ {
		err := RPCErr(i)
		rt.NotEqualf(err.Error(), "unknown error", "error code %d is "+
			"not defined, make sure to update it inside the Error "+
			"method", i)
	}
}

// TestMapRPCErr checks that rejections keep their original message.
func TestMapRPCErr(t *testing.T) {
	t.Parallel()

	require.NoError(t, MapRPCErr(nil))

	err := MapRPCErr(errors.New("-26: mempool min fee not met"))
	require.ErrorIs(t, err, ErrMempoolMinFeeNotMet)
	require.ErrorContains(t, err, "-26")

	err = MapRPCErr(errors.New("-1: something else"))
	require.ErrorIs(t, err, ErrUndefined)
}
