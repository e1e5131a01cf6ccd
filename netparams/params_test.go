// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	t.Parallel()

	p, err := ByName(chaincfg.RegressionNetParams.Name)
	require.NoError(t, err)
	require.Equal(t, &RegressionNetParams, p)

	p, err = ByName("testnet4")
	require.NoError(t, err)
	require.Equal(t, "48332", p.RPCClientPort)

	_, err = ByName("nonet")
	require.Error(t, err)
}
