// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

// TestNewSubLogger checks that sub loggers come from the daemon's backend.
func TestNewSubLogger(t *testing.T) {
	t.Parallel()

	var requested []string
	gen := func(subsystem string) btclog.Logger {
		requested = append(requested, subsystem)
		return btclog.Disabled
	}

	logger := NewSubLogger("TEST", gen)
	require.NotNil(t, logger)

	if LoggingType == LogTypeDefault {
		require.Equal(t, []string{"TEST"}, requested)
		require.Equal(t, btclog.Disabled, NewSubLogger("TEST", nil))
	}

	require.Equal(t, "default", LogTypeDefault.String())
	require.Equal(t, "unknown", LogType(9).String())
}
