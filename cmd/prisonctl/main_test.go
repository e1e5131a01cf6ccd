// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/wabisabi/wabisabi/coordinator"
	"github.com/stretchr/testify/require"
)

// newPrisonDB creates a prison database holding a ban for every outpoint.
func newPrisonDB(t *testing.T, ops ...wire.OutPoint) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "prison.db")
	db, err := walletdb.Create("bdb", dbPath, true, time.Second, false)
	require.NoError(t, err)
	defer db.Close()

	prison, err := coordinator.NewPrison(db, time.Hour, 24*time.Hour)
	require.NoError(t, err)

	for _, op := range ops {
		_, err := prison.Punish(op, coordinator.ReasonFailedToSign,
			chainhash.Hash{9}, time.Now())
		require.NoError(t, err)
	}

	return dbPath
}

func run(t *testing.T, input string, args ...string) (int, string) {
	t.Helper()

	var out strings.Builder
	code := mainInt(args, strings.NewReader(input), &out)

	return code, out.String()
}

// TestPrisonCtl checks listing and releasing banned inputs.
func TestPrisonCtl(t *testing.T) {
	t.Parallel()

	first := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	second := wire.OutPoint{Hash: chainhash.Hash{2}, Index: 5}
	dbPath := newPrisonDB(t, first, second)

	code, out := run(t, "", "--db", dbPath, "--list")
	require.Zero(t, code)
	require.Contains(t, out, first.String())
	require.Contains(t, out, "FailedToSign")
	require.Contains(t, out, "2 banned inputs")

	code, out = run(t, "", "--db", dbPath, "--force",
		"--release", second.String())
	require.Zero(t, code)
	require.Contains(t, out, "Released 1 inputs")

	// Declining leaves the remaining ban in place.
	code, out = run(t, "n\n", "--db", dbPath)
	require.Zero(t, code)
	require.Contains(t, out, "Release 1 inputs from prison?")

	code, out = run(t, "y\n", "--db", dbPath)
	require.Zero(t, code)
	require.Contains(t, out, "Released 1 inputs")

	code, out = run(t, "", "--db", dbPath)
	require.Zero(t, code)
	require.Contains(t, out, "No banned inputs")
}

// TestPrisonCtlErrors checks the invocations refused before the database
// is changed.
func TestPrisonCtlErrors(t *testing.T) {
	t.Parallel()

	dbPath := newPrisonDB(t)

	code, out := run(t, "", "--db", dbPath, "--release", "nope")
	require.Equal(t, 1, code)
	require.Contains(t, out, "Invalid outpoint")

	code, out = run(t, "", "--db", filepath.Join(t.TempDir(), "x.db"))
	require.Equal(t, 1, code)
	require.Contains(t, out, "does not exist")
}
