// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sqltest provides isolated SQL databases for tests of the stores
// built on database/sql.
package sqltest

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/require"
)

// DBFactory creates a fresh database for a test. The database is removed
// when the test ends.
type DBFactory func(t testing.TB) *sql.DB

// DBTestFunc is a test run against every supported database.
type DBTestFunc func(t *testing.T, dbFactory DBFactory)

// RunDatabaseTest runs testFunc against SQLite and, when a server is
// configured through PostgresDSNEnv, against PostgreSQL.
func RunDatabaseTest(t *testing.T, testFunc DBTestFunc) {
	t.Helper()

	testCases := []struct {
		name      string
		dbFactory DBFactory
	}{
		{
			name:      "SQLite",
			dbFactory: NewSQLiteDB,
		},
		{
			name:      "Postgres",
			dbFactory: NewPostgresDB,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			testFunc(t, tc.dbFactory)
		})
	}
}

// deterministicTestID derives a short database name from the test name so
// cached test results stay valid.
func deterministicTestID(t testing.TB) string {
	t.Helper()

	h := fnv.New32a()
	_, err := h.Write([]byte(t.Name()))
	require.NoError(t, err)

	return fmt.Sprintf("%08x", h.Sum32())
}
