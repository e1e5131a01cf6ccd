// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqltest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// SQLiteDriver is the database/sql driver name of SQLite.
const SQLiteDriver = "sqlite"

// NewSQLiteDB creates a fresh file backed SQLite database in a temporary
// directory.
func NewSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "wabisabitest_"+deterministicTestID(t)+
		".sqlite")
	dsn := "file:" + dbPath + "?mode=rwc&cache=shared&_fk=1"

	db, err := sql.Open(SQLiteDriver, dsn)
	require.NoError(t, err, "failed to open SQLite database")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		require.NoError(t, err, "failed to ping SQLite database")
	}

	t.Cleanup(func() {
		err := db.Close()
		assert.NoError(t, err, "failed to close SQLite database")

		err = os.Remove(dbPath)
		assert.NoError(t, err, "failed to remove SQLite database")
	})

	return db
}
