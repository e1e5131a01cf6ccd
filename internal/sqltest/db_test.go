// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqltest

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS test_table (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		);`
	insertSQL = `INSERT INTO test_table (id, name) VALUES ($1, $2);`
	selectSQL = `SELECT id, name FROM test_table ORDER BY id`
)

// TestDatabaseIsolation checks that every test gets an empty database.
func TestDatabaseIsolation(t *testing.T) {
	RunDatabaseTest(t, func(t *testing.T, dbFactory DBFactory) {
		for i := range 3 {
			t.Run(fmt.Sprintf("TestIsolationDB%d", i), func(t *testing.T) {
				t.Parallel()

				db := dbFactory(t)
				_, err := db.Exec(createTableSQL)
				require.NoError(t, err)

				err = db.QueryRow(selectSQL).Scan()
				require.ErrorIs(t, err, sql.ErrNoRows)

				for j := range 10 {
					_, err = db.Exec(insertSQL, j, "db")
					require.NoError(t, err)
				}

				var (
					id   int
					name string
				)
				err = db.QueryRow(selectSQL).Scan(&id, &name)
				require.NoError(t, err)
				require.Equal(t, 0, id)
				require.Equal(t, "db", name)
			})
		}
	})
}
