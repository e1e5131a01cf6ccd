// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// SQL statements valid for both SQLite and PostgreSQL.
const (
	createCoinJoinsSQL = `
		CREATE TABLE IF NOT EXISTS coinjoins (
			txid TEXT PRIMARY KEY,
			round_id TEXT NOT NULL,
			created_at BIGINT NOT NULL
		);`
	insertCoinJoinSQL = `
		INSERT INTO coinjoins (txid, round_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (txid) DO NOTHING;`
	selectCoinJoinsSQL = `SELECT txid FROM coinjoins`
)

// CoinJoinIDStore records the ids of the coinjoins the coordinator
// broadcast so clients can tell coinjoins apart from other transactions.
type CoinJoinIDStore struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[chainhash.Hash]struct{}
}

// OpenCoinJoinIDStore opens the store at dsn with the database/sql driver
// driver, "sqlite" or "pgx".
func OpenCoinJoinIDStore(ctx context.Context, driver,
	dsn string) (*CoinJoinIDStore, error) {

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	s, err := NewCoinJoinIDStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// NewCoinJoinIDStore creates the store's table in db if needed and loads
// the recorded ids.
func NewCoinJoinIDStore(ctx context.Context,
	db *sql.DB) (*CoinJoinIDStore, error) {

	if _, err := db.ExecContext(ctx, createCoinJoinsSQL); err != nil {
		return nil, fmt.Errorf("unable to create coinjoins table: %w",
			err)
	}

	rows, err := db.QueryContext(ctx, selectCoinJoinsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cache := make(map[chainhash.Hash]struct{})
	for rows.Next() {
		var txid string
		if err := rows.Scan(&txid); err != nil {
			return nil, err
		}
		hash, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			return nil, fmt.Errorf("corrupt coinjoin id %q: %w", txid,
				err)
		}
		cache[*hash] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Debugf("Loaded %d coinjoin %s", len(cache),
		pickNoun(len(cache), "id", "ids"))

	return &CoinJoinIDStore{db: db, cache: cache}, nil
}

// TryAdd records txid and reports whether it was not recorded before.
func (s *CoinJoinIDStore) TryAdd(ctx context.Context, txid,
	roundID chainhash.Hash, now time.Time) (bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[txid]; ok {
		return false, nil
	}

	_, err := s.db.ExecContext(ctx, insertCoinJoinSQL, txid.String(),
		roundID.String(), now.Unix())
	if err != nil {
		return false, err
	}
	s.cache[txid] = struct{}{}

	return true, nil
}

// Contains reports whether txid is a recorded coinjoin.
func (s *CoinJoinIDStore) Contains(txid chainhash.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.cache[txid]
	return ok
}

// Close closes the underlying database.
func (s *CoinJoinIDStore) Close() error {
	return s.db.Close()
}
