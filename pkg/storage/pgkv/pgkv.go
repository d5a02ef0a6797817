// Copyright 2025 Certen Protocol
//
// Package pgkv is a PostgreSQL-backed storage.Facade, one SQL transaction
// per Facade transaction. It demonstrates a durable host-supplied store
// without claiming HSM backing.
package pgkv

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/certen-bridge/lightcore/pkg/storage"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS lightcore_kv (
	namespace   TEXT NOT NULL,
	key         BYTEA NOT NULL,
	value       BYTEA NOT NULL,
	sensitivity SMALLINT NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, key)
)`

// Store is a PostgreSQL-backed storage.Facade.
type Store struct {
	db        *sql.DB
	namespace string
	logger    *log.Logger
}

// Open connects to Postgres via the given DSN and ensures the backing
// table exists. namespace partitions the table for multiple bridge
// instances sharing one database.
func Open(dsn, namespace string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgkv: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pgkv: ping: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("pgkv: create table: %w", err)
	}
	return &Store{
		db:        db,
		namespace: namespace,
		logger:    log.New(log.Writer(), "[pgkv] ", log.LstdFlags),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Backend(err)
	}
	return &tx{sqlTx: sqlTx, namespace: s.namespace, ctx: ctx}, nil
}

type tx struct {
	sqlTx     *sql.Tx
	namespace string
	ctx       context.Context
	closed    bool
}

func (t *tx) Get(key []byte) ([]byte, error) {
	row := t.sqlTx.QueryRowContext(t.ctx,
		`SELECT value FROM lightcore_kv WHERE namespace = $1 AND key = $2`,
		t.namespace, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Backend(err)
	}
	return value, nil
}

func (t *tx) Put(key, value []byte, sensitivity storage.Sensitivity) error {
	_, err := t.sqlTx.ExecContext(t.ctx, `
		INSERT INTO lightcore_kv (namespace, key, value, sensitivity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, key) DO UPDATE SET value = $3, sensitivity = $4`,
		t.namespace, key, value, int16(sensitivity))
	if err != nil {
		return storage.Backend(err)
	}
	return nil
}

func (t *tx) Delete(key []byte) error {
	_, err := t.sqlTx.ExecContext(t.ctx,
		`DELETE FROM lightcore_kv WHERE namespace = $1 AND key = $2`,
		t.namespace, key)
	if err != nil {
		return storage.Backend(err)
	}
	return nil
}

func (t *tx) Commit() error {
	if t.closed {
		return storage.ErrTransactionAborted
	}
	t.closed = true
	if err := t.sqlTx.Commit(); err != nil {
		return storage.Backend(err)
	}
	return nil
}

func (t *tx) Abort() error {
	if t.closed {
		return storage.ErrTransactionAborted
	}
	t.closed = true
	if err := t.sqlTx.Rollback(); err != nil {
		return storage.Backend(err)
	}
	return nil
}
