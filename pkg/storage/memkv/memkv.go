// Copyright 2025 Certen Protocol
//
// Package memkv is an in-memory storage.Facade backed by CometBFT's
// embedded memdb, used by engine tests and local development. It is not a
// production backend; it exists to give the engine something real and
// dependency-free to run its transactions against.
package memkv

import (
	"context"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen-bridge/lightcore/pkg/storage"
)

// Store wraps a dbm.DB (memdb by default) and exposes storage.Facade.
type Store struct {
	db dbm.DB
}

// New creates a Store backed by a fresh in-memory database.
func New() *Store {
	return &Store{db: dbm.NewMemDB()}
}

// NewWithDB wraps an existing dbm.DB, allowing callers to swap in
// goleveldb or another CometBFT-compatible backend without changing the
// engine's wiring.
func NewWithDB(db dbm.DB) *Store {
	return &Store{db: db}
}

// Begin implements storage.Facade. The context is not consulted: memdb
// operations are synchronous and local, so there is nothing to cancel.
func (s *Store) Begin(_ context.Context) (storage.Tx, error) {
	return s.beginTx(), nil
}

type tx struct {
	db      dbm.DB
	pending map[string][]byte
	deleted map[string]struct{}
	closed  bool
}

func (s *Store) beginTx() *tx {
	return &tx{
		db:      s.db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (t *tx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, gone := t.deleted[k]; gone {
		return nil, storage.ErrNotFound
	}
	if v, ok := t.pending[k]; ok {
		return v, nil
	}
	v, err := t.db.Get(key)
	if err != nil {
		return nil, storage.Backend(err)
	}
	if v == nil {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (t *tx) Put(key, value []byte, _ storage.Sensitivity) error {
	k := string(key)
	delete(t.deleted, k)
	buf := make([]byte, len(value))
	copy(buf, value)
	t.pending[k] = buf
	return nil
}

func (t *tx) Delete(key []byte) error {
	k := string(key)
	delete(t.pending, k)
	t.deleted[k] = struct{}{}
	return nil
}

func (t *tx) Commit() error {
	if t.closed {
		return storage.ErrTransactionAborted
	}
	batch := t.db.NewBatch()
	defer batch.Close()
	for k, v := range t.pending {
		if err := batch.Set([]byte(k), v); err != nil {
			return storage.Backend(err)
		}
	}
	for k := range t.deleted {
		if err := batch.Delete([]byte(k)); err != nil {
			return storage.Backend(err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return storage.Backend(err)
	}
	t.closed = true
	return nil
}

func (t *tx) Abort() error {
	if t.closed {
		return storage.ErrTransactionAborted
	}
	t.pending = nil
	t.deleted = nil
	t.closed = true
	return nil
}
