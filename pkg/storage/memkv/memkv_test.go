package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen-bridge/lightcore/pkg/storage"
)

func TestCommitPersistsWrites(t *testing.T) {
	store := New()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("k1"), []byte("v1"), storage.SensitivityLow))
	require.NoError(t, tx.Commit())

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	v, err := tx2.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
	require.NoError(t, tx2.Abort())
}

func TestAbortDiscardsWrites(t *testing.T) {
	store := New()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("k2"), []byte("v2"), storage.SensitivityLow))
	require.NoError(t, tx.Abort())

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx2.Get([]byte("k2"))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPendingWritesVisibleWithinTransaction(t *testing.T) {
	store := New()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("k3"), []byte("v3"), storage.SensitivityLow))

	v, err := tx.Get([]byte("k3"))
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), v)
	require.NoError(t, tx.Abort())
}

func TestDeleteThenGetNotFound(t *testing.T) {
	store := New()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("k4"), []byte("v4"), storage.SensitivityLow))
	require.NoError(t, tx.Commit())

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Delete([]byte("k4")))
	_, err = tx2.Get([]byte("k4"))
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, tx2.Commit())

	tx3, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx3.Get([]byte("k4"))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDoubleCommitFails(t *testing.T) {
	store := New()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.ErrorIs(t, tx.Commit(), storage.ErrTransactionAborted)
}
