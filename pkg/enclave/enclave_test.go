package enclave

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
	"github.com/certen-bridge/lightcore/pkg/chainhead"
	"github.com/certen-bridge/lightcore/pkg/debuggate"
	"github.com/certen-bridge/lightcore/pkg/storage"
	"github.com/certen-bridge/lightcore/pkg/storage/memkv"
)

func TestReportOnUninitialisedChainReturnsDebugRosterOnly(t *testing.T) {
	facade := memkv.New()
	gate := debuggate.New("0xsigner", 1)

	snap, err := Report(context.Background(), facade, chainfamily.EthereumMainnet, gate)
	require.NoError(t, err)
	require.False(t, snap.Initialised)
	require.Equal(t, []string{"0xsigner"}, snap.DebugSigners)
}

func TestReportNeverCommitsWrites(t *testing.T) {
	facade := memkv.New()

	_, err := Report(context.Background(), facade, chainfamily.EthereumMainnet, nil)
	require.NoError(t, err)

	// A second, independent transaction must still see an uninitialised
	// chain: Report must never have committed writes of its own.
	tx, err := facade.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Abort()
	store := chainhead.New(tx, chainfamily.EthereumMainnet)
	initialised, err := store.IsInitialised()
	require.NoError(t, err)
	require.False(t, initialised)
}

func TestReportOnInitialisedChainPopulatesHeights(t *testing.T) {
	facade := memkv.New()

	var anchor [32]byte
	anchor[31] = 1
	err := storage.WithTx(context.Background(), facade, func(tx storage.Tx) error {
		store := chainhead.New(tx, chainfamily.EthereumMainnet)
		if err := store.PutConfig(&chainhead.Config{ChainID: chainfamily.EthereumMainnet, CanonToTipLength: 2, TailLength: 5}); err != nil {
			return err
		}
		if err := store.PutBlock(&chainhead.StoredBlock{Block: chainfamily.Block{Hash: anchor, ParentHash: anchor, Height: 7}}); err != nil {
			return err
		}
		for _, setter := range []func([32]byte) error{store.SetAnchor, store.SetLatest, store.SetCanon, store.SetTail} {
			if err := setter(anchor); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	snap, err := Report(context.Background(), facade, chainfamily.EthereumMainnet, nil)
	require.NoError(t, err)
	require.True(t, snap.Initialised)
	require.Equal(t, uint64(7), snap.AnchorHeight)
	require.Equal(t, uint64(7), snap.CanonHeight)
	require.Equal(t, uint64(7), snap.TailHeight)
}
