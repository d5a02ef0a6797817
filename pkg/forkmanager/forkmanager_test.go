package forkmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
	"github.com/certen-bridge/lightcore/pkg/chainhead"
	"github.com/certen-bridge/lightcore/pkg/corerr"
	"github.com/certen-bridge/lightcore/pkg/storage/memkv"
)

func newStore(t *testing.T) *chainhead.Store {
	t.Helper()
	tx, err := memkv.New().Begin(context.Background())
	require.NoError(t, err)
	return chainhead.New(tx, chainfamily.EthereumMainnet)
}

func seedChain(t *testing.T, s *chainhead.Store, n int) [][32]byte {
	t.Helper()
	hashes := make([][32]byte, n)
	var parent [32]byte
	for i := 0; i < n; i++ {
		var h [32]byte
		h[31] = byte(i + 1)
		if i == 0 {
			parent = h
		}
		require.NoError(t, s.PutBlock(&chainhead.StoredBlock{
			Block: chainfamily.Block{Hash: h, ParentHash: parent, Height: uint64(i)},
		}))
		if i > 0 {
			require.NoError(t, s.AddChild(parent, h))
		}
		hashes[i] = h
		parent = h
	}
	require.NoError(t, s.SetAnchor(hashes[0]))
	require.NoError(t, s.SetLatest(hashes[n-1]))
	return hashes
}

func TestSelectBranchExtendsLatestDirectly(t *testing.T) {
	s := newStore(t)
	chain := seedChain(t, s, 5)
	cfg := &chainhead.Config{CanonToTipLength: 2, TailLength: 3}

	var next [32]byte
	next[31] = 6
	block := &chainfamily.Block{Hash: next, ParentHash: chain[4], Height: 5}

	decision, err := SelectBranch(s, cfg, block, Score{Height: 5}, 5)
	require.NoError(t, err)
	require.True(t, decision.NewLatest == next)
	require.False(t, decision.IsReorg)
}

func TestSelectBranchRejectsOrphan(t *testing.T) {
	s := newStore(t)
	seedChain(t, s, 5)
	cfg := &chainhead.Config{CanonToTipLength: 2, TailLength: 3}

	var orphanParent, blockHash [32]byte
	orphanParent[31] = 0xFF
	blockHash[31] = 0xFE
	block := &chainfamily.Block{Hash: blockHash, ParentHash: orphanParent, Height: 1}

	_, err := SelectBranch(s, cfg, block, Score{Height: 1}, 1)
	require.Error(t, err)
	require.True(t, corerr.Is(err, corerr.KindOrphanBlock))
}

func TestSelectBranchReorgsOnHigherScore(t *testing.T) {
	s := newStore(t)
	chain := seedChain(t, s, 5)
	cfg := &chainhead.Config{CanonToTipLength: 2, TailLength: 10}

	// Sibling of chain[4] branching off chain[3], scored higher.
	var sibling [32]byte
	sibling[31] = 0x20
	block := &chainfamily.Block{Hash: sibling, ParentHash: chain[3], Height: 4}

	decision, err := SelectBranch(s, cfg, block, Score{Height: 10}, 6)
	require.NoError(t, err)
	require.True(t, decision.IsReorg)
	require.Equal(t, sibling, decision.NewLatest)
}

func TestSelectBranchKeepsLatestOnLowerScoreSibling(t *testing.T) {
	s := newStore(t)
	chain := seedChain(t, s, 5)
	cfg := &chainhead.Config{CanonToTipLength: 2, TailLength: 10}

	var sibling [32]byte
	sibling[31] = 0x21
	block := &chainfamily.Block{Hash: sibling, ParentHash: chain[3], Height: 4}

	decision, err := SelectBranch(s, cfg, block, Score{Height: 1}, 6)
	require.NoError(t, err)
	require.False(t, decision.IsReorg)
	require.Equal(t, chain[4], decision.NewLatest)
}

func TestSelectBranchRejectsReorgTooDeep(t *testing.T) {
	s := newStore(t)
	chain := seedChain(t, s, 10)
	cfg := &chainhead.Config{CanonToTipLength: 1, TailLength: 2} // max reorg depth 3

	// Sibling branching off chain[0] (depth 9 from latest) — far beyond the bound.
	var sibling [32]byte
	sibling[31] = 0x30
	block := &chainfamily.Block{Hash: sibling, ParentHash: chain[0], Height: 1}

	_, err := SelectBranch(s, cfg, block, Score{Height: 100}, 11)
	require.Error(t, err)
	require.True(t, corerr.Is(err, corerr.KindReorgTooDeep))
}
