// Copyright 2025 Certen Protocol
//
// Package forkmanager maintains branch topology and selects the head on
// competing forks. It holds no in-memory branch state
// between calls; everything is re-derived from the chainhead.Store on
// each submission.
package forkmanager

import (
	"github.com/certen-bridge/lightcore/pkg/chainfamily"
	"github.com/certen-bridge/lightcore/pkg/chainhead"
	"github.com/certen-bridge/lightcore/pkg/corerr"
	"github.com/certen-bridge/lightcore/pkg/storage"
)

// Score ranks a branch's tip for the "greatest accumulated work / height,
// tie-broken by first-seen" rule. Work is compared before Height, but
// SelectBranch and the engine fill in only Height, so every family is
// currently compared by Height alone.
type Score struct {
	Work   uint64
	Height uint64
	SeenAt uint64 // monotonic submission counter, lower is earlier
}

// Less reports whether s scores strictly lower than other, i.e. other
// should become canonical if it strictly exceeds s.
func (s Score) Less(other Score) bool {
	if s.Work != other.Work {
		return s.Work < other.Work
	}
	if s.Height != other.Height {
		return s.Height < other.Height
	}
	// Equal work and height: first-seen wins, so a later SeenAt is never
	// "greater" — it can only tie, never overtake.
	return false
}

// Decision is the outcome of submitting one block to the fork manager.
type Decision struct {
	NewLatest    [32]byte
	IsReorg      bool
	PriorLatest  [32]byte
}

// SelectBranch decides whether submitting `block` (already validated; a
// block.ParentHash absent from the store is rejected as
// corerr.OrphanBlock) updates
// `latest`. It enforces the tail-length re-org bound:
// a block whose common ancestor with latest lies deeper than
// canon_to_tip_length + tail_length is rejected as corerr.ReorgTooDeep.
func SelectBranch(
	store *chainhead.Store,
	cfg *chainhead.Config,
	block *chainfamily.Block,
	blockScore Score,
	seenCounter uint64,
) (*Decision, error) {
	pointers, err := store.GetPointers()
	if err != nil {
		return nil, corerr.StorageError(err)
	}

	if block.ParentHash == pointers.Latest {
		return &Decision{NewLatest: block.Hash, IsReorg: false, PriorLatest: pointers.Latest}, nil
	}

	maxReorgDepth := uint64(cfg.CanonToTipLength) + cfg.TailLength

	latestBlock, err := store.GetBlock(pointers.Latest)
	if err != nil {
		return nil, corerr.StorageError(err)
	}
	currentScore := Score{Height: latestBlock.Block.Height}

	// Bound the search for the common ancestor by maxReorgDepth: walking
	// further than that from `latest` can never yield an acceptable reorg.
	// block.ParentHash may itself be several blocks deep into a competing
	// branch already built up over earlier submissions, so the common
	// ancestor is found by intersecting the two branches' lineages, not by
	// checking whether block.ParentHash is literally on latest's own chain.
	_, found, err := store.CommonAncestorDepth(pointers.Latest, block.ParentHash, maxReorgDepth)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, corerr.OrphanBlock("parent block not present in store")
		}
		return nil, corerr.StorageError(err)
	}
	if !found {
		// Either the two branches don't converge within the bound (an
		// orphan relative to the window) or they converge behind the
		// allowable re-org depth entirely.
		if _, err := store.GetBlock(block.ParentHash); err != nil {
			return nil, corerr.OrphanBlock("parent block not present in store")
		}
		return nil, corerr.ReorgTooDeep("common ancestor with latest exceeds canon_to_tip_length + tail_length")
	}

	if !currentScore.Less(blockScore) {
		// Sibling branch does not overtake; record the block but leave
		// latest untouched. Not a reorg, not an error: the caller still
		// stores the block so later siblings can be compared against it.
		return &Decision{NewLatest: pointers.Latest, IsReorg: false, PriorLatest: pointers.Latest}, nil
	}

	return &Decision{NewLatest: block.Hash, IsReorg: true, PriorLatest: pointers.Latest}, nil
}
