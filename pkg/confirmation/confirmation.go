// Copyright 2025 Certen Protocol
//
// Package confirmation implements the canon-to-tip confirmation pipeline
//: advancing latest/canon/tail and truncating blocks that
// fall behind tail via the linker-hash provenance rule.
package confirmation

import (
	"sort"

	"github.com/certen-bridge/lightcore/pkg/chainhead"
	"github.com/certen-bridge/lightcore/pkg/corerr"
)

// Result reports what the pipeline changed, so the peg scanner can decide
// whether canon actually advanced to a not-previously-canonised block
//.
type Result struct {
	NewCanon        [32]byte
	CanonAdvanced   bool
	NewTail         [32]byte
	TailAdvanced    bool
	TruncatedHashes [][32]byte // in order of increasing height, as removed
}

// Advance runs the confirmation pipeline against store, given that
// newLatest has already been written as the `latest` pointer by the
// caller (forkmanager decision + store.SetLatest).
func Advance(store *chainhead.Store, cfg *chainhead.Config, newLatest [32]byte) (*Result, error) {
	result := &Result{}

	pointers, err := store.GetPointers()
	if err != nil {
		return nil, corerr.StorageError(err)
	}

	// Step 1: candidate_canon
	candidateCanon, ok, err := store.AncestorAtDepth(newLatest, uint64(cfg.CanonToTipLength))
	if err != nil {
		return nil, corerr.StorageError(err)
	}
	if ok && candidateCanon.Block.Hash != pointers.Canon {
		if err := store.SetCanon(candidateCanon.Block.Hash); err != nil {
			return nil, corerr.StorageError(err)
		}
		result.NewCanon = candidateCanon.Block.Hash
		result.CanonAdvanced = true
	} else {
		result.NewCanon = pointers.Canon
	}

	// Step 2: candidate_tail
	candidateTail, ok, err := store.AncestorAtDepth(newLatest, uint64(cfg.CanonToTipLength)+cfg.TailLength)
	if err != nil {
		return nil, corerr.StorageError(err)
	}
	if !ok {
		result.NewTail = pointers.Tail
		return result, nil
	}
	if candidateTail.Block.Hash != pointers.Tail {
		if err := store.SetTail(candidateTail.Block.Hash); err != nil {
			return nil, corerr.StorageError(err)
		}
		result.NewTail = candidateTail.Block.Hash
		result.TailAdvanced = true
	} else {
		result.NewTail = pointers.Tail
	}

	if !result.TailAdvanced {
		return result, nil
	}

	// Steps 3-4: remove every block with depth strictly greater than the
	// new tail's depth, folding the canonical-branch ancestors of the new
	// tail into linker_hash and silently discarding off-branch siblings.
	toRemove, err := collectBehindTail(store, newLatest, candidateTail.Block.Hash)
	if err != nil {
		return nil, corerr.StorageError(err)
	}

	sort.Slice(toRemove, func(i, j int) bool {
		return toRemove[i].height < toRemove[j].height
	})

	for _, b := range toRemove {
		if b.onCanonicalBranch {
			if _, err := store.FoldLinkerHash(b.hash, pointers.Anchor); err != nil {
				return nil, corerr.StorageError(err)
			}
		}
		if err := store.DeleteBlock(b.hash); err != nil {
			return nil, corerr.StorageError(err)
		}
		result.TruncatedHashes = append(result.TruncatedHashes, b.hash)
	}

	return result, nil
}

type behindTailBlock struct {
	hash              [32]byte
	height            uint64
	onCanonicalBranch bool
}

// collectBehindTail walks back from newLatest to the anchor, collecting
// every stored block deeper than the new tail (on the canonical branch or
// not). At every node on that walk, any other child of that node besides
// the one leading toward newLatest is an off-branch fork displaced by the
// reorg that produced newLatest — including at the new tail's own
// position, where a sibling branch rooted there can otherwise survive the
// truncation indefinitely. siblingsBehind pulls each such fork's entire
// subtree in, since none of it can ever be reached again. Canonical-branch
// ancestors of newTail fold into linker_hash; everything else is
// destroyed silently.
func collectBehindTail(store *chainhead.Store, newLatest, newTail [32]byte) ([]behindTailBlock, error) {
	var out []behindTailBlock
	seen := map[[32]byte]struct{}{}

	cur, err := store.GetBlock(newLatest)
	if err != nil {
		return nil, err
	}
	reachedTail := false
	var childOnPath [32]byte
	havePath := false
	for {
		isAnchor := cur.Block.ParentHash == cur.Block.Hash
		if cur.Block.Hash == newTail {
			reachedTail = true
		}
		if reachedTail {
			if cur.Block.Hash != newTail && !isAnchor {
				if _, dup := seen[cur.Block.Hash]; !dup {
					seen[cur.Block.Hash] = struct{}{}
					out = append(out, behindTailBlock{hash: cur.Block.Hash, height: cur.Block.Height, onCanonicalBranch: true})
				}
			}
			if havePath {
				for _, sib := range siblingsBehind(store, cur.Block.Hash, childOnPath, seen) {
					out = append(out, sib)
				}
			}
		}
		if isAnchor {
			break // anchor block is never removed, regardless of how far tail advances past it
		}
		childOnPath = cur.Block.Hash
		havePath = true
		parent, err := store.GetBlock(cur.Block.ParentHash)
		if err != nil {
			break
		}
		cur = parent
	}
	return out, nil
}

// siblingsBehind finds every descendant of parentHash's children other
// than onBranchChild's own subtree, not yet marked seen, so a displaced
// fork is discarded in its entirety rather than just at its root.
func siblingsBehind(store *chainhead.Store, parentHash, onBranchChild [32]byte, seen map[[32]byte]struct{}) []behindTailBlock {
	children, err := store.GetChildren(parentHash)
	if err != nil {
		return nil
	}
	var queue [][32]byte
	for _, c := range children {
		if c == onBranchChild {
			continue
		}
		if _, dup := seen[c]; !dup {
			queue = append(queue, c)
		}
	}
	var out []behindTailBlock
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, dup := seen[h]; dup {
			continue
		}
		blk, err := store.GetBlock(h)
		if err != nil {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, behindTailBlock{hash: h, height: blk.Block.Height, onCanonicalBranch: false})
		grandchildren, err := store.GetChildren(h)
		if err != nil {
			continue
		}
		for _, gc := range grandchildren {
			if _, dup := seen[gc]; !dup {
				queue = append(queue, gc)
			}
		}
	}
	return out
}
