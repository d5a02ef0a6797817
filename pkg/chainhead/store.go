// Copyright 2025 Certen Protocol
package chainhead

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
	"github.com/certen-bridge/lightcore/pkg/storage"
)

// Store provides chain-head access over a single storage.Tx. A new Store
// must be constructed per transaction; it holds no state of its own
// across calls.
type Store struct {
	tx      storage.Tx
	chainID chainfamily.MetadataChainID
}

func New(tx storage.Tx, chainID chainfamily.MetadataChainID) *Store {
	return &Store{tx: tx, chainID: chainID}
}

// ====== KV key layout ======

func (s *Store) prefix() []byte {
	return append([]byte("chain/"), append(s.chainID[:], '/')...)
}

func (s *Store) keyAnchor() []byte      { return append(s.prefix(), []byte("anchor")...) }
func (s *Store) keyLatest() []byte      { return append(s.prefix(), []byte("latest")...) }
func (s *Store) keyCanon() []byte       { return append(s.prefix(), []byte("canon")...) }
func (s *Store) keyTail() []byte        { return append(s.prefix(), []byte("tail")...) }
func (s *Store) keyLinkerHash() []byte  { return append(s.prefix(), []byte("linker_hash")...) }
func (s *Store) keyConfig() []byte      { return append(s.prefix(), []byte("config")...) }

func (s *Store) keyBlock(hash [32]byte) []byte {
	return append(s.prefix(), append([]byte("block/"), hash[:]...)...)
}

func (s *Store) keyChildren(hash [32]byte) []byte {
	return append(s.prefix(), append([]byte("children/"), hash[:]...)...)
}

// ====== Config ======

func (s *Store) PutConfig(cfg *Config) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("chainhead: marshal config: %w", err)
	}
	return s.tx.Put(s.keyConfig(), b, storage.SensitivityLow)
}

func (s *Store) GetConfig() (*Config, error) {
	b, err := s.tx.Get(s.keyConfig())
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("chainhead: unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (s *Store) IsInitialised() (bool, error) {
	_, err := s.tx.Get(s.keyConfig())
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ====== Pointers ======

func (s *Store) GetPointers() (*Pointers, error) {
	p := &Pointers{}
	for _, f := range []struct {
		key []byte
		dst *[32]byte
	}{
		{s.keyAnchor(), &p.Anchor},
		{s.keyLatest(), &p.Latest},
		{s.keyCanon(), &p.Canon},
		{s.keyTail(), &p.Tail},
	} {
		b, err := s.tx.Get(f.key)
		if err != nil {
			return nil, err
		}
		if len(b) != 32 {
			return nil, fmt.Errorf("chainhead: pointer value has %d bytes, want 32", len(b))
		}
		copy(f.dst[:], b)
	}
	return p, nil
}

func (s *Store) SetAnchor(h [32]byte) error { return s.tx.Put(s.keyAnchor(), h[:], storage.SensitivityLow) }
func (s *Store) SetLatest(h [32]byte) error { return s.tx.Put(s.keyLatest(), h[:], storage.SensitivityLow) }
func (s *Store) SetCanon(h [32]byte) error  { return s.tx.Put(s.keyCanon(), h[:], storage.SensitivityLow) }
func (s *Store) SetTail(h [32]byte) error   { return s.tx.Put(s.keyTail(), h[:], storage.SensitivityLow) }

// ====== Linker hash ======

// seedConstant is the per-chain seed used in place of linker_hash_0 on the
// first truncation. It is derived from the chain ID so
// distinct chain instances never collide even if they share a namespace.
func (s *Store) seedConstant() [32]byte {
	return sha256.Sum256(append([]byte("lightcore/linker-seed/"), s.chainID[:]...))
}

func (s *Store) GetLinkerHash() ([32]byte, error) {
	var out [32]byte
	b, err := s.tx.Get(s.keyLinkerHash())
	if err == storage.ErrNotFound {
		return s.seedConstant(), nil
	}
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("chainhead: linker hash value has %d bytes, want 32", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func (s *Store) setLinkerHash(h [32]byte) error {
	return s.tx.Put(s.keyLinkerHash(), h[:], storage.SensitivityLow)
}

// FoldLinkerHash applies the §3 invariant:
//
//	linker_hash_{n+1} = H(linker_hash_n || removed_block_hash || anchor_hash)
//
// and persists the new value, returning it.
func (s *Store) FoldLinkerHash(removedBlockHash, anchorHash [32]byte) ([32]byte, error) {
	prev, err := s.GetLinkerHash()
	if err != nil {
		return [32]byte{}, err
	}
	buf := make([]byte, 0, 96)
	buf = append(buf, prev[:]...)
	buf = append(buf, removedBlockHash[:]...)
	buf = append(buf, anchorHash[:]...)
	next := sha256.Sum256(buf)
	if err := s.setLinkerHash(next); err != nil {
		return [32]byte{}, err
	}
	return next, nil
}

// ====== Blocks ======

func (s *Store) PutBlock(b *StoredBlock) error {
	return s.tx.Put(s.keyBlock(b.Block.Hash), EncodeStoredBlock(b), storage.SensitivityLow)
}

func (s *Store) GetBlock(hash [32]byte) (*StoredBlock, error) {
	b, err := s.tx.Get(s.keyBlock(hash))
	if err != nil {
		return nil, err
	}
	return DecodeStoredBlock(b)
}

func (s *Store) DeleteBlock(hash [32]byte) error {
	if err := s.tx.Delete(s.keyBlock(hash)); err != nil {
		return err
	}
	return s.tx.Delete(s.keyChildren(hash))
}

// AddChild appends childHash to parentHash's child set, de-duplicating
// and keeping the set canonically ordered by hash.
func (s *Store) AddChild(parentHash, childHash [32]byte) error {
	children, err := s.GetChildren(parentHash)
	if err != nil && err != storage.ErrNotFound {
		return err
	}
	for _, c := range children {
		if c == childHash {
			return nil
		}
	}
	children = append(children, childHash)
	sort.Slice(children, func(i, j int) bool {
		return bytes.Compare(children[i][:], children[j][:]) < 0
	})
	return s.putChildren(parentHash, children)
}

func (s *Store) GetChildren(parentHash [32]byte) ([][32]byte, error) {
	b, err := s.tx.Get(s.keyChildren(parentHash))
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n := len(b) / 32
	out := make([][32]byte, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], b[i*32:(i+1)*32])
	}
	return out, nil
}

func (s *Store) putChildren(parentHash [32]byte, children [][32]byte) error {
	buf := make([]byte, 0, 32*len(children))
	for _, c := range children {
		buf = append(buf, c[:]...)
	}
	return s.tx.Put(s.keyChildren(parentHash), buf, storage.SensitivityLow)
}

// AncestorAtDepth walks parent links from start toward the anchor,
// returning the ancestor exactly depth steps back, or (nil, false) if the
// chain is not yet deep enough.
func (s *Store) AncestorAtDepth(start [32]byte, depth uint64) (*StoredBlock, bool, error) {
	cur, err := s.GetBlock(start)
	if err != nil {
		return nil, false, err
	}
	for i := uint64(0); i < depth; i++ {
		if cur.Block.ParentHash == cur.Block.Hash {
			// Anchor block is its own fixed point; cannot walk further.
			return nil, false, nil
		}
		parent, err := s.GetBlock(cur.Block.ParentHash)
		if err == storage.ErrNotFound {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		cur = parent
	}
	return cur, true, nil
}

// DepthBetween returns the number of parent-links from descendant back to
// ancestorHash, or (0, false) if ancestorHash is not found on that chain
// within maxDepth steps.
func (s *Store) DepthBetween(descendant [32]byte, ancestorHash [32]byte, maxDepth uint64) (uint64, bool, error) {
	cur, err := s.GetBlock(descendant)
	if err != nil {
		return 0, false, err
	}
	for d := uint64(0); d <= maxDepth; d++ {
		if cur.Block.Hash == ancestorHash {
			return d, true, nil
		}
		if cur.Block.ParentHash == cur.Block.Hash {
			return 0, false, nil
		}
		parent, err := s.GetBlock(cur.Block.ParentHash)
		if err == storage.ErrNotFound {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		cur = parent
	}
	return 0, false, nil
}

// CommonAncestorDepth finds the nearest block on both a's and b's
// lineage, returning its depth measured back from a, bounded by
// maxDepth hops from a. b's own lineage is walked to the anchor
// unbounded, since a competing branch may already be several blocks
// deep before the fork manager ever compares it against a.
func (s *Store) CommonAncestorDepth(a, b [32]byte, maxDepth uint64) (uint64, bool, error) {
	bLineage := map[[32]byte]struct{}{}
	cur, err := s.GetBlock(b)
	if err != nil {
		return 0, false, err
	}
	for {
		bLineage[cur.Block.Hash] = struct{}{}
		if cur.Block.ParentHash == cur.Block.Hash {
			break
		}
		parent, err := s.GetBlock(cur.Block.ParentHash)
		if err == storage.ErrNotFound {
			break
		}
		if err != nil {
			return 0, false, err
		}
		cur = parent
	}

	cur, err = s.GetBlock(a)
	if err != nil {
		return 0, false, err
	}
	for d := uint64(0); d <= maxDepth; d++ {
		if _, ok := bLineage[cur.Block.Hash]; ok {
			return d, true, nil
		}
		if cur.Block.ParentHash == cur.Block.Hash {
			return 0, false, nil
		}
		parent, err := s.GetBlock(cur.Block.ParentHash)
		if err == storage.ErrNotFound {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		cur = parent
	}
	return 0, false, nil
}
