// Copyright 2025 Certen Protocol
//
// Package chainhead persists a per-chain "small chain": the anchor block,
// the linker-hash, the stored blocks between anchor and tip, and the
// named pointers latest/canon/anchor/tail.
package chainhead

import "github.com/certen-bridge/lightcore/pkg/chainfamily"

// StoredBlock is a chainfamily.Block together with the bookkeeping the
// store needs to support re-orgs and provenance-sealed truncation.
type StoredBlock struct {
	Block          chainfamily.Block
	Depth          uint64     // distance from current tip at last recompute
	Children       [][32]byte // outgoing child hashes, canonicalised by ascending byte order
	ProvenanceSealed bool     // true once folded behind tail into the linker hash
}

// Config is the immutable per-chain configuration.
type Config struct {
	ChainID          chainfamily.MetadataChainID
	CanonToTipLength uint8 // confirmations + 1 required before canonisation; <= 255
	TailLength       uint64
	NetworkMagic     uint32
	SafeAddress      string
	WatchedAddresses []string

	// Feature levers: compile/config-selectable only.
	NonValidating          bool
	DisableFees            bool
	Litecoin               bool
	IncludeOriginTxDetails bool
}

// Pointers are the named block references tracked per chain.
type Pointers struct {
	Anchor [32]byte
	Latest [32]byte
	Canon  [32]byte
	Tail   [32]byte
}
