// Package enclave assembles the read-only state snapshot external
// callers use to inspect a running chain core: pointers, height,
// configuration and the debug-signatory roster. Snapshot
// must never take a write transaction.
package enclave

import (
	"context"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
	"github.com/certen-bridge/lightcore/pkg/chainhead"
	"github.com/certen-bridge/lightcore/pkg/debuggate"
	"github.com/certen-bridge/lightcore/pkg/storage"
)

// Version identifies the running core build. Set at link time in
// production builds; left as a constant default here.
var Version = "dev"

// Snapshot is the externally visible enclave state for one chain
// instance.
type Snapshot struct {
	ChainID       chainfamily.MetadataChainID `json:"chainId"`
	Initialised   bool                        `json:"initialised"`
	Pointers      chainhead.Pointers          `json:"pointers"`
	AnchorHeight  uint64                      `json:"anchorHeight,omitempty"`
	LatestHeight  uint64                      `json:"latestHeight,omitempty"`
	CanonHeight   uint64                      `json:"canonHeight,omitempty"`
	TailHeight    uint64                      `json:"tailHeight,omitempty"`
	Config        chainhead.Config            `json:"config"`
	DebugSigners  []string                    `json:"debugSigners"`
	CoreVersion   string                      `json:"coreVersion"`
}

// Report reads a chain instance's state and returns its Snapshot. It
// opens its own transaction on facade and always aborts it; Report
// performs no writes.
func Report(ctx context.Context, facade storage.Facade, chainID chainfamily.MetadataChainID, gate *debuggate.Gate) (*Snapshot, error) {
	tx, err := facade.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Abort()

	store := chainhead.New(tx, chainID)

	snap := &Snapshot{ChainID: chainID, CoreVersion: Version}

	initialised, err := store.IsInitialised()
	if err != nil {
		return nil, err
	}
	snap.Initialised = initialised
	if !initialised {
		if gate != nil {
			snap.DebugSigners = gate.Roster()
		}
		return snap, nil
	}

	cfg, err := store.GetConfig()
	if err != nil {
		return nil, err
	}
	snap.Config = *cfg

	pointers, err := store.GetPointers()
	if err != nil {
		return nil, err
	}
	snap.Pointers = *pointers

	if b, err := store.GetBlock(pointers.Anchor); err == nil {
		snap.AnchorHeight = b.Block.Height
	}
	if b, err := store.GetBlock(pointers.Latest); err == nil {
		snap.LatestHeight = b.Block.Height
	}
	if b, err := store.GetBlock(pointers.Canon); err == nil {
		snap.CanonHeight = b.Block.Height
	}
	if b, err := store.GetBlock(pointers.Tail); err == nil {
		snap.TailHeight = b.Block.Height
	}

	if gate != nil {
		snap.DebugSigners = gate.Roster()
	}

	return snap, nil
}
