// Package engine wires the Storage Facade, Block Validator, Fork
// Manager, Chain-Head Store, Confirmation Pipeline and Peg Scanner into
// the submission entry points a bridge binary calls per chain instance
//. One
// Engine instance serves exactly one chain; a bridge process runs two.
package engine

import (
	"context"
	"fmt"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
	"github.com/certen-bridge/lightcore/pkg/chainhead"
	"github.com/certen-bridge/lightcore/pkg/confirmation"
	"github.com/certen-bridge/lightcore/pkg/corerr"
	"github.com/certen-bridge/lightcore/pkg/debuggate"
	"github.com/certen-bridge/lightcore/pkg/forkmanager"
	"github.com/certen-bridge/lightcore/pkg/metrics"
	"github.com/certen-bridge/lightcore/pkg/pegscan"
	"github.com/certen-bridge/lightcore/pkg/storage"
)

// Engine is the per-chain orchestrator. It holds no block data of its
// own between calls; a fresh chainhead.Store is constructed over the
// submission's transaction on every entry point.
type Engine struct {
	Facade     storage.Facade
	Capability chainfamily.Capability
	Signer     pegscan.Signer
	Metrics    *metrics.Registry
	ChainID    chainfamily.MetadataChainID

	// BuildPayload constructs the partner-chain transaction payload for
	// one peg event; chain-specific transaction construction beyond the
	// signing contract is out of scope, so this is supplied
	// by the bridge binary wiring the engine together.
	BuildPayload func(chainfamily.PegEvent, pegscan.MaterialiseOptions) ([]byte, error)

	seenCounter uint64 // monotonic first-seen tie-break counter
}

// SubmitResult is what a successful submission returns to the caller.
type SubmitResult struct {
	NewLatest     [32]byte              `json:"newLatest"`
	IsReorg       bool                  `json:"isReorg"`
	CanonAdvanced bool                  `json:"canonAdvanced"`
	TailAdvanced  bool                  `json:"tailAdvanced"`
	Truncated     int                   `json:"truncatedCount"`
	SignedTxs     []pegscan.SignedTx    `json:"signedTransactions,omitempty"`
}

// Initialize installs the anchor block and chain configuration. Fails
// with corerr.AlreadyInitialised if the chain instance already has a
// config.
func (e *Engine) Initialize(ctx context.Context, anchor *chainfamily.Block, cfg *chainhead.Config) error {
	return storage.WithTx(ctx, e.Facade, func(tx storage.Tx) error {
		store := chainhead.New(tx, e.ChainID)

		initialised, err := store.IsInitialised()
		if err != nil {
			return corerr.StorageError(err)
		}
		if initialised {
			return corerr.AlreadyInitialised("chain instance already has an anchor")
		}

		result := e.Capability.Validate(anchor, nil, true) // anchor relaxation: merkle root not checked
		if !result.Accepted {
			return corerr.InvalidBlock(result.Reason)
		}

		if err := store.PutConfig(cfg); err != nil {
			return corerr.StorageError(err)
		}

		anchorRecord := &chainhead.StoredBlock{
			Block:    *anchor,
			Depth:    0,
			Children: nil,
		}
		if err := store.PutBlock(anchorRecord); err != nil {
			return corerr.StorageError(err)
		}

		for _, setter := range []func([32]byte) error{store.SetAnchor, store.SetLatest, store.SetCanon, store.SetTail} {
			if err := setter(anchor.Hash); err != nil {
				return corerr.StorageError(err)
			}
		}

		if e.Metrics != nil {
			e.Metrics.ChainHeight.WithLabelValues(e.ChainID.String()).Set(float64(anchor.Height))
			e.Metrics.TailHeight.WithLabelValues(e.ChainID.String()).Set(float64(anchor.Height))
		}
		return nil
	})
}

// SubmitBlock runs one block through validation, fork selection,
// confirmation and peg scanning inside a single transaction. A rejection at any stage aborts the transaction and
// leaves all pointers and block records untouched.
func (e *Engine) SubmitBlock(ctx context.Context, block *chainfamily.Block) (*SubmitResult, error) {
	var result *SubmitResult

	err := storage.WithTx(ctx, e.Facade, func(tx storage.Tx) error {
		store := chainhead.New(tx, e.ChainID)

		initialised, err := store.IsInitialised()
		if err != nil {
			return corerr.StorageError(err)
		}
		if !initialised {
			return corerr.NotInitialised("chain instance has no anchor")
		}
		cfg, err := store.GetConfig()
		if err != nil {
			return corerr.StorageError(err)
		}

		parent, err := store.GetBlock(block.ParentHash)
		if err != nil {
			if err == storage.ErrNotFound {
				if e.Metrics != nil {
					e.Metrics.BlocksRejected.WithLabelValues(e.ChainID.String(), "orphan").Inc()
				}
				return corerr.OrphanBlock("parent block not present in store")
			}
			return corerr.StorageError(err)
		}

		validation := e.Capability.Validate(block, &parent.Block, false)
		if !validation.Accepted {
			if e.Metrics != nil {
				e.Metrics.BlocksRejected.WithLabelValues(e.ChainID.String(), "invalid").Inc()
			}
			return corerr.InvalidBlock(validation.Reason)
		}

		e.seenCounter++
		blockScore := forkmanager.Score{Height: block.Height, SeenAt: e.seenCounter}
		decision, err := forkmanager.SelectBranch(store, cfg, block, blockScore, e.seenCounter)
		if err != nil {
			if e.Metrics != nil {
				reason := "reorg_too_deep"
				if corerr.Is(err, corerr.KindOrphanBlock) {
					reason = "orphan"
				}
				e.Metrics.BlocksRejected.WithLabelValues(e.ChainID.String(), reason).Inc()
			}
			return err
		}

		stored := &chainhead.StoredBlock{Block: *block, Depth: 0}
		if err := store.PutBlock(stored); err != nil {
			return corerr.StorageError(err)
		}
		if err := store.AddChild(block.ParentHash, block.Hash); err != nil {
			return corerr.StorageError(err)
		}
		if e.Metrics != nil {
			e.Metrics.BlocksSubmitted.WithLabelValues(e.ChainID.String()).Inc()
		}

		if decision.NewLatest != decision.PriorLatest {
			if err := store.SetLatest(decision.NewLatest); err != nil {
				return corerr.StorageError(err)
			}
		}
		if decision.IsReorg && e.Metrics != nil {
			e.Metrics.Reorgs.WithLabelValues(e.ChainID.String()).Inc()
		}

		confirmResult, err := confirmation.Advance(store, cfg, decision.NewLatest)
		if err != nil {
			return err
		}

		result = &SubmitResult{
			NewLatest:     decision.NewLatest,
			IsReorg:       decision.IsReorg,
			CanonAdvanced: confirmResult.CanonAdvanced,
			TailAdvanced:  confirmResult.TailAdvanced,
			Truncated:     len(confirmResult.TruncatedHashes),
		}

		if e.Metrics != nil {
			if confirmResult.TailAdvanced {
				e.Metrics.Truncations.WithLabelValues(e.ChainID.String()).Add(float64(len(confirmResult.TruncatedHashes)))
			}
		}

		// Peg scanner fires exactly once, only when canon advances to a
		// block not previously canonised.
		if confirmResult.CanonAdvanced {
			canonBlock, err := store.GetBlock(confirmResult.NewCanon)
			if err != nil {
				return corerr.StorageError(err)
			}
			events := pegscan.Scan(e.Capability, &canonBlock.Block, cfg.SafeAddress)
			if e.Metrics != nil {
				for _, ev := range events {
					e.Metrics.PegEventsScanned.WithLabelValues(e.ChainID.String(), string(ev.Direction)).Inc()
				}
			}
			if len(events) > 0 {
				if e.BuildPayload == nil {
					return fmt.Errorf("engine: peg events recognised but no BuildPayload configured")
				}
				signed, err := pegscan.Materialise(events, e.Signer, e.BuildPayload, pegscan.MaterialiseOptions{DisableFees: cfg.DisableFees})
				if err != nil {
					return corerr.SignerError(err)
				}
				result.SignedTxs = signed
				if e.Metrics != nil {
					e.Metrics.PegTxsMaterialised.WithLabelValues(e.ChainID.String()).Add(float64(len(signed)))
				}
			}
		}

		if e.Metrics != nil {
			if canonBlk, err := store.GetBlock(confirmResult.NewCanon); err == nil {
				e.Metrics.ChainHeight.WithLabelValues(e.ChainID.String()).Set(float64(canonBlk.Block.Height))
			}
			if tailBlk, err := store.GetBlock(confirmResult.NewTail); err == nil {
				e.Metrics.TailHeight.WithLabelValues(e.ChainID.String()).Set(float64(tailBlk.Block.Height))
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetChainHeight returns the current canon pointer's height, a
// read-only operation alongside getEnclaveState for callers that only
// need a height check.
func (e *Engine) GetChainHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := storage.WithTx(ctx, e.Facade, func(tx storage.Tx) error {
		store := chainhead.New(tx, e.ChainID)
		pointers, err := store.GetPointers()
		if err != nil {
			return corerr.StorageError(err)
		}
		canonBlock, err := store.GetBlock(pointers.Canon)
		if err != nil {
			return corerr.StorageError(err)
		}
		height = canonBlock.Block.Height
		return nil
	})
	if err != nil {
		return 0, err
	}
	return height, nil
}

// ForceRewind is a debug-gated operation that sets latest to target, a
// block still present in the store, and re-runs the confirmation
// pipeline from it, for operator recovery from a misconfigured feeder.
// target is not checked to be an ancestor of the current latest; canon
// and tail move only where target has an ancestor at the respective
// depth. ForceRewind checks sig itself through gate.Verify and persists
// the gate's advanced nonce in the same transaction as the rewind.
func (e *Engine) ForceRewind(ctx context.Context, gate *debuggate.Gate, nonce uint64, target [32]byte, sig []byte) error {
	payload := target[:]
	if err := gate.Verify(debuggate.ActionForceRewind, nonce, payload, sig); err != nil {
		return err
	}

	return storage.WithTx(ctx, e.Facade, func(tx storage.Tx) error {
		store := chainhead.New(tx, e.ChainID)
		cfg, err := store.GetConfig()
		if err != nil {
			return corerr.StorageError(err)
		}

		targetBlock, err := store.GetBlock(target)
		if err != nil {
			if err == storage.ErrNotFound {
				return corerr.InvalidBlock("rewind target not present in store")
			}
			return corerr.StorageError(err)
		}

		if err := store.SetLatest(targetBlock.Block.Hash); err != nil {
			return corerr.StorageError(err)
		}
		if _, err := confirmation.Advance(store, cfg, targetBlock.Block.Hash); err != nil {
			return err
		}
		return gate.Persist(tx)
	})
}
