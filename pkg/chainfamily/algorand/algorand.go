// Copyright 2025 Certen Protocol
//
// Package algorand implements the chainfamily.Capability for Algorand.
// No Algorand Go SDK dependency is wired in, so this family is built
// against the standard library only, matching the same capability-set
// shape as the ecosystem-backed families.
package algorand

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

// Config configures one Algorand chain instance.
type Config struct {
	WatchedAppID           uint64
	WatchedAssetID         uint64
	SafeAddress            string
	DestinationChainID     chainfamily.MetadataChainID
	SourceChainID          chainfamily.MetadataChainID
	TimestampTolerance     time.Duration
}

type family struct{ cfg Config }

func New(cfg Config) chainfamily.Capability { return &family{cfg: cfg} }

func (f *family) Validate(block, parent *chainfamily.Block, anchorRelaxed bool) chainfamily.ValidationResult {
	computed := blockHash(block)
	if !anchorRelaxed && !bytes.Equal(computed[:], block.Hash[:]) {
		return chainfamily.Reject(fmt.Sprintf("block hash mismatch: computed %x, claimed %x", computed, block.Hash))
	}
	if parent != nil {
		if block.ParentHash != parent.Hash {
			return chainfamily.Reject("previous block hash does not match supplied parent")
		}
		if !anchorRelaxed && block.Timestamp <= parent.Timestamp {
			return chainfamily.Reject("timestamp does not strictly exceed parent timestamp")
		}
	}
	if !anchorRelaxed && len(block.Commitment) != 32 {
		return chainfamily.Reject("transaction merkle root is not a well-formed 32-byte commitment")
	}
	return chainfamily.Accept()
}

func blockHash(block *chainfamily.Block) [32]byte {
	buf := make([]byte, 0, 72)
	buf = append(buf, block.ParentHash[:]...)
	buf = append(buf, block.Commitment[:]...)
	var tsBuf [8]byte
	for i := 0; i < 8; i++ {
		tsBuf[i] = byte(block.Timestamp >> (8 * i))
	}
	buf = append(buf, tsBuf[:]...)
	return sha256.Sum256(buf)
}

func (f *family) SerialiseBlock(block *chainfamily.Block) []byte {
	h := blockHash(block)
	return h[:]
}

// rawBody is the feeder-supplied JSON shape for Algorand blocks: asset
// transfers relevant to peg scanning.
type rawBody struct {
	Transfers []rawTransfer `json:"assetTransfers"`
}

type rawTransfer struct {
	AppID     uint64 `json:"appId"`
	AssetID   uint64 `json:"assetId"`
	TxID      string `json:"txId"`
	Amount    uint64 `json:"amount"`
	Note      string `json:"note"` // carries destination address, peg convention
}

func (f *family) ParsePegEvents(block *chainfamily.Block) []chainfamily.PegEvent {
	if len(block.Raw) == 0 {
		return nil
	}
	var body rawBody
	if err := json.Unmarshal(block.Raw, &body); err != nil {
		return nil
	}

	var events []chainfamily.PegEvent
	for _, t := range body.Transfers {
		if t.AppID != f.cfg.WatchedAppID || t.AssetID != f.cfg.WatchedAssetID {
			continue
		}
		events = append(events, chainfamily.PegEvent{
			Direction:          chainfamily.DirectionIn,
			SourceChainID:      f.cfg.SourceChainID,
			DestinationChainID: f.cfg.DestinationChainID,
			Amount:             fmt.Sprintf("%d", t.Amount),
			Originator:         t.TxID,
			Recipient:          t.Note,
		})
	}
	return events
}
