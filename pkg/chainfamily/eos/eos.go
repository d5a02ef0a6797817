// Copyright 2025 Certen Protocol
//
// Package eos implements the chainfamily.Capability for EOS-family
// chains. No EOS Go client library dependency is wired in, so this
// family is built against the standard library only, matching the same
// capability-set shape as the ecosystem-backed families.
package eos

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

// Config configures one EOS-family chain instance.
type Config struct {
	WatchedAccounts        []string
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
		return chainfamily.Reject(fmt.Sprintf("block id hash mismatch: computed %x, claimed %x", computed, block.Hash))
	}
	if parent != nil {
		if block.ParentHash != parent.Hash {
			return chainfamily.Reject("previous block id does not match supplied parent")
		}
		if !anchorRelaxed && block.Timestamp <= parent.Timestamp {
			return chainfamily.Reject("timestamp does not strictly exceed parent timestamp")
		}
	}
	if !anchorRelaxed && len(block.Commitment) != 32 {
		return chainfamily.Reject("action merkle root is not a well-formed 32-byte commitment")
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

// rawBody is the feeder-supplied JSON shape for EOS blocks: action traces
// relevant to peg scanning.
type rawBody struct {
	Actions []rawAction `json:"actions"`
}

type rawAction struct {
	Account     string `json:"account"`
	Name        string `json:"name"`
	TxID        string `json:"txId"`
	Quantity    string `json:"quantity"` // e.g. "1.2300 EOS"
	Memo        string `json:"memo"`     // carries destination address, peg convention
}

func (f *family) ParsePegEvents(block *chainfamily.Block) []chainfamily.PegEvent {
	if len(block.Raw) == 0 {
		return nil
	}
	var body rawBody
	if err := json.Unmarshal(block.Raw, &body); err != nil {
		return nil
	}

	watched := make(map[string]struct{}, len(f.cfg.WatchedAccounts))
	for _, a := range f.cfg.WatchedAccounts {
		watched[a] = struct{}{}
	}

	var events []chainfamily.PegEvent
	for _, act := range body.Actions {
		if act.Name != "transfer" {
			continue
		}
		if _, ok := watched[act.Account]; !ok {
			continue
		}
		events = append(events, chainfamily.PegEvent{
			Direction:          chainfamily.DirectionIn,
			SourceChainID:      f.cfg.SourceChainID,
			DestinationChainID: f.cfg.DestinationChainID,
			Amount:             act.Quantity,
			Originator:         act.TxID,
			Recipient:          act.Memo,
		})
	}
	return events
}
