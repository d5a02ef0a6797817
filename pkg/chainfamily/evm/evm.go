// Copyright 2025 Certen Protocol
//
// Package evm implements the chainfamily.Capability for EVM-family chains
// (the "interim chain" side of a bridge, or an EVM-native partner chain).
// Header hashing and log decoding are delegated to go-ethereum.
package evm

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

// VaultEvent describes one log signature the scanner recognises as a
// peg-in deposit.
type VaultEvent struct {
	ABI             abi.ABI
	EventName       string
	RecipientArg    string // name of the event argument carrying the destination address, if any
}

// Config configures one EVM chain instance.
type Config struct {
	VaultAddresses         []common.Address
	Events                 []VaultEvent
	SafeAddress            string
	DestinationChainID     chainfamily.MetadataChainID
	SourceChainID          chainfamily.MetadataChainID
	TimestampTolerance     time.Duration
	IncludeOriginTxDetails bool
}

type family struct{ cfg Config }

// New returns the chainfamily.Capability for an EVM chain instance.
func New(cfg Config) chainfamily.Capability {
	return &family{cfg: cfg}
}

// header lists a subset of go-ethereum types.Header fields. Validate and
// SerialiseBlock do not use it: they build a types.Header directly from
// the chainfamily.Block fields, and Raw carries only the JSON-encoded log
// entries (see rawBody), not header fields or an RLP blob.
type header struct {
	ParentHash common.Hash
	Number     *big.Int
	Time       uint64
	Difficulty *big.Int
}

func (f *family) Validate(block, parent *chainfamily.Block, anchorRelaxed bool) chainfamily.ValidationResult {
	h := types.Header{
		ParentHash: common.BytesToHash(block.ParentHash[:]),
		Number:     new(big.Int).SetUint64(block.Height),
		Time:       uint64(block.Timestamp),
	}
	computed := h.Hash()
	if !anchorRelaxed && computed != common.BytesToHash(block.Hash[:]) {
		return chainfamily.Reject(fmt.Sprintf("header hash mismatch: computed %s, claimed %x", computed.Hex(), block.Hash))
	}

	if parent != nil {
		if block.ParentHash != parent.Hash {
			return chainfamily.Reject("parent_hash does not match supplied parent")
		}
		if !anchorRelaxed && block.Timestamp <= parent.Timestamp {
			return chainfamily.Reject("timestamp does not strictly exceed parent timestamp")
		}
	}

	if !anchorRelaxed && len(block.Commitment) != 32 {
		return chainfamily.Reject("receipts root is not a well-formed 32-byte commitment")
	}

	return chainfamily.Accept()
}

func (f *family) SerialiseBlock(block *chainfamily.Block) []byte {
	h := types.Header{
		ParentHash: common.BytesToHash(block.ParentHash[:]),
		Number:     new(big.Int).SetUint64(block.Height),
		Time:       uint64(block.Timestamp),
		Root:       common.BytesToHash(block.Commitment[:]),
	}
	return h.Hash().Bytes()
}

// decodedLog is the feeder-supplied shape of one EVM log entry, carried
// inside chainfamily.Block.Raw (JSON-encoded) for blocks that may contain
// peg-relevant events. The feeder is responsible for populating this from
// eth_getLogs / block receipts; the engine never makes its own RPC calls
//.
type decodedLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	TxHash  common.Hash
}

func (f *family) ParsePegEvents(block *chainfamily.Block) []chainfamily.PegEvent {
	logs, err := decodeLogsFromRaw(block.Raw)
	if err != nil {
		return nil
	}

	var events []chainfamily.PegEvent
	for _, lg := range logs {
		if !addressWatched(lg.Address, f.cfg.VaultAddresses) {
			continue
		}
		for _, ve := range f.cfg.Events {
			sig, ok := ve.ABI.Events[ve.EventName]
			if !ok {
				continue
			}
			if len(lg.Topics) == 0 || lg.Topics[0] != sig.ID {
				continue
			}
			values, err := ve.ABI.Unpack(ve.EventName, lg.Data)
			if err != nil {
				continue
			}
			events = append(events, f.toPegEvent(ve, lg, values))
		}
	}
	return events
}

func (f *family) toPegEvent(ve VaultEvent, lg decodedLog, values []interface{}) chainfamily.PegEvent {
	ev := chainfamily.PegEvent{
		Direction:          chainfamily.DirectionIn,
		SourceChainID:      f.cfg.SourceChainID,
		DestinationChainID: f.cfg.DestinationChainID,
		Originator:         lg.TxHash.Hex(),
	}

	for i, arg := range ve.ABI.Events[ve.EventName].Inputs.NonIndexed() {
		if i >= len(values) {
			break
		}
		switch strings.ToLower(arg.Name) {
		case "amount", "value":
			if v, ok := values[i].(*big.Int); ok {
				ev.Amount = v.String()
			}
		case "asset", "token":
			if v, ok := values[i].(common.Address); ok {
				ev.Asset = v.Hex()
			}
		case strings.ToLower(ve.RecipientArg):
			switch v := values[i].(type) {
			case common.Address:
				ev.Recipient = v.Hex()
			case string:
				ev.Recipient = v
			}
		case "nonce":
			if v, ok := values[i].(*big.Int); ok {
				ev.Nonce = v.Uint64()
			}
		}
	}
	return ev
}

func addressWatched(addr common.Address, watched []common.Address) bool {
	for _, w := range watched {
		if w == addr {
			return true
		}
	}
	return false
}
