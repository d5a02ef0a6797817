// Copyright 2025 Certen Protocol
//
// Package pegscan implements the canon-block peg scanner and
// materialiser: inspecting a newly canonised block for
// peg-in/peg-out events and emitting signed output transactions for the
// partner chain via an injected signer.
package pegscan

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

// Signer is the host-supplied signing interface. The engine
// never holds a private key directly.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	PublicIdentity() (string, error)
}

// SignedTx is one materialised output transaction.
type SignedTx struct {
	Destination chainfamily.MetadataChainID `json:"destinationChainId"`
	Payload     []byte                      `json:"payload"`
	Signature   []byte                      `json:"signature"`
	Event       chainfamily.PegEvent        `json:"event"`

	// BatchID correlates every SignedTx produced by the same Materialise
	// call, for dashboard/log correlation of one canon-block's peg-out
	// batch; it carries no on-chain meaning.
	BatchID string `json:"batchId"`
}

// Scan inspects canonBlock's receipts/txs through capability and returns
// every recognised peg event. An empty recipient is replaced with
// safeAddress; a non-empty recipient is passed through unchanged, whether
// or not it is a well-formed address for the destination chain.
func Scan(capability chainfamily.Capability, canonBlock *chainfamily.Block, safeAddress string) []chainfamily.PegEvent {
	events := capability.ParsePegEvents(canonBlock)
	for i := range events {
		if events[i].Recipient == "" {
			events[i].Recipient = safeAddress
		}
	}
	return events
}

// MaterialiseOptions carries the per-bridge levers that affect
// materialisation.
type MaterialiseOptions struct {
	DisableFees bool
}

// Materialise signs one output transaction per event. Fee deduction
// (when enabled) is the caller's payload-construction responsibility;
// this package only passes opts through to buildPayload, since transaction
// *construction* beyond the contract shape is explicitly out of scope
//.
func Materialise(events []chainfamily.PegEvent, signer Signer, buildPayload func(chainfamily.PegEvent, MaterialiseOptions) ([]byte, error), opts MaterialiseOptions) ([]SignedTx, error) {
	if len(events) == 0 {
		return nil, nil
	}
	batchID := uuid.New().String()

	out := make([]SignedTx, 0, len(events))
	for _, ev := range events {
		payload, err := buildPayload(ev, opts)
		if err != nil {
			return nil, fmt.Errorf("pegscan: build payload for nonce %d: %w", ev.Nonce, err)
		}
		sig, err := signer.Sign(payload)
		if err != nil {
			return nil, fmt.Errorf("pegscan: sign nonce %d: %w", ev.Nonce, err)
		}
		out = append(out, SignedTx{
			Destination: ev.DestinationChainID,
			Payload:     payload,
			Signature:   sig,
			Event:       ev,
			BatchID:     batchID,
		})
	}
	return out, nil
}
