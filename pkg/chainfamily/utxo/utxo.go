// Copyright 2025 Certen Protocol
//
// Package utxo implements the chainfamily.Capability for UTXO-family
// chains (Bitcoin, or Litecoin when the "ltc" lever selects its param
// set). Deposit detection is restricted to the single supported form —
// p2sh payments to the bridge-generated deposit key — via
// btcsuite's script classifier for address/script handling.
package utxo

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

// Config configures one UTXO chain instance.
type Config struct {
	Litecoin               bool // selects the Litecoin parameter set (the "ltc" feature lever)
	DepositAddresses       []string
	SafeAddress            string
	DestinationChainID     chainfamily.MetadataChainID
	SourceChainID          chainfamily.MetadataChainID
	TimestampTolerance     time.Duration
}

func (c Config) params() *chaincfg.Params {
	if c.Litecoin {
		// btcsuite ships no Litecoin params; litecoin's mainnet magic and
		// address prefixes are a well-known variant of chaincfg.Params.
		p := chaincfg.MainNetParams
		p.Net = 0xdbb6c0fb
		p.PubKeyHashAddrID = 0x30
		p.ScriptHashAddrID = 0x32
		return &p
	}
	return &chaincfg.MainNetParams
}

type family struct {
	cfg    Config
	params *chaincfg.Params
}

func New(cfg Config) chainfamily.Capability {
	return &family{cfg: cfg, params: cfg.params()}
}

func (f *family) Validate(block, parent *chainfamily.Block, anchorRelaxed bool) chainfamily.ValidationResult {
	computed := headerHash(block)
	if !anchorRelaxed && !bytes.Equal(computed[:], block.Hash[:]) {
		return chainfamily.Reject(fmt.Sprintf("header hash mismatch: computed %x, claimed %x", computed, block.Hash))
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
		return chainfamily.Reject("merkle root is not a well-formed 32-byte commitment")
	}
	return chainfamily.Accept()
}

// headerHash computes the double-SHA256 the UTXO family uses for block
// header identity, over the fields the engine carries.
func headerHash(block *chainfamily.Block) [32]byte {
	buf := make([]byte, 0, 72)
	buf = append(buf, block.ParentHash[:]...)
	buf = append(buf, block.Commitment[:]...)
	var tsBuf [8]byte
	for i := 0; i < 8; i++ {
		tsBuf[i] = byte(block.Timestamp >> (8 * i))
	}
	buf = append(buf, tsBuf[:]...)
	first := sha256.Sum256(buf)
	return sha256.Sum256(first[:])
}

func (f *family) SerialiseBlock(block *chainfamily.Block) []byte {
	h := headerHash(block)
	return h[:]
}

// rawBody is the JSON shape the feeder encodes into chainfamily.Block.Raw
// for UTXO blocks: the outputs relevant to peg scanning. Inputs and
// non-deposit outputs are omitted; the engine never reconstructs a full
// transaction.
type rawBody struct {
	Txs []rawTx `json:"txs"`
}

type rawTx struct {
	Txid    string      `json:"txid"`
	Outputs []rawOutput `json:"outputs"`
}

type rawOutput struct {
	Value        int64  `json:"value"` // satoshis
	ScriptPubKey string `json:"scriptPubKey"` // hex
	OpReturn     string `json:"opReturn,omitempty"` // hex-decoded ASCII destination, if present
}

func (f *family) ParsePegEvents(block *chainfamily.Block) []chainfamily.PegEvent {
	if len(block.Raw) == 0 {
		return nil
	}
	var body rawBody
	if err := json.Unmarshal(block.Raw, &body); err != nil {
		return nil
	}

	depositSet := make(map[string]struct{}, len(f.cfg.DepositAddresses))
	for _, a := range f.cfg.DepositAddresses {
		depositSet[a] = struct{}{}
	}

	var events []chainfamily.PegEvent
	for _, tx := range body.Txs {
		for _, out := range tx.Outputs {
			script, err := hexDecode(out.ScriptPubKey)
			if err != nil {
				continue
			}
			class, addrs, _, err := txscript.ExtractPkScriptAddrs(script, f.params)
			if err != nil {
				continue
			}
			// Only the p2sh form is a supported deposit type; p2pk,
			// p2pkh and segwit payments are ignored.
			if class != txscript.ScriptHashTy || len(addrs) != 1 {
				continue
			}
			if _, watched := depositSet[addrs[0].EncodeAddress()]; !watched {
				continue
			}

			txid, err := chainhash.NewHashFromStr(tx.Txid)
			if err != nil {
				continue
			}

			recipient := out.OpReturn
			events = append(events, chainfamily.PegEvent{
				Direction:          chainfamily.DirectionIn,
				SourceChainID:      f.cfg.SourceChainID,
				DestinationChainID: f.cfg.DestinationChainID,
				Amount:             btcutil.Amount(out.Value).String(),
				Originator:         txid.String(),
				Recipient:          recipient,
			})
		}
	}
	return events
}

func hexDecode(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("utxo: empty script hex")
	}
	return hex.DecodeString(s)
}
