// Copyright 2025 Certen Protocol
package evm

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// rawBody is the JSON shape the feeder encodes into chainfamily.Block.Raw
// for EVM blocks: the decoded log entries relevant to peg scanning. Full
// receipt/transaction bodies are not carried through the engine boundary;
// only what scanning needs.
type rawBody struct {
	Logs []jsonLog `json:"logs"`
}

type jsonLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"` // hex, 0x-prefixed
	TxHash  string   `json:"txHash"`
}

func (l jsonLog) decode() (decodedLog, error) {
	if !common.IsHexAddress(l.Address) {
		return decodedLog{}, fmt.Errorf("evm: invalid log address %q", l.Address)
	}
	data, err := hexutil.Decode(l.Data)
	if err != nil && l.Data != "" {
		return decodedLog{}, fmt.Errorf("evm: invalid log data: %w", err)
	}
	topics := make([]common.Hash, 0, len(l.Topics))
	for _, t := range l.Topics {
		topics = append(topics, common.HexToHash(t))
	}
	return decodedLog{
		Address: common.HexToAddress(l.Address),
		Topics:  topics,
		Data:    data,
		TxHash:  common.HexToHash(l.TxHash),
	}, nil
}

func decodeLogsFromRaw(raw []byte) ([]decodedLog, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var body rawBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	out := make([]decodedLog, 0, len(body.Logs))
	for _, l := range body.Logs {
		dl, err := l.decode()
		if err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}
