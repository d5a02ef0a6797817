package eos

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

func TestValidateAcceptsMatchingBlockHash(t *testing.T) {
	f := New(Config{}).(*family)
	parent := &chainfamily.Block{Hash: [32]byte{1}, Timestamp: 10}
	block := &chainfamily.Block{ParentHash: parent.Hash, Timestamp: 20, Commitment: [32]byte{2}}
	block.Hash = blockHash(block)

	require.True(t, f.Validate(block, parent, false).Accepted)
}

func TestValidateRejectsParentMismatch(t *testing.T) {
	f := New(Config{}).(*family)
	parent := &chainfamily.Block{Hash: [32]byte{1}}
	block := &chainfamily.Block{ParentHash: [32]byte{0xFF}, Commitment: [32]byte{2}}
	block.Hash = blockHash(block)

	require.False(t, f.Validate(block, parent, false).Accepted)
}

func TestValidateAcceptsZeroValuedCommitment(t *testing.T) {
	f := New(Config{}).(*family)
	block := &chainfamily.Block{Commitment: [32]byte{}}
	block.Hash = blockHash(block)

	result := f.Validate(block, nil, false)
	require.True(t, result.Accepted, "zero-valued commitment is still 32 bytes, only length is checked")
}

func TestParsePegEventsOnlyMatchesWatchedAccountTransfers(t *testing.T) {
	f := New(Config{WatchedAccounts: []string{"eosio.token"}}).(*family)

	raw, err := json.Marshal(rawBody{Actions: []rawAction{
		{Account: "eosio.token", Name: "transfer", TxID: "abc", Quantity: "1.0000 EOS", Memo: "0xdest"},
		{Account: "other.acct", Name: "transfer", TxID: "xyz", Quantity: "2.0000 EOS", Memo: "0xdest2"},
		{Account: "eosio.token", Name: "issue", TxID: "def", Quantity: "3.0000 EOS", Memo: "0xdest3"},
	}})
	require.NoError(t, err)

	events := f.ParsePegEvents(&chainfamily.Block{Raw: raw})
	require.Len(t, events, 1)
	require.Equal(t, "0xdest", events[0].Recipient)
	require.Equal(t, "1.0000 EOS", events[0].Amount)
}

func TestParsePegEventsEmptyRawYieldsNoEvents(t *testing.T) {
	f := New(Config{}).(*family)
	require.Empty(t, f.ParsePegEvents(&chainfamily.Block{}))
}

func TestSerialiseBlockMatchesBlockHash(t *testing.T) {
	f := New(Config{}).(*family)
	block := &chainfamily.Block{ParentHash: [32]byte{3}, Commitment: [32]byte{4}, Timestamp: 99}
	h := blockHash(block)
	require.Equal(t, h[:], f.SerialiseBlock(block))
}
