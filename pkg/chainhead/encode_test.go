package chainhead

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := &StoredBlock{
		Block: chainfamily.Block{
			Hash:       [32]byte{1, 2, 3},
			ParentHash: [32]byte{4, 5, 6},
			Height:     42,
			Timestamp:  1_700_000_000,
			Commitment: [32]byte{7, 8, 9},
			Raw:        []byte(`{"logs":[]}`),
		},
		Depth:            3,
		Children:         [][32]byte{{9, 9, 9}, {1, 1, 1}, {5, 5, 5}},
		ProvenanceSealed: true,
	}

	encoded := EncodeStoredBlock(b)
	decoded, err := DecodeStoredBlock(encoded)
	require.NoError(t, err)

	require.Equal(t, b.Block.Hash, decoded.Block.Hash)
	require.Equal(t, b.Block.ParentHash, decoded.Block.ParentHash)
	require.Equal(t, b.Block.Height, decoded.Block.Height)
	require.Equal(t, b.Block.Timestamp, decoded.Block.Timestamp)
	require.Equal(t, b.Block.Commitment, decoded.Block.Commitment)
	require.Equal(t, b.Block.Raw, decoded.Block.Raw)
	require.Equal(t, b.Depth, decoded.Depth)
	require.True(t, decoded.ProvenanceSealed)

	// Children must come back canonically sorted by byte order, regardless
	// of insertion order.
	require.Equal(t, [][32]byte{{1, 1, 1}, {5, 5, 5}, {9, 9, 9}}, decoded.Children)
}

func TestEncodeDecodeEmptyChildrenAndRaw(t *testing.T) {
	b := &StoredBlock{
		Block: chainfamily.Block{Hash: [32]byte{1}, ParentHash: [32]byte{1}, Height: 0},
	}
	encoded := EncodeStoredBlock(b)
	decoded, err := DecodeStoredBlock(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded.Children)
	require.Empty(t, decoded.Block.Raw)
	require.False(t, decoded.ProvenanceSealed)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	_, err := DecodeStoredBlock([]byte{9, 0, 0, 0})
	require.Error(t, err)
}
