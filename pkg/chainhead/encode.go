// Copyright 2025 Certen Protocol
package chainhead

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

// recordVersion is bumped whenever the wire layout of EncodeStoredBlock
// changes incompatibly.
const recordVersion = 1

// EncodeStoredBlock produces a fixed, versioned binary layout that
// round-trips byte-identically, including an ordered (hash-canonicalised)
// child set. JSON is reserved for the lower-stakes config/meta/reporting
// blobs; block records sit on the engine's hot path and get a compact
// binary form.
//
// Layout: version(1) | height(8) | timestamp(8) | hash(32) | parent(32) |
// commitment(32) | sealed(1) | depth(8) | numChildren(4) | children(32 each) |
// rawLen(4) | raw
func EncodeStoredBlock(b *StoredBlock) []byte {
	children := make([][32]byte, len(b.Children))
	copy(children, b.Children)
	sort.Slice(children, func(i, j int) bool {
		return bytes.Compare(children[i][:], children[j][:]) < 0
	})

	buf := new(bytes.Buffer)
	buf.WriteByte(recordVersion)
	writeU64(buf, b.Block.Height)
	writeU64(buf, uint64(b.Block.Timestamp))
	buf.Write(b.Block.Hash[:])
	buf.Write(b.Block.ParentHash[:])
	buf.Write(b.Block.Commitment[:])
	if b.ProvenanceSealed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeU64(buf, b.Depth)
	writeU32(buf, uint32(len(children)))
	for _, c := range children {
		buf.Write(c[:])
	}
	writeU32(buf, uint32(len(b.Block.Raw)))
	buf.Write(b.Block.Raw)
	return buf.Bytes()
}

// DecodeStoredBlock parses the layout written by EncodeStoredBlock.
func DecodeStoredBlock(data []byte) (*StoredBlock, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("chainhead: read version: %w", err)
	}
	if version != recordVersion {
		return nil, fmt.Errorf("chainhead: unsupported record version %d", version)
	}

	height, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("chainhead: read height: %w", err)
	}
	ts, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("chainhead: read timestamp: %w", err)
	}

	var hash, parent, commitment [32]byte
	for _, dst := range [][]byte{hash[:], parent[:], commitment[:]} {
		if _, err := io.ReadFull(r, dst); err != nil {
			return nil, fmt.Errorf("chainhead: read hash field: %w", err)
		}
	}

	sealedByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("chainhead: read sealed flag: %w", err)
	}

	depth, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("chainhead: read depth: %w", err)
	}

	numChildren, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("chainhead: read child count: %w", err)
	}
	children := make([][32]byte, numChildren)
	for i := range children {
		if _, err := io.ReadFull(r, children[i][:]); err != nil {
			return nil, fmt.Errorf("chainhead: read child %d: %w", i, err)
		}
	}

	rawLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("chainhead: read raw length: %w", err)
	}
	raw := make([]byte, rawLen)
	if rawLen > 0 {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("chainhead: read raw body: %w", err)
		}
	}

	return &StoredBlock{
		Block: chainfamily.Block{
			Hash:       hash,
			ParentHash: parent,
			Height:     height,
			Timestamp:  int64(ts),
			Commitment: commitment,
			Raw:        raw,
		},
		Depth:            depth,
		Children:         children,
		ProvenanceSealed: sealedByte == 1,
	}, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
