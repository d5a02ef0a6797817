package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
	"github.com/certen-bridge/lightcore/pkg/chainhead"
	"github.com/certen-bridge/lightcore/pkg/corerr"
	"github.com/certen-bridge/lightcore/pkg/pegscan"
	"github.com/certen-bridge/lightcore/pkg/storage"
	"github.com/certen-bridge/lightcore/pkg/storage/memkv"
)

// fakeCapability accepts every block whose hash is non-zero and yields a
// peg event for any block whose height is in wantEvents.
type fakeCapability struct {
	wantEvents map[uint64]chainfamily.PegEvent
}

func (f fakeCapability) Validate(block, parent *chainfamily.Block, anchorRelaxed bool) chainfamily.ValidationResult {
	if block.Hash == ([32]byte{}) {
		return chainfamily.Reject("zero hash")
	}
	return chainfamily.Accept()
}

func (f fakeCapability) ParsePegEvents(block *chainfamily.Block) []chainfamily.PegEvent {
	if ev, ok := f.wantEvents[block.Height]; ok {
		return []chainfamily.PegEvent{ev}
	}
	return nil
}

func (f fakeCapability) SerialiseBlock(block *chainfamily.Block) []byte { return block.Hash[:] }

type fakeSigner struct{ fail bool }

func (s fakeSigner) Sign(payload []byte) ([]byte, error) {
	if s.fail {
		return nil, errors.New("signer offline")
	}
	return append([]byte("sig:"), payload...), nil
}
func (s fakeSigner) PublicIdentity() (string, error) { return "0xtest", nil }

func blockAt(height uint64, hashByte byte, parentByte byte) *chainfamily.Block {
	var h, p [32]byte
	h[31] = hashByte
	p[31] = parentByte
	return &chainfamily.Block{Hash: h, ParentHash: p, Height: height, Timestamp: int64(100 + height)}
}

func newEngine(t *testing.T, cap chainfamily.Capability, signer pegscan.Signer) *Engine {
	t.Helper()
	return &Engine{
		Facade:     memkv.New(),
		Capability: cap,
		Signer:     signer,
		ChainID:    chainfamily.EthereumMainnet,
		BuildPayload: func(ev chainfamily.PegEvent, _ pegscan.MaterialiseOptions) ([]byte, error) {
			return []byte(ev.Originator), nil
		},
	}
}

func initEngine(t *testing.T, e *Engine, canonToTip uint8, tailLen uint64) {
	t.Helper()
	anchor := blockAt(0, 1, 1)
	cfg := &chainhead.Config{ChainID: e.ChainID, CanonToTipLength: canonToTip, TailLength: tailLen, SafeAddress: "0xsafe"}
	require.NoError(t, e.Initialize(context.Background(), anchor, cfg))
}

func TestInitializeRejectsSecondCall(t *testing.T) {
	e := newEngine(t, fakeCapability{}, fakeSigner{})
	initEngine(t, e, 2, 3)

	anchor := blockAt(0, 1, 1)
	cfg := &chainhead.Config{ChainID: e.ChainID, CanonToTipLength: 2, TailLength: 3}
	err := e.Initialize(context.Background(), anchor, cfg)
	require.Error(t, err)
	require.True(t, corerr.Is(err, corerr.KindAlreadyInitialised))
}

func TestSubmitBlockRejectsOrphan(t *testing.T) {
	e := newEngine(t, fakeCapability{}, fakeSigner{})
	initEngine(t, e, 2, 3)

	orphan := blockAt(5, 9, 8) // parent 8 was never submitted
	_, err := e.SubmitBlock(context.Background(), orphan)
	require.Error(t, err)
	require.True(t, corerr.Is(err, corerr.KindOrphanBlock))
}

func TestSubmitBlockRejectsInvalidBlock(t *testing.T) {
	e := newEngine(t, fakeCapability{}, fakeSigner{})
	initEngine(t, e, 2, 3)

	bad := blockAt(1, 0, 1) // zero hash triggers fakeCapability rejection
	bad.Hash = [32]byte{}
	bad.ParentHash = [32]byte{31: 1} // the anchor
	_, err := e.SubmitBlock(context.Background(), bad)
	require.Error(t, err)
	require.True(t, corerr.Is(err, corerr.KindInvalidBlock))
}

func TestSubmitBlockExtendsChainWithoutCanonAdvanceWhenShallow(t *testing.T) {
	e := newEngine(t, fakeCapability{}, fakeSigner{})
	initEngine(t, e, 5, 5)

	b1 := blockAt(1, 2, 1)
	result, err := e.SubmitBlock(context.Background(), b1)
	require.NoError(t, err)
	require.False(t, result.CanonAdvanced)
	require.False(t, result.IsReorg)
	require.Equal(t, b1.Hash, result.NewLatest)
}

func TestSubmitBlockAdvancesCanonAndScansEvents(t *testing.T) {
	events := map[uint64]chainfamily.PegEvent{
		1: {Direction: chainfamily.DirectionIn, Originator: "tx1", Nonce: 1},
	}
	e := newEngine(t, fakeCapability{wantEvents: events}, fakeSigner{})
	initEngine(t, e, 1, 1) // canon is 1 block behind tip

	b1 := blockAt(1, 2, 1)
	_, err := e.SubmitBlock(context.Background(), b1)
	require.NoError(t, err)

	b2 := blockAt(2, 3, 2)
	result, err := e.SubmitBlock(context.Background(), b2)
	require.NoError(t, err)
	require.True(t, result.CanonAdvanced)
	require.Len(t, result.SignedTxs, 1)
	require.Equal(t, "sig:tx1", string(result.SignedTxs[0].Signature))
}

func TestSubmitBlockPropagatesSignerFailureAndAbortsTransaction(t *testing.T) {
	events := map[uint64]chainfamily.PegEvent{
		1: {Direction: chainfamily.DirectionIn, Originator: "tx1", Nonce: 1},
	}
	e := newEngine(t, fakeCapability{wantEvents: events}, fakeSigner{fail: true})
	initEngine(t, e, 1, 1)

	b1 := blockAt(1, 2, 1)
	_, err := e.SubmitBlock(context.Background(), b1)
	require.NoError(t, err)

	b2 := blockAt(2, 3, 2)
	_, err = e.SubmitBlock(context.Background(), b2)
	require.Error(t, err)

	// Height must reflect the pre-failure canon, since the whole
	// transaction rolled back.
	height, err := e.GetChainHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0), height)
}

func TestGetChainHeightReflectsCanonPointer(t *testing.T) {
	e := newEngine(t, fakeCapability{}, fakeSigner{})
	initEngine(t, e, 5, 5)

	height, err := e.GetChainHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0), height)
}

// --- end-to-end scenarios: cold init, a two-stage re-org, and a rejected
// too-deep re-org, all against canon_to_tip_length=2, tail_length=1 (max
// re-org depth 3). ---

func fetchPointers(t *testing.T, e *Engine) *chainhead.Pointers {
	t.Helper()
	var p *chainhead.Pointers
	err := storage.WithTx(context.Background(), e.Facade, func(tx storage.Tx) error {
		pts, err := chainhead.New(tx, e.ChainID).GetPointers()
		if err != nil {
			return err
		}
		p = pts
		return nil
	})
	require.NoError(t, err)
	return p
}

func fetchLinkerHash(t *testing.T, e *Engine) [32]byte {
	t.Helper()
	var h [32]byte
	err := storage.WithTx(context.Background(), e.Facade, func(tx storage.Tx) error {
		lh, err := chainhead.New(tx, e.ChainID).GetLinkerHash()
		if err != nil {
			return err
		}
		h = lh
		return nil
	})
	require.NoError(t, err)
	return h
}

func blockExists(t *testing.T, e *Engine, hash [32]byte) bool {
	t.Helper()
	found := true
	err := storage.WithTx(context.Background(), e.Facade, func(tx storage.Tx) error {
		_, err := chainhead.New(tx, e.ChainID).GetBlock(hash)
		if err == storage.ErrNotFound {
			found = false
			return nil
		}
		return err
	})
	require.NoError(t, err)
	return found
}

func mustSubmit(t *testing.T, e *Engine, b *chainfamily.Block) *SubmitResult {
	t.Helper()
	res, err := e.SubmitBlock(context.Background(), b)
	require.NoError(t, err)
	return res
}

// coldChainState initialises a chain and submits four blocks in a
// straight line, heights 1 through 4, with no competing forks.
func coldChainState(t *testing.T) (e *Engine, b1, b2, b3, b4 *chainfamily.Block) {
	t.Helper()
	e = newEngine(t, fakeCapability{}, fakeSigner{})
	initEngine(t, e, 2, 1)

	b1 = blockAt(1, 0x02, 0x01)
	b2 = blockAt(2, 0x03, 0x02)
	b3 = blockAt(3, 0x04, 0x03)
	b4 = blockAt(4, 0x05, 0x04)
	for _, b := range []*chainfamily.Block{b1, b2, b3, b4} {
		mustSubmit(t, e, b)
	}
	return
}

func TestE1ColdInitThenLinearAdvance(t *testing.T) {
	anchor := blockAt(0, 1, 1)
	e, b1, b2, _, b4 := coldChainState(t)

	pointers := fetchPointers(t, e)
	require.Equal(t, anchor.Hash, pointers.Anchor)
	require.Equal(t, b4.Hash, pointers.Latest)
	require.Equal(t, b2.Hash, pointers.Canon)
	require.Equal(t, b1.Hash, pointers.Tail)
}

// reorgState continues from the cold chain by submitting a competing
// branch B3'->B4'->B5', incrementally: B3' and B4' are merely recorded
// (they never outscore the original B4 until B5' pushes height past it),
// and B5' finally triggers the re-org.
func reorgState(t *testing.T) (e *Engine, b1, b2, b3, b4, b3p, b4p, b5p *chainfamily.Block) {
	t.Helper()
	e, b1, b2, b3, b4 = coldChainState(t)

	b3p = blockAt(3, 0x13, 0x03) // parent = b2
	b4p = blockAt(4, 0x14, 0x13) // parent = b3'
	b5p = blockAt(5, 0x15, 0x14) // parent = b4'

	res3p := mustSubmit(t, e, b3p)
	require.False(t, res3p.IsReorg, "B3' does not yet outscore the original B4")

	res4p := mustSubmit(t, e, b4p)
	require.False(t, res4p.IsReorg, "B4' ties the original B4's height, first-seen wins")

	res5p := mustSubmit(t, e, b5p)
	require.True(t, res5p.IsReorg, "B5' strictly exceeds the original branch's height")

	return
}

func TestE2ReorgWithinWindowDiscardsDisplacedBranch(t *testing.T) {
	e, b1, b2, b3, b4, b3p, b4p, b5p := reorgState(t)

	pointers := fetchPointers(t, e)
	require.Equal(t, b5p.Hash, pointers.Latest)
	require.Equal(t, b3p.Hash, pointers.Canon)
	require.Equal(t, b2.Hash, pointers.Tail)

	require.False(t, blockExists(t, e, b1.Hash), "original tail ancestor is folded into linker_hash and discarded")
	require.False(t, blockExists(t, e, b3.Hash), "displaced original B3 is discarded")
	require.False(t, blockExists(t, e, b4.Hash), "displaced original B4, a descendant of B3, is discarded with it")
	require.True(t, blockExists(t, e, b2.Hash), "shared ancestor survives as the new tail")
	require.True(t, blockExists(t, e, b3p.Hash))
	require.True(t, blockExists(t, e, b4p.Hash))
}

func TestE3TailTruncationFoldsLinkerHashAgain(t *testing.T) {
	e, _, b2, _, _, b3p, b4p, b5p := reorgState(t)

	afterE2 := fetchLinkerHash(t, e)

	b6p := blockAt(6, 0x16, 0x15) // parent = b5'
	res := mustSubmit(t, e, b6p)
	require.True(t, res.TailAdvanced)

	pointers := fetchPointers(t, e)
	require.Equal(t, b6p.Hash, pointers.Latest)
	require.Equal(t, b4p.Hash, pointers.Canon)
	require.Equal(t, b3p.Hash, pointers.Tail)

	require.False(t, blockExists(t, e, b2.Hash), "old tail folds into linker_hash on the next truncation")

	afterE3 := fetchLinkerHash(t, e)
	require.NotEqual(t, afterE2, afterE3, "linker_hash must fold again on the second truncation")
	require.True(t, blockExists(t, e, b5p.Hash), "b5' remains on the canonical branch")
}

func TestE6RejectsReorgDeeperThanWindow(t *testing.T) {
	e, _, _, _, _, _, _, _ := reorgState(t)
	b6p := blockAt(6, 0x16, 0x15) // parent = b5', the E3 truncation step
	mustSubmit(t, e, b6p)

	before := fetchPointers(t, e)

	// Parented directly on the anchor: common ancestor with latest is far
	// beyond canon_to_tip_length + tail_length hops away.
	tooDeep := blockAt(7, 0x99, 1)
	_, err := e.SubmitBlock(context.Background(), tooDeep)
	require.Error(t, err)
	require.True(t, corerr.Is(err, corerr.KindReorgTooDeep))

	after := fetchPointers(t, e)
	require.Equal(t, before, after)
}
