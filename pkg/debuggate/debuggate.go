// Package debuggate implements the Debug-Signer Gate:
// privileged operations — adding/removing debug signatories, forcing
// pointer rewinds — must carry a signature over a canonical encoding of
// the request from an address in the current roster. The gate verifies
// the signature and otherwise forwards the operation; it holds no
// private key itself.
package debuggate

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen-bridge/lightcore/pkg/corerr"
	"github.com/certen-bridge/lightcore/pkg/storage"
)

// storageKey is where the gate's roster and nonce are persisted. One
// gate serves an entire bridge process (both chain instances), so this
// key carries no chain/<id>/ prefix.
const storageKey = "debug_signers"

// ActionTag distinguishes the kind of privileged request being signed,
// so a signature over one action can never be replayed as another.
type ActionTag byte

const (
	ActionAddSigner    ActionTag = 0x01
	ActionRemoveSigner ActionTag = 0x02
	ActionForceRewind  ActionTag = 0x03
)

// Gate holds the current debug-signatory roster and the next expected
// nonce. A request is authorised by one signature from any roster
// member; requiredCount is stored and persisted with the roster but
// Verify does not consult it and accepts no second signature. The roster
// is kept in insertion order: Roster() and the persisted form both
// reflect the order signatories were added in, never map iteration
// order.
type Gate struct {
	mu            sync.Mutex
	roster        []string // lowercase 0x-hex addresses, insertion order
	nextNonce     uint64
	requiredCount int
}

// persistedGate is the JSON shape stored under storageKey.
type persistedGate struct {
	Roster        []string `json:"roster"`
	NextNonce     uint64   `json:"nextNonce"`
	RequiredCount int      `json:"requiredCount"`
}

// New constructs a Gate seeded with the initialiser's trusted first
// signatory.
func New(firstSigner string, requiredCount int) *Gate {
	if requiredCount < 1 {
		requiredCount = 1
	}
	g := &Gate{requiredCount: requiredCount}
	if firstSigner != "" {
		g.roster = append(g.roster, normalise(firstSigner))
	}
	return g
}

// LoadGate reads the gate's roster and nonce from tx. Returns
// storage.ErrNotFound if no gate has been persisted yet; callers should
// fall back to New on that error.
func LoadGate(tx storage.Tx) (*Gate, error) {
	b, err := tx.Get([]byte(storageKey))
	if err != nil {
		return nil, err
	}
	var p persistedGate
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("debuggate: unmarshal persisted gate: %w", err)
	}
	roster := make([]string, len(p.Roster))
	copy(roster, p.Roster)
	return &Gate{roster: roster, nextNonce: p.NextNonce, requiredCount: p.RequiredCount}, nil
}

// Persist writes the gate's current roster and nonce to tx under
// storageKey, the `debug_signers` entry of the persisted layout.
func (g *Gate) Persist(tx storage.Tx) error {
	g.mu.Lock()
	roster := make([]string, len(g.roster))
	copy(roster, g.roster)
	p := persistedGate{Roster: roster, NextNonce: g.nextNonce, RequiredCount: g.requiredCount}
	g.mu.Unlock()

	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("debuggate: marshal gate: %w", err)
	}
	return tx.Put([]byte(storageKey), b, storage.SensitivityHigh)
}

// Roster returns the current debug-signatory addresses in insertion
// order, for enclave state reporting.
func (g *Gate) Roster() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.roster))
	copy(out, g.roster)
	return out
}

// CanonicalRequest builds the exact byte sequence a debug signature
// covers: action_tag(1) || nonce_be(8) || roster_len_be(4) ||
// roster_bytes || payload_len_be(4) || payload_bytes. roster_bytes is
// the *current* roster addresses in sorted order, each written as
// "<len>:<address>;" (see joinSorted), binding a signature to the roster
// state it was produced against.
func CanonicalRequest(action ActionTag, nonce uint64, roster []string, payload []byte) []byte {
	rosterBytes := []byte(joinSorted(roster))

	buf := make([]byte, 0, 1+8+4+len(rosterBytes)+4+len(payload))
	buf = append(buf, byte(action))

	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	buf = append(buf, nonceBuf[:]...)

	var rosterLen [4]byte
	binary.BigEndian.PutUint32(rosterLen[:], uint32(len(rosterBytes)))
	buf = append(buf, rosterLen[:]...)
	buf = append(buf, rosterBytes...)

	var payloadLen [4]byte
	binary.BigEndian.PutUint32(payloadLen[:], uint32(len(payload)))
	buf = append(buf, payloadLen[:]...)
	buf = append(buf, payload...)

	return buf
}

// Verify checks sig over the canonical encoding of (action, nonce,
// current roster, payload), recovers the signing address, and confirms
// it is a current roster member with a nonce no earlier than expected.
// On success it advances the gate's nonce; the caller then applies the
// operation. Operations are applied atomically by the caller: Verify
// performs no storage effects itself.
func (g *Gate) Verify(action ActionTag, nonce uint64, payload []byte, sig []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if nonce < g.nextNonce {
		return corerr.Unauthorised("stale nonce")
	}

	msg := CanonicalRequest(action, nonce, g.rosterLocked(), payload)
	digest := sha256.Sum256(msg)

	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return corerr.SignerError(fmt.Errorf("debuggate: recovering signer: %w", err))
	}
	addr := normalise(crypto.PubkeyToAddress(*pub).Hex())

	if !g.isMemberLocked(addr) {
		return corerr.Unauthorised("recovered address is not a debug signatory")
	}

	g.nextNonce = nonce + 1
	return nil
}

// AddSigner installs a new debug signatory at the end of the roster.
// Must only be called after a successful Verify for ActionAddSigner.
// Re-adding an existing member is a no-op: the roster never holds
// duplicates.
func (g *Gate) AddSigner(addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := normalise(addr)
	if g.isMemberLocked(n) {
		return
	}
	g.roster = append(g.roster, n)
}

// RemoveSigner removes a debug signatory. Must only be called after a
// successful Verify for ActionRemoveSigner. Removing the last signatory
// is refused: the gate must never become unopenable.
func (g *Gate) RemoveSigner(addr string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.roster) <= 1 {
		return fmt.Errorf("debuggate: refusing to remove the last debug signatory")
	}
	n := normalise(addr)
	for i, a := range g.roster {
		if a == n {
			g.roster = append(g.roster[:i], g.roster[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("debuggate: %s is not a debug signatory", addr)
}

func (g *Gate) isMemberLocked(addr string) bool {
	for _, a := range g.roster {
		if a == addr {
			return true
		}
	}
	return false
}

func (g *Gate) rosterLocked() []string {
	return g.roster
}

func normalise(addr string) string {
	out := make([]byte, 0, len(addr))
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// joinSorted concatenates addresses in ascending order with a
// length-delimiting separator, avoiding ambiguity between e.g.
// ["ab","c"] and ["a","bc"].
func joinSorted(addrs []string) string {
	sorted := append([]string(nil), addrs...)
	sort.Strings(sorted)
	out := ""
	for _, a := range sorted {
		out += fmt.Sprintf("%d:%s;", len(a), a)
	}
	return out
}
