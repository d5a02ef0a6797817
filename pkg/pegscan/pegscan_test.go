package pegscan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
)

type fakeCapability struct {
	events []chainfamily.PegEvent
}

func (f fakeCapability) Validate(*chainfamily.Block, *chainfamily.Block, bool) chainfamily.ValidationResult {
	return chainfamily.Accept()
}
func (f fakeCapability) ParsePegEvents(*chainfamily.Block) []chainfamily.PegEvent { return f.events }
func (f fakeCapability) SerialiseBlock(*chainfamily.Block) []byte                 { return nil }

func TestScanAppliesSafeAddressFallback(t *testing.T) {
	cap := fakeCapability{events: []chainfamily.PegEvent{
		{Recipient: "", Amount: "100"},
		{Recipient: "0xabc", Amount: "200"},
	}}

	events := Scan(cap, &chainfamily.Block{}, "0xSAFE")
	require.Equal(t, "0xSAFE", events[0].Recipient)
	require.Equal(t, "0xabc", events[1].Recipient)
}

type fakeSigner struct {
	failOn int
	calls  int
}

func (s *fakeSigner) Sign(payload []byte) ([]byte, error) {
	s.calls++
	if s.failOn != 0 && s.calls == s.failOn {
		return nil, errors.New("signer unavailable")
	}
	return append([]byte("sig:"), payload...), nil
}
func (s *fakeSigner) PublicIdentity() (string, error) { return "0xvalidator", nil }

func TestMaterialiseSignsEachEvent(t *testing.T) {
	events := []chainfamily.PegEvent{{Nonce: 1}, {Nonce: 2}}
	signer := &fakeSigner{}

	signed, err := Materialise(events, signer, func(ev chainfamily.PegEvent, _ MaterialiseOptions) ([]byte, error) {
		return []byte{byte(ev.Nonce)}, nil
	}, MaterialiseOptions{})

	require.NoError(t, err)
	require.Len(t, signed, 2)
	require.Equal(t, []byte("sig:\x01"), signed[0].Signature)
	require.Equal(t, 2, signer.calls)
	require.NotEmpty(t, signed[0].BatchID)
	require.Equal(t, signed[0].BatchID, signed[1].BatchID, "one Materialise call shares a batch id across events")
}

func TestMaterialiseOnEmptyEventsReturnsNilWithoutSigning(t *testing.T) {
	signer := &fakeSigner{}
	signed, err := Materialise(nil, signer, func(chainfamily.PegEvent, MaterialiseOptions) ([]byte, error) {
		return nil, nil
	}, MaterialiseOptions{})

	require.NoError(t, err)
	require.Nil(t, signed)
	require.Equal(t, 0, signer.calls)
}

func TestMaterialisePropagatesSignerError(t *testing.T) {
	events := []chainfamily.PegEvent{{Nonce: 1}, {Nonce: 2}}
	signer := &fakeSigner{failOn: 2}

	_, err := Materialise(events, signer, func(ev chainfamily.PegEvent, _ MaterialiseOptions) ([]byte, error) {
		return []byte{byte(ev.Nonce)}, nil
	}, MaterialiseOptions{})

	require.Error(t, err)
}
