package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validRoster = `
native:
  family: utxo
  metadata_chain_id: "0x01ec97de"
  canon_to_tip_length: 6
  tail_length: 100
  safe_address: "1SafeAddress"
  deposit_addresses:
    - "3DepositAddress"

interim:
  family: evm
  metadata_chain_id: "0xffffffff"
  canon_to_tip_length: 12
  tail_length: 200
  safe_address: "0xSafeAddress"
  vault_addresses:
    - "0x000000000000000000000000000000000000aa"
`

func writeRoster(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadRosterParsesBothSides(t *testing.T) {
	path := writeRoster(t, validRoster)
	roster, err := LoadRoster(path)
	require.NoError(t, err)

	require.Equal(t, "utxo", roster.Native.Family)
	require.Equal(t, uint8(6), roster.Native.CanonToTipLength)
	require.Equal(t, []string{"3DepositAddress"}, roster.Native.DepositAddresses)

	require.Equal(t, "evm", roster.Interim.Family)
	require.Equal(t, []string{"0x000000000000000000000000000000000000aa"}, roster.Interim.VaultAddresses)
}

func TestLoadRosterRejectsUnknownFamily(t *testing.T) {
	path := writeRoster(t, `
native:
  family: solana
  metadata_chain_id: "0x01ec97de"
  canon_to_tip_length: 6
interim:
  family: evm
  metadata_chain_id: "0xffffffff"
  canon_to_tip_length: 6
`)
	_, err := LoadRoster(path)
	require.Error(t, err)
}

func TestLoadRosterRejectsZeroCanonToTipLength(t *testing.T) {
	path := writeRoster(t, `
native:
  family: evm
  metadata_chain_id: "0x005fe7f9"
  canon_to_tip_length: 0
interim:
  family: evm
  metadata_chain_id: "0xffffffff"
  canon_to_tip_length: 6
`)
	_, err := LoadRoster(path)
	require.Error(t, err)
}

func TestLoadRosterRejectsMissingFile(t *testing.T) {
	_, err := LoadRoster("/nonexistent/roster.yaml")
	require.Error(t, err)
}
