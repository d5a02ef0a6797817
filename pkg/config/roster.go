package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Roster is the parsed chain-roster manifest: which chain-family
// instances a bridge binary wires up, and the per-chain parameters each
// pkg/chainfamily/* capability needs to construct its Config. A bridge
// pairs exactly two chain cores, one process per chain pair.
type Roster struct {
	Native  ChainEntry `yaml:"native"`
	Interim ChainEntry `yaml:"interim"`
}

// ChainEntry names one side of the bridge and its family-specific
// parameters. Family is one of "evm", "utxo", "eos", "algorand".
type ChainEntry struct {
	Family             string        `yaml:"family"`
	MetadataChainID    string        `yaml:"metadata_chain_id"` // hex, e.g. "0x005fe7f9"
	CanonToTipLength   uint8         `yaml:"canon_to_tip_length"`
	TailLength         uint8         `yaml:"tail_length"`
	SafeAddress        string        `yaml:"safe_address"`
	TimestampTolerance time.Duration `yaml:"timestamp_tolerance"`

	// Feature levers: compile/config-time only, never toggled at runtime.
	NonValidating          bool `yaml:"non_validating"`
	DisableFees            bool `yaml:"disable_fees"`
	Litecoin               bool `yaml:"litecoin"`
	IncludeOriginTxDetails bool `yaml:"include_origin_tx_details"`

	// Family-specific watch sets; interpretation depends on Family.
	VaultAddresses   []string `yaml:"vault_addresses,omitempty"`
	DepositAddresses []string `yaml:"deposit_addresses,omitempty"`
	WatchedAccounts  []string `yaml:"watched_accounts,omitempty"`
	WatchedAppID     uint64   `yaml:"watched_app_id,omitempty"`
	WatchedAssetID   uint64   `yaml:"watched_asset_id,omitempty"`
}

// LoadRoster reads and parses a chain-roster manifest from path.
func LoadRoster(path string) (*Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading roster %s: %w", path, err)
	}
	var r Roster
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("config: parsing roster %s: %w", path, err)
	}
	if err := r.Native.validate("native"); err != nil {
		return nil, err
	}
	if err := r.Interim.validate("interim"); err != nil {
		return nil, err
	}
	return &r, nil
}

func (e ChainEntry) validate(side string) error {
	switch e.Family {
	case "evm", "utxo", "eos", "algorand":
	default:
		return fmt.Errorf("config: roster %s.family %q is not one of evm, utxo, eos, algorand", side, e.Family)
	}
	if e.MetadataChainID == "" {
		return fmt.Errorf("config: roster %s.metadata_chain_id is required", side)
	}
	if e.CanonToTipLength == 0 {
		return fmt.Errorf("config: roster %s.canon_to_tip_length must be nonzero", side)
	}
	return nil
}
