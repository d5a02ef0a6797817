// Command bridgecore is the thin CLI wrapper around a pair of
// pkg/engine.Engine instances. It contains no
// engine logic of its own: it loads a chain-roster YAML, reads a JSON
// payload from disk or stdin, constructs the requested chain's engine,
// invokes exactly one operation, and prints a JSON result to stdout.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen-bridge/lightcore/pkg/chainfamily"
	"github.com/certen-bridge/lightcore/pkg/chainfamily/algorand"
	"github.com/certen-bridge/lightcore/pkg/chainfamily/eos"
	"github.com/certen-bridge/lightcore/pkg/chainfamily/evm"
	"github.com/certen-bridge/lightcore/pkg/chainfamily/utxo"
	"github.com/certen-bridge/lightcore/pkg/chainhead"
	"github.com/certen-bridge/lightcore/pkg/config"
	"github.com/certen-bridge/lightcore/pkg/dashboardsync"
	"github.com/certen-bridge/lightcore/pkg/debuggate"
	"github.com/certen-bridge/lightcore/pkg/enclave"
	"github.com/certen-bridge/lightcore/pkg/engine"
	"github.com/certen-bridge/lightcore/pkg/metrics"
	"github.com/certen-bridge/lightcore/pkg/pegscan"
	"github.com/certen-bridge/lightcore/pkg/storage"
	"github.com/certen-bridge/lightcore/pkg/storage/memkv"
	"github.com/certen-bridge/lightcore/pkg/storage/pgkv"
)

func main() {
	var (
		rosterPath = flag.String("roster", "", "path to the chain roster YAML manifest")
		side       = flag.String("side", "", "which roster side to operate on: native or interim")
		op         = flag.String("op", "", "operation: init, submit, height, state, debug-add-signer, debug-remove-signer")
		inputPath  = flag.String("input", "-", "path to a JSON input payload, or - for stdin")
		sigHex     = flag.String("sig", "", "hex-encoded signature authorising a debug-gated operation")
		nonce      = flag.Uint64("nonce", 0, "nonce for the debug-gated operation signature")
		address    = flag.String("address", "", "debug signatory address (debug-remove-signer)")
		showHelp   = flag.Bool("help", false, "show help message")
	)
	flag.Parse()

	if *showHelp || *op == "" {
		printHelp()
		return
	}

	if err := run(*rosterPath, *side, *op, *inputPath, *sigHex, *address, *nonce); err != nil {
		fmt.Fprintln(os.Stderr, "bridgecore: error:", err)
		_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"error": err.Error()})
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`bridgecore — thin CLI wrapper over a lightcore chain engine pair

Usage:
  bridgecore -roster roster.yaml -side native -op init   -input anchor.json
  bridgecore -roster roster.yaml -side native -op submit  -input block.json
  bridgecore -roster roster.yaml -side native -op height
  bridgecore -roster roster.yaml -side native -op state
  bridgecore -roster roster.yaml -side native -op debug-add-signer    -input roster.json -nonce 1 -sig HEX
  bridgecore -roster roster.yaml -side native -op debug-remove-signer -address 0x...     -nonce 2 -sig HEX

Flags:`)
	flag.PrintDefaults()
}

func run(rosterPath, side, op, inputPath, sigHex, address string, nonce uint64) error {
	if rosterPath == "" {
		return fmt.Errorf("-roster is required")
	}
	roster, err := config.LoadRoster(rosterPath)
	if err != nil {
		return err
	}

	var entry config.ChainEntry
	switch side {
	case "native":
		entry = roster.Native
	case "interim":
		entry = roster.Interim
	default:
		return fmt.Errorf("-side must be native or interim, got %q", side)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	facade, err := buildFacade(cfg)
	if err != nil {
		return err
	}

	chainID, err := chainfamily.ParseMetadataChainID(entry.MetadataChainID)
	if err != nil {
		return err
	}

	capability, err := buildCapability(entry, chainID)
	if err != nil {
		return err
	}
	if entry.NonValidating {
		capability = chainfamily.NonValidating(capability, log.New(os.Stderr, "[bridgecore] ", log.LstdFlags))
	}

	eng := &engine.Engine{
		Facade:     facade,
		Capability: capability,
		Signer:     noopSigner{},
		Metrics:    metrics.New(prometheus.DefaultRegisterer),
		ChainID:    chainID,
		BuildPayload: func(ev chainfamily.PegEvent, _ pegscan.MaterialiseOptions) ([]byte, error) {
			return json.Marshal(ev)
		},
	}
	serveMetrics(cfg.MetricsAddr)

	ctx := context.Background()

	switch op {
	case "init":
		raw, err := readInput(inputPath)
		if err != nil {
			return err
		}
		var anchor chainfamily.Block
		if err := json.Unmarshal(raw, &anchor); err != nil {
			return fmt.Errorf("decoding anchor block: %w", err)
		}
		chCfg := &chainhead.Config{
			ChainID:                chainID,
			CanonToTipLength:       entry.CanonToTipLength,
			TailLength:             uint64(entry.TailLength),
			SafeAddress:            entry.SafeAddress,
			NonValidating:          entry.NonValidating,
			DisableFees:            entry.DisableFees,
			Litecoin:               entry.Litecoin,
			IncludeOriginTxDetails: entry.IncludeOriginTxDetails,
		}
		if err := eng.Initialize(ctx, &anchor, chCfg); err != nil {
			return err
		}
		return printJSON(map[string]string{"status": "initialised"})

	case "submit":
		raw, err := readInput(inputPath)
		if err != nil {
			return err
		}
		var block chainfamily.Block
		if err := json.Unmarshal(raw, &block); err != nil {
			return fmt.Errorf("decoding block: %w", err)
		}
		result, err := eng.SubmitBlock(ctx, &block)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "height":
		height, err := eng.GetChainHeight(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]uint64{"height": height})

	case "state":
		gate, err := loadOrBootstrapGate(ctx, facade, cfg)
		if err != nil {
			return err
		}
		snap, err := enclave.Report(ctx, facade, chainID, gate)
		if err != nil {
			return err
		}
		if cfg.FirestoreEnabled {
			dash, err := dashboardsync.New(ctx, dashboardsync.Config{
				ProjectID:       cfg.FirebaseProjectID,
				CredentialsFile: cfg.FirebaseCredentialsFile,
				Enabled:         true,
			})
			if err != nil {
				return err
			}
			defer dash.Close()
			dash.PublishSnapshot(ctx, snap)
		}
		return printJSON(snap)

	case "debug-add-signer":
		gate, err := loadOrBootstrapGate(ctx, facade, cfg)
		if err != nil {
			return err
		}
		raw, err := readInput(inputPath)
		if err != nil {
			return err
		}
		var req struct {
			Addresses []string `json:"addresses"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("decoding debug-add-signer payload: %w", err)
		}
		sig, err := decodeSig(sigHex)
		if err != nil {
			return err
		}
		if err := gate.Verify(debuggate.ActionAddSigner, nonce, raw, sig); err != nil {
			return err
		}
		for _, a := range req.Addresses {
			gate.AddSigner(a)
		}
		if err := storage.WithTx(ctx, facade, func(tx storage.Tx) error { return gate.Persist(tx) }); err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"status": "signer(s) added", "roster": gate.Roster()})

	case "debug-remove-signer":
		if address == "" {
			return fmt.Errorf("-address is required for debug-remove-signer")
		}
		gate, err := loadOrBootstrapGate(ctx, facade, cfg)
		if err != nil {
			return err
		}
		sig, err := decodeSig(sigHex)
		if err != nil {
			return err
		}
		if err := gate.Verify(debuggate.ActionRemoveSigner, nonce, []byte(address), sig); err != nil {
			return err
		}
		if err := gate.RemoveSigner(address); err != nil {
			return err
		}
		if err := storage.WithTx(ctx, facade, func(tx storage.Tx) error { return gate.Persist(tx) }); err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"status": "signer removed", "roster": gate.Roster()})

	default:
		return fmt.Errorf("unknown -op %q", op)
	}
}

// loadOrBootstrapGate loads the process-wide debug-signer gate from
// facade, seeding it from cfg.DebugSignerRosterPath on first use when no
// gate has been persisted yet.
func loadOrBootstrapGate(ctx context.Context, facade storage.Facade, cfg *config.Config) (*debuggate.Gate, error) {
	var gate *debuggate.Gate
	err := storage.WithTx(ctx, facade, func(tx storage.Tx) error {
		loaded, err := debuggate.LoadGate(tx)
		if err == nil {
			gate = loaded
			return nil
		}
		if err != storage.ErrNotFound {
			return err
		}

		firstSigner, err := readFirstSigner(cfg.DebugSignerRosterPath)
		if err != nil {
			return err
		}
		gate = debuggate.New(firstSigner, cfg.DebugSignerRequiredCount)
		return gate.Persist(tx)
	})
	if err != nil {
		return nil, err
	}
	return gate, nil
}

// readFirstSigner reads the trusted bootstrap signatory address from
// path, the first non-empty line of the debug-signer roster file.
func readFirstSigner(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("bridgecore: LIGHTCORE_DEBUG_SIGNER_ROSTER_PATH must be set to bootstrap the debug-signer gate")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("bridgecore: reading debug signer roster: %w", err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if addr := strings.TrimSpace(line); addr != "" {
			return addr, nil
		}
	}
	return "", fmt.Errorf("bridgecore: debug signer roster file %s has no addresses", path)
}

// decodeSig hex-decodes a --sig flag value, tolerating an optional 0x
// prefix.
func decodeSig(s string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("bridgecore: decoding -sig: %w", err)
	}
	return sig, nil
}

// serveMetrics starts a background /metrics exposer when addr is set.
// bridgecore itself exits after one operation; this only matters when
// the process is kept alive by a supervisor issuing repeated
// submissions into the same binary invocation rather than respawning
// per call.
func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("bridgecore: metrics server stopped: %v", err)
		}
	}()
}

func buildFacade(cfg *config.Config) (storage.Facade, error) {
	switch cfg.StorageBackend {
	case "pgkv":
		return pgkv.Open(cfg.PostgresDSN, "lightcore")
	default:
		return memkv.New(), nil
	}
}

func buildCapability(entry config.ChainEntry, chainID chainfamily.MetadataChainID) (chainfamily.Capability, error) {
	tolerance := entry.TimestampTolerance
	if tolerance == 0 {
		tolerance = 2 * time.Minute
	}

	switch entry.Family {
	case "evm":
		addrs := make([]common.Address, 0, len(entry.VaultAddresses))
		for _, a := range entry.VaultAddresses {
			addrs = append(addrs, common.HexToAddress(a))
		}
		return evm.New(evm.Config{
			VaultAddresses:         addrs,
			SafeAddress:            entry.SafeAddress,
			SourceChainID:          chainID,
			TimestampTolerance:     tolerance,
			IncludeOriginTxDetails: entry.IncludeOriginTxDetails,
		}), nil

	case "utxo":
		return utxo.New(utxo.Config{
			Litecoin:           entry.Litecoin,
			DepositAddresses:   entry.DepositAddresses,
			SafeAddress:        entry.SafeAddress,
			SourceChainID:      chainID,
			TimestampTolerance: tolerance,
		}), nil

	case "eos":
		return eos.New(eos.Config{
			WatchedAccounts:    entry.WatchedAccounts,
			SafeAddress:        entry.SafeAddress,
			SourceChainID:      chainID,
			TimestampTolerance: tolerance,
		}), nil

	case "algorand":
		return algorand.New(algorand.Config{
			WatchedAppID:       entry.WatchedAppID,
			WatchedAssetID:     entry.WatchedAssetID,
			SafeAddress:        entry.SafeAddress,
			SourceChainID:      chainID,
			TimestampTolerance: tolerance,
		}), nil

	default:
		return nil, fmt.Errorf("unknown chain family %q", entry.Family)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(v interface{}) error {
	return json.NewEncoder(os.Stdout).Encode(v)
}

// noopSigner is the default signer when no HSM/key-custody integration
// is wired up; it refuses to sign rather than silently minting
// unauthorised output transactions.
type noopSigner struct{}

func (noopSigner) Sign([]byte) ([]byte, error) {
	return nil, fmt.Errorf("bridgecore: no signer configured — peg events recognised but materialisation refused")
}

func (noopSigner) PublicIdentity() (string, error) {
	return "", fmt.Errorf("bridgecore: no signer configured")
}
