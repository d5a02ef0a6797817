// Package config loads process configuration from the environment,
// with a getEnv/Validate split so defaults and required-field checks
// stay separate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the lightcore engine process.
type Config struct {
	// Chain roster
	RosterPath string // path to the YAML chain-roster manifest

	// Storage
	StorageBackend string // "memkv" or "pgkv"
	PostgresDSN    string

	// Server
	ListenAddr  string
	MetricsAddr string

	// Feature levers read from the environment. cmd/bridgecore does not
	// consult them: it takes every per-chain lever from the roster entry.
	NonValidating          bool
	DisableFees            bool
	IncludeOriginTxDetails bool

	// Debug-signer gate
	DebugSignerRequiredCount int
	DebugSignerRosterPath    string

	// Firestore dashboard sync (optional)
	FirestoreEnabled        bool
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	LogLevel string
}

// Load reads configuration from environment variables. Call Validate
// after Load to ensure required configuration is present.
func Load() (*Config, error) {
	cfg := &Config{
		RosterPath: getEnv("LIGHTCORE_ROSTER_PATH", "./roster.yaml"),

		StorageBackend: getEnv("LIGHTCORE_STORAGE_BACKEND", "memkv"),
		PostgresDSN:    getEnv("LIGHTCORE_POSTGRES_DSN", ""),

		ListenAddr:  getEnv("LIGHTCORE_LISTEN_ADDR", "0.0.0.0:8080"),
		MetricsAddr: getEnv("LIGHTCORE_METRICS_ADDR", "0.0.0.0:9090"),

		NonValidating:          getEnvBool("LIGHTCORE_NON_VALIDATING", false),
		DisableFees:            getEnvBool("LIGHTCORE_DISABLE_FEES", false),
		IncludeOriginTxDetails: getEnvBool("LIGHTCORE_INCLUDE_ORIGIN_TX_DETAILS", false),

		DebugSignerRequiredCount: getEnvInt("LIGHTCORE_DEBUG_SIGNER_REQUIRED_COUNT", 1),
		DebugSignerRosterPath:    getEnv("LIGHTCORE_DEBUG_SIGNER_ROSTER_PATH", ""),

		FirestoreEnabled:        getEnvBool("LIGHTCORE_FIRESTORE_ENABLED", false),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		LogLevel: getEnv("LIGHTCORE_LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present and internally
// consistent. Must be called after Load before the engine is wired up.
func (c *Config) Validate() error {
	var errs []string

	if c.RosterPath == "" {
		errs = append(errs, "LIGHTCORE_ROSTER_PATH is required but not set")
	}

	switch c.StorageBackend {
	case "memkv":
		// no further requirements
	case "pgkv":
		if c.PostgresDSN == "" {
			errs = append(errs, "LIGHTCORE_POSTGRES_DSN is required when LIGHTCORE_STORAGE_BACKEND=pgkv")
		}
	default:
		errs = append(errs, fmt.Sprintf("LIGHTCORE_STORAGE_BACKEND %q is not one of memkv, pgkv", c.StorageBackend))
	}

	if c.DebugSignerRequiredCount < 1 {
		errs = append(errs, "LIGHTCORE_DEBUG_SIGNER_REQUIRED_COUNT must be at least 1")
	}

	if c.FirestoreEnabled && c.FirebaseProjectID == "" {
		errs = append(errs, "FIREBASE_PROJECT_ID is required when LIGHTCORE_FIRESTORE_ENABLED=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if bv, err := strconv.ParseBool(v); err == nil {
			return bv
		}
	}
	return defaultValue
}

// getEnvDuration is not called anywhere: Load reads no duration settings,
// and roster-level timestamp tolerances are parsed by the YAML decoder.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
