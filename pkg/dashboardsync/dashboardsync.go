// Package dashboardsync mirrors enclave snapshots to Firestore for a
// real-time UI, using the Firebase Admin SDK client. It is purely
// additive: the engine's correctness never depends on it, and a disabled
// client is a no-op.
package dashboardsync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/certen-bridge/lightcore/pkg/enclave"
)

// Client wraps a Firestore client scoped to enclave snapshot sync.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	logger    *log.Logger
	enabled   bool
	mu        sync.RWMutex
}

// Config configures a Client.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Logger          *log.Logger
}

// New creates a Client. If cfg.Enabled is false, the returned Client is
// a no-op and never dials Firestore.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[dashboardsync] ", log.LstdFlags)
	}

	c := &Client{projectID: cfg.ProjectID, logger: cfg.Logger, enabled: cfg.Enabled}

	if !cfg.Enabled {
		cfg.Logger.Println("dashboard sync disabled — running in no-op mode")
		return c, nil
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("dashboardsync: FIREBASE_PROJECT_ID is required when enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("dashboardsync: initializing Firebase app: %w", err)
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboardsync: creating Firestore client: %w", err)
	}

	c.app = app
	c.firestore = fsClient
	cfg.Logger.Printf("dashboard sync initialized for project: %s", cfg.ProjectID)
	return c, nil
}

func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// PublishSnapshot mirrors an enclave snapshot to
// /chains/{chainId}/snapshots/latest. Failures are logged and swallowed:
// dashboard sync never fails a caller's submission.
func (c *Client) PublishSnapshot(ctx context.Context, snap *enclave.Snapshot) {
	if !c.IsEnabled() {
		c.logger.Printf("dashboard sync disabled — skipping snapshot for chain=%s", snap.ChainID)
		return
	}
	if c.firestore == nil {
		return
	}

	docPath := fmt.Sprintf("chains/%s/snapshots/latest", snap.ChainID.String())
	_, err := c.firestore.Doc(docPath).Set(ctx, map[string]interface{}{
		"chainId":      snap.ChainID.String(),
		"initialised":  snap.Initialised,
		"anchorHeight": snap.AnchorHeight,
		"latestHeight": snap.LatestHeight,
		"canonHeight":  snap.CanonHeight,
		"tailHeight":   snap.TailHeight,
		"debugSigners": snap.DebugSigners,
		"coreVersion":  snap.CoreVersion,
	})
	if err != nil {
		c.logger.Printf("failed to publish snapshot for chain=%s: %v", snap.ChainID, err)
	}
}
