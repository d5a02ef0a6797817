// Package metrics exposes the engine's Prometheus instrumentation, using
// the standard promauto constructors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every counter/gauge the engine updates during
// submission handling. One Registry is shared across all chain
// instances in a process; chain ID is a label, not a separate registry.
type Registry struct {
	BlocksSubmitted   *prometheus.CounterVec
	BlocksRejected    *prometheus.CounterVec
	Reorgs            *prometheus.CounterVec
	Truncations       *prometheus.CounterVec
	PegEventsScanned  *prometheus.CounterVec
	PegTxsMaterialised *prometheus.CounterVec
	ChainHeight       *prometheus.GaugeVec
	TailHeight        *prometheus.GaugeVec
}

// New registers and returns a fresh Registry against reg. Pass
// prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer for the process-wide default.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		BlocksSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lightcore_blocks_submitted_total",
			Help: "Blocks accepted into a chain instance's storage, by chain id.",
		}, []string{"chain_id"}),
		BlocksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lightcore_blocks_rejected_total",
			Help: "Blocks rejected by validation or the fork manager, by chain id and reason.",
		}, []string{"chain_id", "reason"}),
		Reorgs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lightcore_reorgs_total",
			Help: "Canonical-branch reassignments observed, by chain id.",
		}, []string{"chain_id"}),
		Truncations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lightcore_truncations_total",
			Help: "Blocks permanently removed from storage on tail advance, by chain id.",
		}, []string{"chain_id"}),
		PegEventsScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lightcore_peg_events_scanned_total",
			Help: "Peg events recognised during canonisation, by chain id and direction.",
		}, []string{"chain_id", "direction"}),
		PegTxsMaterialised: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lightcore_peg_txs_materialised_total",
			Help: "Signed partner-chain transactions produced, by chain id.",
		}, []string{"chain_id"}),
		ChainHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lightcore_chain_height",
			Help: "Current canon pointer height, by chain id.",
		}, []string{"chain_id"}),
		TailHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lightcore_tail_height",
			Help: "Current tail pointer height, by chain id.",
		}, []string{"chain_id"}),
	}
}
