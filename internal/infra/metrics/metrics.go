// Package metrics provides Prometheus metrics for ChainMesh.
// Gauges mirror the discovery stats endpoint; counters and the probe
// latency histogram accumulate across discovery cycles.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Peer Pool ──────────────────────────────────────────────────────────────

// PeersKnown tracks the size of the known-peer pool.
var PeersKnown = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "chainmesh",
	Name:      "peers_known_total",
	Help:      "Number of peers in the known-peer pool.",
})

// PeersConnected tracks the size of the selected connection set.
var PeersConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "chainmesh",
	Name:      "peers_connected_total",
	Help:      "Number of peers in the diverse connected set.",
})

// DiversityScore tracks the pool's IP-prefix diversity (0-100).
var DiversityScore = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "chainmesh",
	Name:      "peer_diversity_score",
	Help:      "IP-prefix diversity of the known-peer pool (0-100).",
})

// AvgPeerQuality tracks the mean quality score across known peers.
var AvgPeerQuality = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "chainmesh",
	Name:      "peer_quality_avg",
	Help:      "Average quality score across known peers (0-100).",
})

// PeersEvicted counts capacity evictions of low-quality peers.
var PeersEvicted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chainmesh",
	Name:      "peers_evicted_total",
	Help:      "Total peers evicted from the pool at capacity.",
})

// ─── Discovery Cycle ────────────────────────────────────────────────────────

// Discoveries counts newly discovered peer URLs merged into the pool.
var Discoveries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chainmesh",
	Name:      "discoveries_total",
	Help:      "Total new peers discovered via gossip.",
})

// ProbeResults counts probe outcomes by result.
var ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chainmesh",
	Name:      "probe_results_total",
	Help:      "Total peer probes by result.",
}, []string{"result"})

// ProbeLatency tracks successful probe round-trip time in seconds.
var ProbeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "chainmesh",
	Name:      "probe_latency_seconds",
	Help:      "Round-trip time of successful peer probes.",
	Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4},
})

// CycleDuration tracks how long a full discovery cycle takes.
var CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "chainmesh",
	Name:      "discovery_cycle_seconds",
	Help:      "Duration of a full discovery cycle.",
	Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
})

// ─── Announce Endpoint ──────────────────────────────────────────────────────

// Announces counts announce requests by outcome.
var Announces = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chainmesh",
	Name:      "announces_total",
	Help:      "Total peer announce requests by outcome.",
}, []string{"outcome"})
