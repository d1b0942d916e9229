// Package discovery runs gossip-based peer discovery for a ChainMesh node.
//
// The Manager owns the bounded known-peer pool and the diverse connected
// subset. On start it bootstraps from seeds (unless a persisted pool is
// already warm), then runs a background cycle: probe a sample of known
// peers with bounded concurrency, gossip peer lists from the reachable
// ones, merge discoveries with capacity eviction, and reselect the
// connected set for diversity.
//
// Individual peer failures are local and non-fatal: they are recorded in
// the peer's counters and surface only through the stats API. A network
// where no seed responds leaves the connected set empty; Start still
// succeeds.
package discovery

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/chainmesh-network/chainmesh/internal/domain"
	"github.com/chainmesh-network/chainmesh/internal/infra/bootstrap"
	"github.com/chainmesh-network/chainmesh/internal/infra/diversity"
	"github.com/chainmesh-network/chainmesh/internal/infra/metrics"
	"github.com/chainmesh-network/chainmesh/internal/infra/protocol"
)

const (
	// stopTimeout bounds how long Stop waits for in-flight probes before
	// abandoning them. Shutdown never blocks indefinitely on stragglers.
	stopTimeout = 5 * time.Second

	// evictionCooldown keeps evicted URLs out of the pool for a while so a
	// gossip flood cannot immediately reclaim an evicted slot.
	evictionCooldown = 10 * time.Minute

	// evictionCacheSize bounds the cooldown cache itself.
	evictionCacheSize = 512
)

// Config is the immutable discovery configuration.
type Config struct {
	Network          domain.NetworkType
	SelfURL          string
	MaxPeers         int           // size of the connected set
	Capacity         int           // known-peer pool bound
	Interval         time.Duration // discovery cycle period
	ProbeConcurrency int           // simultaneous probes per cycle
	ProbeSample      int           // peers probed per cycle
	BootstrapSeeds   []string      // used when Network is custom
}

// withDefaults fills zero fields with production defaults.
func (c Config) withDefaults() Config {
	if c.MaxPeers <= 0 {
		c.MaxPeers = 8
	}
	if c.Capacity <= 0 {
		c.Capacity = 200
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = 10
	}
	if c.ProbeSample <= 0 {
		c.ProbeSample = 50
	}
	return c
}

// Stats is the aggregate view exposed by the stats endpoint.
type Stats struct {
	NetworkType            string  `json:"network_type"`
	ConnectedPeers         int     `json:"connected_peers"`
	KnownPeers             int     `json:"known_peers"`
	MaxPeers               int     `json:"max_peers"`
	DiversityScore         float64 `json:"diversity_score"`
	AvgPeerQuality         float64 `json:"avg_peer_quality"`
	TotalDiscoveries       int64   `json:"total_discoveries"`
	TotalConnections       int64   `json:"total_connections"`
	TotalFailedConnections int64   `json:"total_failed_connections"`
	IsRunning              bool    `json:"is_running"`
}

// Store persists the peer pool across restarts. Satisfied by *sqlite.DB;
// a nil Store disables persistence.
type Store interface {
	ListPeers() ([]domain.PeerSnapshot, error)
	SavePeers([]domain.PeerSnapshot) error
}

// Manager orchestrates peer discovery. All mutable state is guarded by a
// single lock; the lock is never held across network I/O.
type Manager struct {
	cfg    Config
	client *protocol.Client
	store  Store
	nodeID string

	mu             sync.RWMutex
	known          map[string]*domain.PeerInfo
	connected      []string
	diversityScore float64

	totalDiscoveries int64
	totalConnections int64
	totalFailed      int64

	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// URLs recently evicted for low quality; gossip cannot re-add them
	// until the cooldown expires.
	evicted *expirable.LRU[string, time.Time]
}

// NewManager creates a discovery manager. nodeID is this node's own
// identity; peers reporting the same ID are dropped as self-connections.
func NewManager(cfg Config, client *protocol.Client, store Store, nodeID string) *Manager {
	return &Manager{
		cfg:            cfg.withDefaults(),
		client:         client,
		store:          store,
		nodeID:         nodeID,
		known:          make(map[string]*domain.PeerInfo),
		diversityScore: 100,
		evicted:        expirable.NewLRU[string, time.Time](evictionCacheSize, nil, evictionCooldown),
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Start loads any persisted pool, bootstraps from seeds if the pool is
// still empty, and launches the background discovery loop. Calling Start
// while already running returns ErrAlreadyRunning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.loadPersisted()

	m.mu.RLock()
	empty := len(m.known) == 0
	m.mu.RUnlock()
	if empty {
		m.bootstrap(runCtx)
	}

	go m.run(runCtx)
	return nil
}

// Stop signals the background loop and waits for it with a bounded
// timeout. In-flight probes past the deadline are logged and abandoned.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return domain.ErrNotRunning
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Printf("[discovery] stop timed out after %s — abandoning in-flight probes", stopTimeout)
	}
	return nil
}

// loadPersisted restores the peer pool from the store, if any.
func (m *Manager) loadPersisted() {
	if m.store == nil {
		return
	}
	snapshots, err := m.store.ListPeers()
	if err != nil {
		log.Printf("[discovery] load persisted peers: %v", err)
		return
	}
	if len(snapshots) == 0 {
		return
	}

	m.mu.Lock()
	for _, s := range snapshots {
		if s.URL == m.cfg.SelfURL {
			continue
		}
		m.known[s.URL] = domain.FromSnapshot(s)
	}
	m.evictOverCapacityLocked()
	m.mu.Unlock()

	log.Printf("[discovery] restored %d peers from store", len(snapshots))
}

// bootstrap contacts the configured seeds for this network and merges the
// peer lists of the reachable ones. Unreachable seeds are recorded with a
// failure so operators can see them in the details endpoint. A network
// where nothing answers is a soft failure: the pool stays empty.
func (m *Manager) bootstrap(ctx context.Context) {
	seeds := bootstrap.Seeds(m.cfg.Network, m.cfg.BootstrapSeeds)
	log.Printf("[discovery] bootstrapping %s from %d seeds", m.cfg.Network, len(seeds))

	results := m.probe(ctx, seeds, true)

	alive := 0
	for _, r := range results {
		if r.result.Alive {
			alive++
		}
	}
	if alive == 0 {
		log.Printf("[discovery] no bootstrap seed responded — starting with an empty pool")
	}
}

// run is the background discovery loop.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	m.cycle(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

// ─── Discovery Cycle ────────────────────────────────────────────────────────

type probeOutcome struct {
	url        string
	result     protocol.PingResult
	discovered []string
}

// cycle runs one discovery pass: probe, gossip, merge, reselect.
func (m *Manager) cycle(ctx context.Context) {
	start := time.Now()

	targets := m.probeTargets()
	m.probe(ctx, targets, false)

	m.reselect()
	m.persist()

	metrics.CycleDuration.Observe(time.Since(start).Seconds())
}

// probeTargets picks the cycle's probe sample: the least recently seen
// peers first, so stale entries are refreshed before fresh ones.
func (m *Manager) probeTargets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peers := make([]*domain.PeerInfo, 0, len(m.known))
	for _, p := range m.known {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		if !peers[i].LastSeen.Equal(peers[j].LastSeen) {
			return peers[i].LastSeen.Before(peers[j].LastSeen)
		}
		return peers[i].URL < peers[j].URL
	})

	n := min(len(peers), m.cfg.ProbeSample)
	urls := make([]string, 0, n)
	for _, p := range peers[:n] {
		urls = append(urls, p.URL)
	}
	return urls
}

// probe pings the given URLs through a bounded worker pool, requests peer
// lists from the reachable ones, and applies every outcome to the pool.
// The manager lock is only taken after all network I/O has finished.
func (m *Manager) probe(ctx context.Context, urls []string, asBootstrap bool) []probeOutcome {
	if len(urls) == 0 {
		return nil
	}

	outcomes := make([]probeOutcome, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ProbeConcurrency)

	for i, url := range urls {
		g.Go(func() error {
			res := m.client.Ping(gctx, url)
			out := probeOutcome{url: url, result: res}
			if res.Alive {
				peers, err := m.client.PeerList(gctx, url)
				if err == nil {
					out.discovered = peers
				}
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait() // probe workers never return errors — failures are per-peer data

	m.apply(outcomes, asBootstrap)
	return outcomes
}

// apply folds probe outcomes into the pool under the lock.
func (m *Manager) apply(outcomes []probeOutcome, asBootstrap bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, out := range outcomes {
		res := out.result

		// A peer reporting our own node ID is this node behind another
		// URL. Drop it entirely.
		if res.Alive && res.NodeID != "" && res.NodeID == m.nodeID {
			delete(m.known, out.url)
			continue
		}

		p, ok := m.known[out.url]
		if !ok {
			np, err := domain.NewPeerInfo(out.url)
			if err != nil {
				continue
			}
			np.IsBootstrap = asBootstrap
			m.known[out.url] = np
			p = np
		}

		if res.Alive {
			p.UpdateSuccess(res.RTT)
			p.Version = res.Version
			p.ChainHeight = res.ChainHeight
			m.totalConnections++
			metrics.ProbeResults.WithLabelValues("success").Inc()
			metrics.ProbeLatency.Observe(res.RTT.Seconds())
		} else {
			p.UpdateFailure()
			m.totalFailed++
			metrics.ProbeResults.WithLabelValues("failure").Inc()
		}

		for _, discovered := range out.discovered {
			m.mergeLocked(discovered)
		}
	}

	m.evictOverCapacityLocked()
}

// mergeLocked adds a gossiped URL to the pool. Duplicates, our own URL,
// and URLs still in eviction cooldown are skipped. Caller holds the lock.
func (m *Manager) mergeLocked(url string) {
	if url == m.cfg.SelfURL {
		return
	}
	if _, ok := m.known[url]; ok {
		return
	}
	if _, cooling := m.evicted.Get(url); cooling {
		return
	}
	p, err := domain.NewPeerInfo(url)
	if err != nil {
		return
	}
	m.known[url] = p
	m.totalDiscoveries++
	metrics.Discoveries.Inc()
}

// evictOverCapacityLocked trims the pool to capacity, lowest quality
// first. Evicted URLs enter the cooldown cache. Caller holds the lock.
func (m *Manager) evictOverCapacityLocked() {
	for len(m.known) > m.cfg.Capacity {
		var worst *domain.PeerInfo
		for _, p := range m.known {
			if worst == nil || p.QualityScore < worst.QualityScore ||
				(p.QualityScore == worst.QualityScore && p.URL < worst.URL) {
				worst = p
			}
		}
		delete(m.known, worst.URL)
		m.evicted.Add(worst.URL, time.Now())
		metrics.PeersEvicted.Inc()
	}
}

// reselect recomputes the diversity score and the connected set from the
// current pool. callers' reads of ConnectedPeerURLs see either the old or
// the new set, never a partial one.
func (m *Manager) reselect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	peers := make([]*domain.PeerInfo, 0, len(m.known))
	for _, p := range m.known {
		peers = append(peers, p)
	}

	m.diversityScore = diversity.Score(peers)
	selected := diversity.SelectDiverse(peers, m.cfg.MaxPeers, true)

	m.connected = m.connected[:0]
	for _, p := range selected {
		m.connected = append(m.connected, p.URL)
	}

	metrics.PeersKnown.Set(float64(len(m.known)))
	metrics.PeersConnected.Set(float64(len(m.connected)))
	metrics.DiversityScore.Set(m.diversityScore)
	metrics.AvgPeerQuality.Set(avgQuality(peers))
}

// persist writes the current pool to the store. Snapshots are taken under
// the lock; the write happens after it is released.
func (m *Manager) persist() {
	if m.store == nil {
		return
	}
	snapshots := m.PeerDetails()
	if err := m.store.SavePeers(snapshots); err != nil {
		log.Printf("[discovery] persist peers: %v", err)
	}
}

func avgQuality(peers []*domain.PeerInfo) float64 {
	if len(peers) == 0 {
		return 0
	}
	var sum float64
	for _, p := range peers {
		sum += p.QualityScore
	}
	return sum / float64(len(peers))
}

// ─── External API ───────────────────────────────────────────────────────────
// Called concurrently by the node's HTTP handlers. Each method takes a
// snapshot under the lock and releases it before any serialization.

// Stats returns the aggregate discovery statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peers := make([]*domain.PeerInfo, 0, len(m.known))
	for _, p := range m.known {
		peers = append(peers, p)
	}

	return Stats{
		NetworkType:            m.cfg.Network.String(),
		ConnectedPeers:         len(m.connected),
		KnownPeers:             len(m.known),
		MaxPeers:               m.cfg.MaxPeers,
		DiversityScore:         m.diversityScore,
		AvgPeerQuality:         avgQuality(peers),
		TotalDiscoveries:       m.totalDiscoveries,
		TotalConnections:       m.totalConnections,
		TotalFailedConnections: m.totalFailed,
		IsRunning:              m.running,
	}
}

// ConnectedPeerURLs returns a copy of the current connected set.
func (m *Manager) ConnectedPeerURLs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.connected...)
}

// KnownPeerURLs returns up to protocol.MaxPeerListSize known peer URLs,
// best quality first. This is what we serve to other nodes' get-peers
// requests, so it honors the same size cap we enforce as a client.
func (m *Manager) KnownPeerURLs() []string {
	m.mu.RLock()
	peers := make([]*domain.PeerInfo, 0, len(m.known))
	for _, p := range m.known {
		peers = append(peers, p)
	}
	m.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool {
		if peers[i].QualityScore != peers[j].QualityScore {
			return peers[i].QualityScore > peers[j].QualityScore
		}
		return peers[i].URL < peers[j].URL
	})

	n := min(len(peers), protocol.MaxPeerListSize)
	urls := make([]string, 0, n)
	for _, p := range peers[:n] {
		urls = append(urls, p.URL)
	}
	return urls
}

// PeerDetails returns a snapshot of every known peer, best quality first.
func (m *Manager) PeerDetails() []domain.PeerSnapshot {
	m.mu.RLock()
	snapshots := make([]domain.PeerSnapshot, 0, len(m.known))
	for _, p := range m.known {
		snapshots = append(snapshots, p.Snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].QualityScore != snapshots[j].QualityScore {
			return snapshots[i].QualityScore > snapshots[j].QualityScore
		}
		return snapshots[i].URL < snapshots[j].URL
	})
	return snapshots
}

// DiversityScore returns the pool's current diversity score.
func (m *Manager) DiversityScore() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.diversityScore
}

// IsRunning reports whether the background loop is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// NodeID returns this node's own identity, echoed in ping replies.
func (m *Manager) NodeID() string { return m.nodeID }

// AnnouncePeer registers a peer URL announced by another node. The URL is
// validated; self-announcements and URLs in eviction cooldown are
// rejected silently (the pool simply does not change).
func (m *Manager) AnnouncePeer(url string) error {
	if _, err := domain.HostOf(url); err != nil {
		return err
	}
	if url == m.cfg.SelfURL {
		return domain.ErrSelfPeer
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeLocked(url)
	m.evictOverCapacityLocked()
	return nil
}

// UpdatePeerResult records the outcome of the host node's own exchange
// with a peer (block fetch, broadcast, ...). Unknown URLs are added first
// so externally observed peers enter the pool too.
func (m *Manager) UpdatePeerResult(url string, success bool, rtt time.Duration) error {
	if _, err := domain.HostOf(url); err != nil {
		return err
	}
	if url == m.cfg.SelfURL {
		return domain.ErrSelfPeer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.known[url]
	if !ok {
		np, err := domain.NewPeerInfo(url)
		if err != nil {
			return err
		}
		m.known[url] = np
		p = np
		m.evictOverCapacityLocked()
	}

	if success {
		p.UpdateSuccess(rtt)
		m.totalConnections++
	} else {
		p.UpdateFailure()
		m.totalFailed++
	}
	return nil
}
