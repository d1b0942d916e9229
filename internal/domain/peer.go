// Package domain holds the pure peer model for ChainMesh.
// A Peer is a remote blockchain node reachable via a URL endpoint.
// Domain types carry no infrastructure dependencies.
package domain

import (
	"fmt"
	"net/url"
	"time"
)

// ─── Scoring constants ──────────────────────────────────────────────────────
// Quality is a weighted composite in [0,100]. The weights are tunable; they
// must leave headroom for the bootstrap bonus within the 0–100 clamp.

const (
	// ResponseTimeWindow bounds the per-peer latency history. Oldest samples
	// are evicted once the window is full.
	ResponseTimeWindow = 20

	// NeutralReliability is returned before any probe has been attempted.
	NeutralReliability = 50.0

	// SpeedCeiling is the response time that maps to a speed score of zero.
	// Matches the probe timeout: anything slower would have timed out anyway.
	SpeedCeiling = 4 * time.Second

	// LongevityCap is the age at which a peer earns the full longevity score.
	LongevityCap = 24 * time.Hour

	reliabilityWeight = 0.50 // up to 50 points
	speedWeight       = 0.30 // up to 30 points
	longevityWeight   = 0.15 // up to 15 points
	bootstrapBonus    = 5.0  // flat bonus for operator-configured seeds
)

// PeerInfo tracks one peer's reachability and performance history.
// The URL is the canonical identity and never changes after creation.
// PeerInfo is not internally synchronized — the discovery manager guards
// all instances with its own lock.
type PeerInfo struct {
	URL           string
	IPAddress     string
	FirstSeen     time.Time
	LastSeen      time.Time
	SuccessCount  int
	FailureCount  int
	ResponseTimes []time.Duration
	QualityScore  float64
	IsBootstrap   bool

	// Reported by the peer itself, stored opaquely. Not validated here.
	Version     string
	ChainHeight int64
}

// NewPeerInfo creates a peer record for the given URL.
// The IP address (or hostname, when the URL does not use a literal IP)
// is derived from the URL once and kept for diversity bucketing.
func NewPeerInfo(rawURL string) (*PeerInfo, error) {
	host, err := HostOf(rawURL)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	p := &PeerInfo{
		URL:       rawURL,
		IPAddress: host,
		FirstSeen: now,
		LastSeen:  now,
	}
	p.recomputeQuality()
	return p, nil
}

// HostOf extracts the host portion of a peer URL, validating its format.
func HostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeerURL, rawURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeerURL, rawURL)
	}
	return u.Hostname(), nil
}

// UpdateSuccess records a successful probe with its round-trip time.
// The latency window is bounded; the quality score is recomputed in place.
func (p *PeerInfo) UpdateSuccess(rtt time.Duration) {
	p.SuccessCount++
	p.ResponseTimes = append(p.ResponseTimes, rtt)
	if len(p.ResponseTimes) > ResponseTimeWindow {
		p.ResponseTimes = p.ResponseTimes[len(p.ResponseTimes)-ResponseTimeWindow:]
	}
	p.LastSeen = time.Now()
	p.recomputeQuality()
}

// UpdateFailure records a failed probe.
func (p *PeerInfo) UpdateFailure() {
	p.FailureCount++
	p.LastSeen = time.Now()
	p.recomputeQuality()
}

// Reliability returns the success ratio as a percentage.
// With zero attempts it returns NeutralReliability — never divides by zero.
func (p *PeerInfo) Reliability() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return NeutralReliability
	}
	return float64(p.SuccessCount) / float64(total) * 100
}

// AvgResponseTime returns the mean of the bounded latency window,
// or zero when no samples have been recorded.
func (p *PeerInfo) AvgResponseTime() time.Duration {
	if len(p.ResponseTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, rt := range p.ResponseTimes {
		sum += rt
	}
	return sum / time.Duration(len(p.ResponseTimes))
}

// UptimeHours returns how long this peer has been known, in hours.
func (p *PeerInfo) UptimeHours() float64 {
	return time.Since(p.FirstSeen).Hours()
}

// recomputeQuality derives the composite score. Called synchronously from
// every update so the stored score never lags the underlying counters.
//
//	quality = 0.50·reliability + 0.30·speed + 0.15·longevity [+ 5 bootstrap]
//
// speed scales inversely with average response time against SpeedCeiling;
// with no samples yet it is neutral (50), mirroring Reliability.
// longevity grows linearly with age and saturates at LongevityCap.
func (p *PeerInfo) recomputeQuality() {
	speed := NeutralReliability
	if avg := p.AvgResponseTime(); avg > 0 {
		frac := 1 - float64(avg)/float64(SpeedCeiling)
		speed = clamp(frac*100, 0, 100)
	}

	longevity := clamp(time.Since(p.FirstSeen).Hours()/LongevityCap.Hours()*100, 0, 100)

	score := reliabilityWeight*p.Reliability() + speedWeight*speed + longevityWeight*longevity
	if p.IsBootstrap {
		score += bootstrapBonus
	}
	p.QualityScore = clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ─── Serialization ──────────────────────────────────────────────────────────

// PeerSnapshot is the stable wire form of a PeerInfo, used by the
// discovery details endpoint and the persistence layer.
type PeerSnapshot struct {
	URL             string    `json:"url"`
	IPAddress       string    `json:"ip_address"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	QualityScore    float64   `json:"quality_score"`
	Reliability     float64   `json:"reliability"`
	AvgResponseTime float64   `json:"avg_response_time"` // seconds
	UptimeHours     float64   `json:"uptime_hours"`
	SuccessCount    int       `json:"success_count"`
	FailureCount    int       `json:"failure_count"`
	IsBootstrap     bool      `json:"is_bootstrap"`
	Version         string    `json:"version"`
	ChainHeight     int64     `json:"chain_height"`
}

// Snapshot captures the peer's current state.
func (p *PeerInfo) Snapshot() PeerSnapshot {
	return PeerSnapshot{
		URL:             p.URL,
		IPAddress:       p.IPAddress,
		FirstSeen:       p.FirstSeen,
		LastSeen:        p.LastSeen,
		QualityScore:    p.QualityScore,
		Reliability:     p.Reliability(),
		AvgResponseTime: p.AvgResponseTime().Seconds(),
		UptimeHours:     p.UptimeHours(),
		SuccessCount:    p.SuccessCount,
		FailureCount:    p.FailureCount,
		IsBootstrap:     p.IsBootstrap,
		Version:         p.Version,
		ChainHeight:     p.ChainHeight,
	}
}

// FromSnapshot reconstructs a PeerInfo from its stored form. The latency
// window is not persisted; the stored quality score is kept as-is until
// the next probe recomputes it from live data.
func FromSnapshot(s PeerSnapshot) *PeerInfo {
	return &PeerInfo{
		URL:          s.URL,
		IPAddress:    s.IPAddress,
		FirstSeen:    s.FirstSeen,
		LastSeen:     s.LastSeen,
		QualityScore: s.QualityScore,
		SuccessCount: s.SuccessCount,
		FailureCount: s.FailureCount,
		IsBootstrap:  s.IsBootstrap,
		Version:      s.Version,
		ChainHeight:  s.ChainHeight,
	}
}
