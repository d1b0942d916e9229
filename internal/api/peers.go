package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/chainmesh-network/chainmesh/internal/domain"
	"github.com/chainmesh-network/chainmesh/internal/infra/metrics"
)

// ─── Wire Protocol Handlers ─────────────────────────────────────────────────
// Served to other ChainMesh nodes. Shapes are an external contract; other
// implementations must be able to decode them, so fields are additive only.

// handlePing answers the lightweight health probe.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var height int64
	if s.chainHeight != nil {
		height = s.chainHeight()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"node_id":      s.discovery.NodeID(),
		"version":      s.version,
		"chain_height": height,
	})
}

// handlePeerList answers a get-peers exchange with our best known peers.
func (s *Server) handlePeerList(w http.ResponseWriter, r *http.Request) {
	urls := s.discovery.KnownPeerURLs()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(urls),
		"peers":   urls,
	})
}

// announceRequest is the body of POST /peers/announce.
type announceRequest struct {
	PeerURL string `json:"peer_url"`
}

// handleAnnounce registers an announcing peer into the known pool.
// Announcements are rate limited per source IP so a single host cannot
// flood the pool with fabricated entries.
func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	if !s.announces.allow(remoteHost(r)) {
		metrics.Announces.WithLabelValues("throttled").Inc()
		writeError(w, http.StatusTooManyRequests, domain.ErrAnnounceThrottled.Error())
		return
	}

	var req announceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeerURL == "" {
		metrics.Announces.WithLabelValues("malformed").Inc()
		writeError(w, http.StatusBadRequest, "missing or malformed peer_url")
		return
	}

	if err := s.discovery.AnnouncePeer(req.PeerURL); err != nil {
		metrics.Announces.WithLabelValues("rejected").Inc()
		switch {
		case errors.Is(err, domain.ErrSelfPeer):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, domain.ErrInvalidPeerURL.Error())
		}
		return
	}

	metrics.Announces.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"peer_url": req.PeerURL,
	})
}

// ─── Operator Endpoints ─────────────────────────────────────────────────────

// handleDiscoveryStats exposes the aggregate discovery statistics.
func (s *Server) handleDiscoveryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.discovery.Stats())
}

// handleDiscoveryDetails exposes per-peer records, best quality first.
func (s *Server) handleDiscoveryDetails(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.discovery.PeerDetails())
}

// ─── Announce Rate Limiting ─────────────────────────────────────────────────

const (
	announceRate  = rate.Limit(1) // sustained announces per second per source
	announceBurst = 5

	// announceLimiterCap bounds the per-source limiter map; when exceeded
	// the map is reset rather than grown without bound.
	announceLimiterCap = 4096
)

// announceLimiter keeps a token bucket per source host.
type announceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newAnnounceLimiter() *announceLimiter {
	return &announceLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (a *announceLimiter) allow(host string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.limiters) > announceLimiterCap {
		a.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := a.limiters[host]
	if !ok {
		lim = rate.NewLimiter(announceRate, announceBurst)
		a.limiters[host] = lim
	}
	return lim.Allow()
}

// remoteHost extracts the source host from a request. RealIP middleware
// has already folded X-Forwarded-For into RemoteAddr.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
