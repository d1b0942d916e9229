// Package api provides the HTTP surface of a ChainMesh node: the peer
// wire protocol (ping, get-peers) served to other nodes, and the
// discovery stats/details endpoints consumed by operators.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chainmesh-network/chainmesh/internal/health"
	"github.com/chainmesh-network/chainmesh/internal/infra/discovery"
)

// Server is the ChainMesh HTTP API server.
type Server struct {
	discovery      *discovery.Manager
	version        string
	chainHeight    func() int64 // reported in ping replies; nil means 0
	metricsEnabled bool
	announces      *announceLimiter
	checker        *health.Checker
}

// NewServer creates a new API server around a discovery manager.
func NewServer(d *discovery.Manager, version string) *Server {
	return &Server{
		discovery: d,
		version:   version,
		announces: newAnnounceLimiter(),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetChainHeightFunc wires the hosting node's chain height into ping
// replies. The discovery layer itself never interprets the value.
func (s *Server) SetChainHeightFunc(fn func() int64) { s.chainHeight = fn }

// SetHealthChecker wires the node's health checker into /health. Without
// one the endpoint only reports that the server is up.
func (s *Server) SetHealthChecker(c *health.Checker) { s.checker = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	// Peer wire protocol + discovery API
	r.Route("/peers", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.Get("/list", s.handlePeerList)
		r.Post("/announce", s.handleAnnounce)
		r.Route("/discovery", func(r chi.Router) {
			r.Get("/stats", s.handleDiscoveryStats)
			r.Get("/details", s.handleDiscoveryDetails)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// handleHealth reports the node's self-check results. A degraded node
// answers 503 so load balancers and monitors drain it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
