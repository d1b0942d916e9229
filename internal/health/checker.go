// Package health runs periodic self-checks on a ChainMesh node: the
// SQLite store, the data directory, and the discovery loop. Results are
// served on the /health endpoint so operators and load balancers can see
// a degraded node before it drops off the network.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chainmesh-network/chainmesh/internal/infra/discovery"
	"github.com/chainmesh-network/chainmesh/internal/infra/sqlite"
)

// checkInterval is how often the full check set runs.
const checkInterval = 60 * time.Second

// Check is a single named health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status is the recorded result of one check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs the node's health checks on a fixed interval.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker with the standard node checks.
func NewChecker(db *sqlite.DB, mgr *discovery.Manager, dataDir string) *Checker {
	return &Checker{
		interval: checkInterval,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkDataDir(dataDir)
				},
			},
			{
				Name: "discovery",
				CheckFn: func(ctx context.Context) error {
					if !mgr.IsRunning() {
						return errors.New("discovery loop is not running")
					}
					return nil
				},
			},
			{
				// A node that knows peers but connects to none is
				// isolated even though everything local works.
				Name: "peer_connectivity",
				CheckFn: func(ctx context.Context) error {
					stats := mgr.Stats()
					if stats.KnownPeers > 0 && stats.ConnectedPeers == 0 {
						return fmt.Errorf("%d peers known, none connected", stats.KnownPeers)
					}
					return nil
				},
			},
		},
	}
}

// Run starts the check loop. Call in a goroutine; returns when ctx ends.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest results. Empty until the first run.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy reports whether every check passed on the last run.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}
