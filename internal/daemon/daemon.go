package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chainmesh-network/chainmesh/internal/api"
	"github.com/chainmesh-network/chainmesh/internal/domain"
	"github.com/chainmesh-network/chainmesh/internal/health"
	"github.com/chainmesh-network/chainmesh/internal/infra/discovery"
	_ "github.com/chainmesh-network/chainmesh/internal/infra/metrics" // Register Prometheus metrics
	"github.com/chainmesh-network/chainmesh/internal/infra/protocol"
	"github.com/chainmesh-network/chainmesh/internal/infra/sqlite"
)

// nodeIDKey is the node_info key holding this node's persistent identity.
const nodeIDKey = "node_id"

// Daemon is the ChainMesh runtime. It wires together the store, the
// discovery manager, and the HTTP API.
type Daemon struct {
	Config    Config
	DB        *sqlite.DB
	Discovery *discovery.Manager
	Server    *api.Server
	Health    *health.Checker
	NodeID    string

	version string
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk config.
func New(version string) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, version)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, version string) (*Daemon, error) {
	setupLogging(cfg.Logging)

	network, err := domain.ParseNetworkType(cfg.Node.Network)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(chainmeshHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	nodeID, err := loadOrCreateNodeID(db, cfg.Node.ID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("node identity: %w", err)
	}

	if cfg.Node.URL == "" {
		log.Printf("[daemon] node.url is not configured — self-exclusion by URL is disabled")
	}

	client := protocol.NewClient(protocol.DefaultTimeout)
	mgr := discovery.NewManager(discovery.Config{
		Network:          network,
		SelfURL:          cfg.Node.URL,
		MaxPeers:         cfg.Discovery.MaxPeers,
		Capacity:         cfg.Discovery.Capacity,
		Interval:         cfg.Discovery.DiscoveryInterval(30 * time.Second),
		ProbeConcurrency: cfg.Discovery.ProbeConcurrency,
		ProbeSample:      cfg.Discovery.ProbeSample,
		BootstrapSeeds:   cfg.Discovery.BootstrapPeers,
	}, client, db, nodeID)

	checker := health.NewChecker(db, mgr, chainmeshHome())

	srv := api.NewServer(mgr, version)
	srv.SetHealthChecker(checker)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:    cfg,
		DB:        db,
		Discovery: mgr,
		Server:    srv,
		Health:    checker,
		NodeID:    nodeID,
		version:   version,
	}, nil
}

// Serve starts discovery and the HTTP server, blocking until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.Discovery.Start(ctx); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := d.Discovery.Stop(); err != nil {
			log.Printf("[daemon] stop discovery: %v", err)
		}
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	log.Printf("[daemon] chainmesh node %s serving on http://%s (network: %s)",
		d.NodeID, addr, d.Config.Node.Network)
	if d.Config.Telemetry.Prometheus {
		log.Printf("[daemon] metrics: http://%s/metrics", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Discovery != nil && d.Discovery.IsRunning() {
		_ = d.Discovery.Stop()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// loadOrCreateNodeID resolves the node's persistent identity: an explicit
// config value wins, then the stored one, else a fresh UUID is persisted.
func loadOrCreateNodeID(db *sqlite.DB, configured string) (string, error) {
	if configured != "" {
		if err := db.SetNodeInfo(nodeIDKey, configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	stored, err := db.GetNodeInfo(nodeIDKey)
	if err != nil {
		return "", err
	}
	if stored != "" {
		return stored, nil
	}

	id := uuid.NewString()
	if err := db.SetNodeInfo(nodeIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// setupLogging routes the standard logger through size-based rotation
// when a log file is configured. Logs always reach stderr too.
func setupLogging(cfg LoggingConfig) {
	if cfg.File == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}
