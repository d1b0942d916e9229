// Package daemon manages the ChainMesh daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	API       APIConfig       `toml:"api"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this node on the network.
type NodeConfig struct {
	ID      string `toml:"id"`      // generated and persisted when empty
	Network string `toml:"network"` // mainnet | testnet | custom
	URL     string `toml:"url"`     // the URL other peers reach us at
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DiscoveryConfig controls the peer discovery loop.
type DiscoveryConfig struct {
	MaxPeers         int      `toml:"max_peers"`
	Capacity         int      `toml:"capacity"`
	Interval         string   `toml:"interval"`
	ProbeConcurrency int      `toml:"probe_concurrency"`
	ProbeSample      int      `toml:"probe_sample"`
	BootstrapPeers   []string `toml:"bootstrap_peers"` // only used on the custom network
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := chainmeshHome()
	return Config{
		Node: NodeConfig{
			Network: "mainnet",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 9380,
		},
		Discovery: DiscoveryConfig{
			MaxPeers:         8,
			Capacity:         200,
			Interval:         "30s",
			ProbeConcurrency: 10,
			ProbeSample:      50,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			File:      filepath.Join(homeDir, "chainmesh.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
	}
}

// LoadConfig reads config from ~/.chainmesh/config.toml, falling back to
// defaults when no file exists.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(chainmeshHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.chainmesh/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(chainmeshHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// DiscoveryInterval parses the configured cycle period, falling back on
// the given default for empty or malformed values.
func (c DiscoveryConfig) DiscoveryInterval(fallback time.Duration) time.Duration {
	return parseDuration(c.Interval, fallback)
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// chainmeshHome returns the ChainMesh data directory.
func chainmeshHome() string {
	if env := os.Getenv("CHAINMESH_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chainmesh")
}

// Home is exported for use by other packages.
func Home() string {
	return chainmeshHome()
}
