package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chainmesh-network/chainmesh/internal/daemon"
)

// daemonAddr resolves the running daemon's base URL from config, with a
// loopback fallback for the wildcard listen host.
func daemonAddr() (string, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return "", err
	}
	host := cfg.API.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.API.Port), nil
}

// getJSON fetches a daemon endpoint and decodes the response into out.
func getJSON(path string, out interface{}) error {
	base, err := daemonAddr()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + path)
	if err != nil {
		return fmt.Errorf("is the daemon running? (chainmesh serve): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
