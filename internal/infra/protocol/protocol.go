// Package protocol implements the stateless peer wire protocol:
// a lightweight health probe ("ping") and a peer-list exchange ("get-peers").
//
// The protocol is an external contract shared with other node
// implementations. Responses are decoded leniently — unknown fields are
// ignored for forward compatibility — and defensively: peer lists are
// size-capped and every returned URL is validated before it is accepted.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chainmesh-network/chainmesh/internal/domain"
)

const (
	// DefaultTimeout bounds a single probe or peer-list request.
	DefaultTimeout = 4 * time.Second

	// MaxPeerListSize caps how many URLs we accept from a single get-peers
	// response. A malicious peer cannot inject an unbounded list.
	MaxPeerListSize = 50

	// maxResponseBytes bounds how much of any response body we will read.
	maxResponseBytes = 1 << 20

	pingPath  = "/peers/ping"
	peersPath = "/peers/list"
)

// Client issues wire-protocol requests. It is stateless and safe for
// concurrent use.
type Client struct {
	http *http.Client
}

// NewClient creates a protocol client with the given per-request timeout.
// A zero timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// PingResult is the outcome of a health probe.
type PingResult struct {
	Alive bool
	RTT   time.Duration

	// Metadata reported by the peer; opaque to this layer.
	NodeID      string
	Version     string
	ChainHeight int64
}

// pingResponse mirrors the wire shape of a ping reply. Unknown fields in
// the peer's response are ignored.
type pingResponse struct {
	Success     bool   `json:"success"`
	NodeID      string `json:"node_id"`
	Version     string `json:"version"`
	ChainHeight int64  `json:"chain_height"`
}

// Ping probes a peer's health endpoint. Every failure mode — timeout,
// refused connection, malformed body, non-2xx status — collapses to
// Alive=false. Ping never returns an error to the caller.
func (c *Client) Ping(ctx context.Context, peerURL string) PingResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerURL+pingPath, nil)
	if err != nil {
		return PingResult{}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return PingResult{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PingResult{}
	}

	var body pingResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return PingResult{}
	}
	if !body.Success {
		return PingResult{}
	}

	return PingResult{
		Alive:       true,
		RTT:         time.Since(start),
		NodeID:      body.NodeID,
		Version:     body.Version,
		ChainHeight: body.ChainHeight,
	}
}

// peerListResponse mirrors the wire shape of a get-peers reply.
type peerListResponse struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Peers   []string `json:"peers"`
}

// PeerList requests a peer's own known-peer list. Each returned URL is
// validated and the list is capped at MaxPeerListSize; entries beyond the
// cap and malformed entries are dropped, not trusted. Any protocol
// failure returns a nil list and an error for the caller to record.
func (c *Client) PeerList(ctx context.Context, peerURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerURL+peersPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPeerURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get peers from %s: %w", peerURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get peers from %s: status %d", peerURL, resp.StatusCode)
	}

	var body peerListResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode peer list from %s: %w", peerURL, err)
	}
	if !body.Success {
		return nil, fmt.Errorf("get peers from %s: peer reported failure", peerURL)
	}

	peers := make([]string, 0, min(len(body.Peers), MaxPeerListSize))
	for _, raw := range body.Peers {
		if len(peers) >= MaxPeerListSize {
			break
		}
		if _, err := domain.HostOf(raw); err != nil {
			continue // malformed entry — drop it
		}
		peers = append(peers, raw)
	}
	return peers, nil
}
