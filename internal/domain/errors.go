package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. Per-peer network
// failures are never surfaced as errors at all; they are recorded in the
// peer's counters and visible only through the stats API.

var (
	// Manager lifecycle (state errors — handled locally, never fatal)
	ErrAlreadyRunning = errors.New("discovery manager is already running")
	ErrNotRunning     = errors.New("discovery manager is not running")

	// Protocol errors — the offending data is discarded, never trusted
	ErrInvalidPeerURL   = errors.New("invalid peer URL")
	ErrPeerListTooLarge = errors.New("peer list exceeds allowed size")
	ErrSelfPeer         = errors.New("peer URL refers to this node")

	// Announce errors
	ErrAnnounceThrottled = errors.New("announce rate limit exceeded")

	// Configuration errors
	ErrUnknownNetwork = errors.New("unknown network type")
)
