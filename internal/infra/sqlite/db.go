// Package sqlite provides SQLite-based persistent storage for ChainMesh.
// Uses WAL mode for concurrent reads and crash-safe writes. The store
// keeps the known-peer pool warm across restarts so a node does not have
// to re-bootstrap from seeds every time it comes up.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/chainmesh-network/chainmesh/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS peers (
			url           TEXT PRIMARY KEY,
			ip_address    TEXT NOT NULL,
			first_seen    INTEGER NOT NULL,
			last_seen     INTEGER NOT NULL,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			quality_score REAL NOT NULL DEFAULT 0,
			is_bootstrap  BOOLEAN NOT NULL DEFAULT 0,
			version       TEXT NOT NULL DEFAULT '',
			chain_height  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_peers_seen ON peers(last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_peers_quality ON peers(quality_score)`,

		`CREATE TABLE IF NOT EXISTS node_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Peer Repository ────────────────────────────────────────────────────────

// UpsertPeer inserts or updates a peer record from its snapshot.
func (d *DB) UpsertPeer(s domain.PeerSnapshot) error {
	_, err := d.db.Exec(
		`INSERT INTO peers (url, ip_address, first_seen, last_seen, success_count, failure_count, quality_score, is_bootstrap, version, chain_height)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			ip_address=excluded.ip_address,
			last_seen=excluded.last_seen,
			success_count=excluded.success_count,
			failure_count=excluded.failure_count,
			quality_score=excluded.quality_score,
			is_bootstrap=excluded.is_bootstrap,
			version=excluded.version,
			chain_height=excluded.chain_height`,
		s.URL, s.IPAddress, s.FirstSeen.Unix(), s.LastSeen.Unix(),
		s.SuccessCount, s.FailureCount, s.QualityScore,
		s.IsBootstrap, s.Version, s.ChainHeight,
	)
	return err
}

// SavePeers replaces the stored pool with the given snapshots in one
// transaction. Called at the end of each discovery cycle, so the stored
// pool always mirrors the in-memory one.
func (d *DB) SavePeers(snapshots []domain.PeerSnapshot) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM peers`); err != nil {
		return err
	}
	for _, s := range snapshots {
		_, err := tx.Exec(
			`INSERT INTO peers (url, ip_address, first_seen, last_seen, success_count, failure_count, quality_score, is_bootstrap, version, chain_height)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.URL, s.IPAddress, s.FirstSeen.Unix(), s.LastSeen.Unix(),
			s.SuccessCount, s.FailureCount, s.QualityScore,
			s.IsBootstrap, s.Version, s.ChainHeight,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListPeers returns all stored peers ordered by quality descending.
func (d *DB) ListPeers() ([]domain.PeerSnapshot, error) {
	rows, err := d.db.Query(
		`SELECT url, ip_address, first_seen, last_seen, success_count, failure_count, quality_score, is_bootstrap, version, chain_height
		 FROM peers ORDER BY quality_score DESC, url ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []domain.PeerSnapshot
	for rows.Next() {
		var s domain.PeerSnapshot
		var firstSeen, lastSeen int64
		err := rows.Scan(&s.URL, &s.IPAddress, &firstSeen, &lastSeen,
			&s.SuccessCount, &s.FailureCount, &s.QualityScore,
			&s.IsBootstrap, &s.Version, &s.ChainHeight)
		if err != nil {
			return nil, err
		}
		s.FirstSeen = time.Unix(firstSeen, 0)
		s.LastSeen = time.Unix(lastSeen, 0)
		peers = append(peers, s)
	}
	return peers, rows.Err()
}

// DeletePeer removes a peer record by URL.
func (d *DB) DeletePeer(url string) error {
	_, err := d.db.Exec(`DELETE FROM peers WHERE url = ?`, url)
	return err
}

// ─── Node Info ──────────────────────────────────────────────────────────────

// SetNodeInfo stores a key-value pair in node_info.
func (d *DB) SetNodeInfo(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetNodeInfo retrieves a value from node_info. Missing keys return "".
func (d *DB) GetNodeInfo(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM node_info WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
