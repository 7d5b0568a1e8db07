// SPDX-License-Identifier: MIT

// Package storage owns the stats SQLite database: the raw events table that
// backs HTTP/feature telemetry, the leaderboard and save-submission tables,
// and the session revocation tables consumed by the session service. One
// *Storage wraps one *sql.DB; all methods are safe for concurrent use
// because database/sql pools connections itself.
package storage

import (
	"database/sql"
	"fmt"

	"github.com/phicloud/phi-backend/internal/persistence/sqlite"
)

// Storage is the stats database handle.
type Storage struct {
	DB *sql.DB
}

// Open opens (creating if missing) the SQLite database at path with the
// standard WAL/busy_timeout pragmas and ensures the schema exists.
func Open(path string) (*Storage, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("stats: open: %w", err)
	}
	s := &Storage{DB: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("stats: init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Storage) Close() error {
	return s.DB.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_utc TEXT NOT NULL,
	route TEXT,
	feature TEXT,
	action TEXT,
	method TEXT,
	status INTEGER,
	duration_ms INTEGER,
	user_hash TEXT,
	client_ip_hash TEXT,
	instance TEXT,
	extra_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_utc);
CREATE INDEX IF NOT EXISTS idx_events_feature_ts ON events(feature, ts_utc);
CREATE INDEX IF NOT EXISTS idx_events_route_ts ON events(route, ts_utc);
CREATE INDEX IF NOT EXISTS idx_events_ts_user_hash ON events(ts_utc, user_hash);
CREATE INDEX IF NOT EXISTS idx_events_ts_client_ip_hash ON events(ts_utc, client_ip_hash);
CREATE INDEX IF NOT EXISTS idx_events_http_agg ON events(ts_utc, route, method, status);
CREATE INDEX IF NOT EXISTS idx_events_latency_route_duration_ts ON events(route, duration_ms, ts_utc)
	WHERE route IS NOT NULL AND duration_ms IS NOT NULL;

CREATE TABLE IF NOT EXISTS leaderboard_rks (
	user_hash TEXT PRIMARY KEY,
	total_rks REAL NOT NULL,
	user_kind TEXT,
	suspicion_score REAL NOT NULL DEFAULT 0.0,
	is_hidden INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lb_rks_order ON leaderboard_rks(total_rks DESC, updated_at ASC, user_hash ASC);

CREATE TABLE IF NOT EXISTS user_profile (
	user_hash TEXT PRIMARY KEY,
	alias TEXT UNIQUE COLLATE NOCASE,
	is_public INTEGER NOT NULL DEFAULT 0,
	is_hidden INTEGER NOT NULL DEFAULT 0,
	moderation_status TEXT NOT NULL DEFAULT 'approved',
	show_rks_composition INTEGER NOT NULL DEFAULT 1,
	show_best_top3 INTEGER NOT NULL DEFAULT 1,
	show_ap_top3 INTEGER NOT NULL DEFAULT 1,
	user_kind TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_profile_public ON user_profile(is_public);

CREATE TABLE IF NOT EXISTS moderation_flags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT,
	actor TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_moderation_flags_user ON moderation_flags(user_hash, created_at DESC);

CREATE TABLE IF NOT EXISTS save_submissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_hash TEXT NOT NULL,
	total_rks REAL NOT NULL,
	acc_stats TEXT,
	rks_jump REAL,
	route TEXT,
	client_ip_hash TEXT,
	details_json TEXT,
	suspicion_score REAL NOT NULL DEFAULT 0.0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_user ON save_submissions(user_hash, created_at DESC);

CREATE TABLE IF NOT EXISTS leaderboard_details (
	user_hash TEXT PRIMARY KEY,
	rks_composition_json TEXT,
	best_top3_json TEXT,
	ap_top3_json TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_token_blacklist (
	jti TEXT PRIMARY KEY,
	expires_at TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_blacklist_expires_at ON session_token_blacklist(expires_at);

CREATE TABLE IF NOT EXISTS session_logout_gate (
	user_hash TEXT PRIMARY KEY,
	logout_before TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_logout_gate_expires_at ON session_logout_gate(expires_at);
`

func (s *Storage) initSchema() error {
	_, err := s.DB.Exec(schemaDDL)
	return err
}
