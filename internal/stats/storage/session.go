// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"
)

// sessionCleanupInterval rate-limits CleanupExpiredSessionRecords so a burst
// of requests arriving around the same instant only sweeps once.
const sessionCleanupInterval = 5 * time.Minute

// lastSessionCleanup is a process-wide debounce clock, deliberately shared
// across all *Storage instances the way the upstream single-flight guard
// is: there is only ever one stats database per process.
var lastSessionCleanup atomic.Int64

// AddTokenBlacklist revokes a single bearer token by jti until expiresAt.
func (s *Storage) AddTokenBlacklist(ctx context.Context, jti, expiresAtRFC3339, createdAtRFC3339 string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO session_token_blacklist(jti,expires_at,created_at) VALUES(?,?,?)
		 ON CONFLICT(jti) DO UPDATE SET expires_at = excluded.expires_at, created_at = excluded.created_at`,
		jti, expiresAtRFC3339, createdAtRFC3339,
	)
	return err
}

// IsTokenBlacklisted reports whether jti is revoked and the revocation has
// not yet naturally expired.
func (s *Storage) IsTokenBlacklisted(ctx context.Context, jti, nowRFC3339 string) (bool, error) {
	var found int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM session_token_blacklist WHERE jti = ? AND expires_at > ? LIMIT 1`,
		jti, nowRFC3339,
	).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// UpsertLogoutGate sets the per-user "logout everywhere before this instant"
// watermark. expiresAtRFC3339 bounds how long the gate row itself is kept
// (it only needs to outlive the longest-lived token issued before it).
func (s *Storage) UpsertLogoutGate(ctx context.Context, userHash, logoutBeforeRFC3339, expiresAtRFC3339, updatedAtRFC3339 string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO session_logout_gate(user_hash,logout_before,expires_at,updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_hash) DO UPDATE SET
		   logout_before = excluded.logout_before,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		userHash, logoutBeforeRFC3339, expiresAtRFC3339, updatedAtRFC3339,
	)
	return err
}

// GetLogoutGate returns the active logout-before watermark for a user, if any.
func (s *Storage) GetLogoutGate(ctx context.Context, userHash, nowRFC3339 string) (logoutBefore string, ok bool, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT logout_before FROM session_logout_gate WHERE user_hash = ? AND expires_at > ? LIMIT 1`,
		userHash, nowRFC3339,
	).Scan(&logoutBefore)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return logoutBefore, err == nil, err
}

// GetSessionRevokeState answers both revocation checks a bearer decode
// needs in one round trip: is this exact token blacklisted, and has the
// user logged out everywhere since.
func (s *Storage) GetSessionRevokeState(ctx context.Context, jti, userHash, nowRFC3339 string) (blacklisted bool, logoutBefore string, hasLogoutBefore bool, err error) {
	var blacklistedNum int64
	var lb sql.NullString
	err = s.DB.QueryRowContext(ctx,
		`SELECT
		   EXISTS(SELECT 1 FROM session_token_blacklist WHERE jti = ? AND expires_at > ?) AS blacklisted,
		   (SELECT logout_before FROM session_logout_gate WHERE user_hash = ? AND expires_at > ? LIMIT 1) AS logout_before`,
		jti, nowRFC3339, userHash, nowRFC3339,
	).Scan(&blacklistedNum, &lb)
	if err != nil {
		return false, "", false, err
	}
	return blacklistedNum != 0, lb.String, lb.Valid, nil
}

// CleanupExpiredSessionRecords deletes naturally-expired blacklist and
// logout-gate rows, returning how many of each were removed.
func (s *Storage) CleanupExpiredSessionRecords(ctx context.Context, nowRFC3339 string) (blacklistDeleted, gateDeleted int64, err error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM session_token_blacklist WHERE expires_at <= ?`, nowRFC3339)
	if err != nil {
		return 0, 0, err
	}
	blacklistDeleted, _ = res.RowsAffected()

	res, err = s.DB.ExecContext(ctx, `DELETE FROM session_logout_gate WHERE expires_at <= ?`, nowRFC3339)
	if err != nil {
		return blacklistDeleted, 0, err
	}
	gateDeleted, _ = res.RowsAffected()
	return blacklistDeleted, gateDeleted, nil
}

// MaybeCleanupExpiredSessionRecords runs CleanupExpiredSessionRecords at
// most once per sessionCleanupInterval, single-flighted via a CAS on a
// shared clock so concurrent bearer decodes don't all sweep at once.
func (s *Storage) MaybeCleanupExpiredSessionRecords(ctx context.Context, now time.Time) (bool, error) {
	nowTS := now.Unix()
	last := lastSessionCleanup.Load()
	if nowTS-last < int64(sessionCleanupInterval.Seconds()) {
		return false, nil
	}
	if !lastSessionCleanup.CompareAndSwap(last, nowTS) {
		return false, nil
	}
	if _, _, err := s.CleanupExpiredSessionRecords(ctx, now.UTC().Format(time.RFC3339Nano)); err != nil {
		lastSessionCleanup.Store(last)
		return false, err
	}
	return true, nil
}
