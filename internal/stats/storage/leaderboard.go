// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"database/sql"
)

// SubmissionRecord is one save-submission event persisted for rks history
// and suspicion-review lookups.
type SubmissionRecord struct {
	UserHash        string
	TotalRKS        float64
	RKSJump         float64
	Route           string
	ClientIPHash    *string
	DetailsJSON     *string
	SuspicionScore  float64
	NowRFC3339      string
}

// GetPrevRKS returns a user's currently-recorded total RKS and its
// updated_at timestamp, or ok=false if the user has never submitted.
func (s *Storage) GetPrevRKS(ctx context.Context, userHash string) (total float64, updatedAt string, ok bool, err error) {
	row := s.DB.QueryRowContext(ctx, `SELECT total_rks, updated_at FROM leaderboard_rks WHERE user_hash = ?`, userHash)
	err = row.Scan(&total, &updatedAt)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return total, updatedAt, true, nil
}

// InsertSubmission appends one save-submission audit row.
func (s *Storage) InsertSubmission(ctx context.Context, r SubmissionRecord) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO save_submissions(user_hash,total_rks,acc_stats,rks_jump,route,client_ip_hash,details_json,suspicion_score,created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.UserHash, r.TotalRKS, nil, r.RKSJump, r.Route, r.ClientIPHash, r.DetailsJSON, r.SuspicionScore, r.NowRFC3339,
	)
	return err
}

// UpsertLeaderboardRKS records a new total_rks for a user, keeping only the
// higher of the existing and incoming value (a save replay or a stale
// upload must never regress a player's displayed rank). is_hidden is
// sticky: once hidden, a lower-suspicion resubmission does not unhide it.
func (s *Storage) UpsertLeaderboardRKS(ctx context.Context, userHash string, totalRKS float64, userKind *string, suspicionScore float64, hide bool, nowRFC3339 string) error {
	hiddenVal := int64(0)
	if hide {
		hiddenVal = 1
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO leaderboard_rks(user_hash,total_rks,user_kind,suspicion_score,is_hidden,created_at,updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(user_hash) DO UPDATE SET
		   total_rks = CASE WHEN excluded.total_rks > leaderboard_rks.total_rks THEN excluded.total_rks ELSE leaderboard_rks.total_rks END,
		   updated_at = CASE WHEN excluded.total_rks > leaderboard_rks.total_rks THEN excluded.updated_at ELSE leaderboard_rks.updated_at END,
		   user_kind = COALESCE(excluded.user_kind, leaderboard_rks.user_kind),
		   suspicion_score = excluded.suspicion_score,
		   is_hidden = CASE WHEN leaderboard_rks.is_hidden = 1 OR excluded.is_hidden = 1 THEN 1 ELSE 0 END`,
		userHash, totalRKS, userKind, suspicionScore, hiddenVal, nowRFC3339, nowRFC3339,
	)
	return err
}

// UpsertDetails stores (or partially updates) a user's public leaderboard
// detail blobs. A nil JSON field leaves the previously stored value intact.
func (s *Storage) UpsertDetails(ctx context.Context, userHash string, rksCompositionJSON, best3JSON, ap3JSON *string, nowRFC3339 string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO leaderboard_details(user_hash,rks_composition_json,best_top3_json,ap_top3_json,updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_hash) DO UPDATE SET
		   rks_composition_json = COALESCE(excluded.rks_composition_json, leaderboard_details.rks_composition_json),
		   best_top3_json = COALESCE(excluded.best_top3_json, leaderboard_details.best_top3_json),
		   ap_top3_json = COALESCE(excluded.ap_top3_json, leaderboard_details.ap_top3_json),
		   updated_at = excluded.updated_at`,
		userHash, rksCompositionJSON, best3JSON, ap3JSON, nowRFC3339,
	)
	return err
}

// RKSHistoryItem is one point in a user's rks-over-time history.
type RKSHistoryItem struct {
	RKS       float64
	RKSJump   float64
	CreatedAt string
}

// rksJumpEpsilon zeroes floating-point noise below this magnitude so a
// same-save resubmission does not read as a "rks change" on the wire.
const rksJumpEpsilon = 1e-9

// QueryRKSHistory returns a user's submission history, most recent first,
// and the total submission count for pagination.
func (s *Storage) QueryRKSHistory(ctx context.Context, userHash string, limit, offset int64) ([]RKSHistoryItem, int64, error) {
	var total int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM save_submissions WHERE user_hash = ?`, userHash).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT total_rks, rks_jump, created_at FROM save_submissions WHERE user_hash = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userHash, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []RKSHistoryItem
	for rows.Next() {
		var it RKSHistoryItem
		var jump sql.NullFloat64
		if err := rows.Scan(&it.RKS, &jump, &it.CreatedAt); err != nil {
			return nil, 0, err
		}
		it.RKSJump = jump.Float64
		if it.RKSJump < rksJumpEpsilon && it.RKSJump > -rksJumpEpsilon {
			it.RKSJump = 0
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// GetPeakRKS returns a user's historical maximum total RKS across all
// submissions, 0 if the user has never submitted.
func (s *Storage) GetPeakRKS(ctx context.Context, userHash string) (float64, error) {
	var peak sql.NullFloat64
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(total_rks) FROM save_submissions WHERE user_hash = ?`, userHash).Scan(&peak)
	if err != nil {
		return 0, err
	}
	return peak.Float64, nil
}
