// SPDX-License-Identifier: MIT

// Package leaderboard serves the public RKS ranking surface: paginated
// top-N queries (offset or cursor-seek), a rank-range lookup, a caller's
// own competitive rank, and the public per-player profile a masked user
// hash and alias resolve to. All ranking queries share one stable sort —
// total_rks DESC, updated_at ASC, user_hash ASC — so ties never reorder
// between pages and a seek cursor built from one page's last row always
// resumes correctly on the next.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phicloud/phi-backend/internal/stats/storage"
)

// maxPageSize bounds both limit and a rank-range's span; a caller asking
// for more gets clamped rather than rejected.
const maxPageSize = 200

const defaultPageSize = 50

// ChartSummary is one chart's text-only contribution to a player's public
// Best27/AP3 display — no save data, just what the leaderboard renders.
type ChartSummary struct {
	SongID      string  `json:"song_id"`
	Difficulty  string  `json:"difficulty"`
	Acc         float64 `json:"acc"`
	RKS         float64 `json:"rks"`
	IsFullCombo bool    `json:"is_full_combo"`
}

// TopItem is one row of a top/by-rank listing.
type TopItem struct {
	Rank      int64           `json:"rank"`
	Alias     *string         `json:"alias,omitempty"`
	User      string          `json:"user"`
	Score     float64         `json:"score"`
	UpdatedAt string          `json:"updated_at"`
	BestTop3  []ChartSummary  `json:"best_top3,omitempty"`
	APTop3    []ChartSummary  `json:"ap_top3,omitempty"`
}

// TopPage is a page of ranking results plus the cursor to fetch the next.
type TopPage struct {
	Items            []TopItem
	Total            int64
	HasMore          bool
	NextAfterScore   *float64
	NextAfterUpdated *string
	NextAfterUser    *string
}

// MaskUserHash returns a display-safe prefix of a user hash: the first
// four characters followed by a fixed mask, never the full identifier.
func MaskUserHash(hash string) string {
	n := 4
	if len(hash) < n {
		n = len(hash)
	}
	return hash[:n] + "****"
}

const visibleFilter = `COALESCE(up.is_public,0)=1 AND lr.is_hidden=0 AND COALESCE(up.is_hidden,0)=0`

func countVisible(ctx context.Context, store *storage.Storage) (int64, error) {
	var total int64
	err := store.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM leaderboard_rks lr LEFT JOIN user_profile up ON up.user_hash = lr.user_hash
		 WHERE `+visibleFilter,
	).Scan(&total)
	return total, err
}

type rankedRow struct {
	userHash  string
	alias     *string
	score     float64
	updatedAt string
	showBest3 bool
	showAP3   bool
}

func scanRankedRows(ctx context.Context, store *storage.Storage, query string, args ...any) ([]rankedRow, error) {
	rows, err := store.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rankedRow
	for rows.Next() {
		var r rankedRow
		if err := rows.Scan(&r.userHash, &r.score, &r.updatedAt, &r.alias, &r.showBest3, &r.showAP3); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeChartList(ctx context.Context, store *storage.Storage, userHash string, wantBest, wantAP bool) (best, ap []ChartSummary) {
	if !wantBest && !wantAP {
		return nil, nil
	}
	var bestJSON, apJSON *string
	err := store.DB.QueryRowContext(ctx,
		`SELECT best_top3_json, ap_top3_json FROM leaderboard_details WHERE user_hash = ?`, userHash,
	).Scan(&bestJSON, &apJSON)
	if err != nil {
		return nil, nil
	}
	if wantBest && bestJSON != nil {
		_ = json.Unmarshal([]byte(*bestJSON), &best)
	}
	if wantAP && apJSON != nil {
		_ = json.Unmarshal([]byte(*apJSON), &ap)
	}
	return best, ap
}

func buildItems(ctx context.Context, store *storage.Storage, rows []rankedRow, firstRank int64) []TopItem {
	items := make([]TopItem, 0, len(rows))
	for i, r := range rows {
		best, ap := decodeChartList(ctx, store, r.userHash, r.showBest3, r.showAP3)
		var rank int64
		if firstRank > 0 {
			rank = firstRank + int64(i)
		}
		items = append(items, TopItem{
			Rank:      rank,
			Alias:     r.alias,
			User:      MaskUserHash(r.userHash),
			Score:     r.score,
			UpdatedAt: r.updatedAt,
			BestTop3:  best,
			APTop3:    ap,
		})
	}
	return items
}

// Cursor is a seek-pagination position taken from the last item of a
// previous page.
type Cursor struct {
	Score     float64
	UpdatedAt string
	UserHash  string
}

// Top returns a page of the public ranking ordered by total_rks DESC,
// updated_at ASC, user_hash ASC. When cursor is non-nil, seek pagination
// is used (stable under concurrent inserts); otherwise plain OFFSET
// pagination is used. limit is clamped to [1, maxPageSize]; offset to
// >= 0. limit<=0 defaults to defaultPageSize.
func Top(ctx context.Context, store *storage.Storage, limit, offset int64, cursor *Cursor) (TopPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	total, err := countVisible(ctx, store)
	if err != nil {
		return TopPage{}, fmt.Errorf("leaderboard: count top: %w", err)
	}

	const baseSelect = `SELECT lr.user_hash, lr.total_rks, lr.updated_at, up.alias,
	                            COALESCE(up.show_best_top3,0), COALESCE(up.show_ap_top3,0)
	                     FROM leaderboard_rks lr LEFT JOIN user_profile up ON up.user_hash = lr.user_hash
	                     WHERE ` + visibleFilter

	var rows []rankedRow
	var firstRank int64
	if cursor != nil {
		rows, err = scanRankedRows(ctx, store,
			baseSelect+` AND (lr.total_rks < ? OR (lr.total_rks = ? AND (lr.updated_at > ? OR (lr.updated_at = ? AND lr.user_hash > ?))))
			             ORDER BY lr.total_rks DESC, lr.updated_at ASC, lr.user_hash ASC LIMIT ?`,
			cursor.Score, cursor.Score, cursor.UpdatedAt, cursor.UpdatedAt, cursor.UserHash, limit,
		)
		// firstRank is unknown under seek pagination (the caller only knows
		// relative order, not an absolute offset); ranks are left 0-valued.
	} else {
		rows, err = scanRankedRows(ctx, store,
			baseSelect+` ORDER BY lr.total_rks DESC, lr.updated_at ASC, lr.user_hash ASC LIMIT ? OFFSET ?`,
			limit, offset,
		)
		firstRank = offset + 1
	}
	if err != nil {
		return TopPage{}, fmt.Errorf("leaderboard: query top: %w", err)
	}

	var hasMore bool
	if cursor != nil {
		hasMore = int64(len(rows)) == limit
	} else {
		hasMore = offset+int64(len(rows)) < total
	}

	page := TopPage{Items: buildItems(ctx, store, rows, firstRank), Total: total, HasMore: hasMore}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextAfterScore = &last.score
		page.NextAfterUpdated = &last.updatedAt
		page.NextAfterUser = &last.userHash
	}
	return page, nil
}

// RankQuery selects a rank range: either a single Rank, or (Start,End)
// inclusive, or (Start,Count). Exactly one of these combinations must be
// set by the caller before calling ByRank.
type RankQuery struct {
	Rank  *int64
	Start *int64
	End   *int64
	Count *int64
}

// resolveRange turns a RankQuery into a 1-based (startRank, count) pair,
// clamped to maxPageSize.
func resolveRange(q RankQuery) (startRank, count int64, err error) {
	switch {
	case q.Rank != nil:
		r := *q.Rank
		if r < 1 {
			r = 1
		}
		return r, 1, nil
	case q.Start != nil && q.End != nil:
		s := *q.Start
		if s < 1 {
			s = 1
		}
		e := *q.End
		if e < s {
			e = s
		}
		c := e - s + 1
		if c > maxPageSize {
			c = maxPageSize
		}
		return s, c, nil
	case q.Start != nil && q.Count != nil:
		s := *q.Start
		if s < 1 {
			s = 1
		}
		c := *q.Count
		if c < 1 {
			c = 1
		}
		if c > maxPageSize {
			c = maxPageSize
		}
		return s, c, nil
	default:
		return 0, 0, fmt.Errorf("leaderboard: must supply rank, or start+end, or start+count")
	}
}

// ByRank returns the players occupying a 1-based rank range, using the
// same stable ordering Top uses.
func ByRank(ctx context.Context, store *storage.Storage, q RankQuery) (TopPage, error) {
	startRank, count, err := resolveRange(q)
	if err != nil {
		return TopPage{}, err
	}
	offset := startRank - 1

	total, err := countVisible(ctx, store)
	if err != nil {
		return TopPage{}, fmt.Errorf("leaderboard: count by-rank: %w", err)
	}

	rows, err := scanRankedRows(ctx, store,
		`SELECT lr.user_hash, lr.total_rks, lr.updated_at, up.alias,
		        COALESCE(up.show_best_top3,0), COALESCE(up.show_ap_top3,0)
		 FROM leaderboard_rks lr LEFT JOIN user_profile up ON up.user_hash = lr.user_hash
		 WHERE `+visibleFilter+`
		 ORDER BY lr.total_rks DESC, lr.updated_at ASC, lr.user_hash ASC LIMIT ? OFFSET ?`,
		count, offset,
	)
	if err != nil {
		return TopPage{}, fmt.Errorf("leaderboard: query by-rank: %w", err)
	}

	hasMore := offset+int64(len(rows)) < total
	page := TopPage{Items: buildItems(ctx, store, rows, startRank), Total: total, HasMore: hasMore}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextAfterScore = &last.score
		page.NextAfterUpdated = &last.updatedAt
		page.NextAfterUser = &last.userHash
	}
	return page, nil
}

// MyRank is a caller's own competitive standing.
type MyRank struct {
	Rank       int64
	Score      float64
	Total      int64
	Percentile float64
}

// Me computes userHash's competitive rank: strictly-better-scoring visible
// players, plus ties broken the same way the public ordering breaks them
// (earlier updated_at, then smaller user_hash), count as "higher". Rank is
// 0 when the user has no recorded score, or the leaderboard is empty.
func Me(ctx context.Context, store *storage.Storage, userHash string) (MyRank, error) {
	var myScore float64
	var myUpdated string
	row := store.DB.QueryRowContext(ctx, `SELECT total_rks, updated_at FROM leaderboard_rks WHERE user_hash = ?`, userHash)
	if err := row.Scan(&myScore, &myUpdated); err != nil {
		myScore, myUpdated = 0, ""
	}

	total, err := countVisible(ctx, store)
	if err != nil {
		return MyRank{}, fmt.Errorf("leaderboard: count me: %w", err)
	}
	if total == 0 || myScore <= 0 {
		return MyRank{Total: total}, nil
	}

	var higher int64
	err = store.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM leaderboard_rks lr LEFT JOIN user_profile up ON up.user_hash = lr.user_hash
		 WHERE `+visibleFilter+` AND (
		   lr.total_rks > ? OR (lr.total_rks = ? AND (lr.updated_at < ? OR (lr.updated_at = ? AND lr.user_hash < ?)))
		 )`,
		myScore, myScore, myUpdated, myUpdated, userHash,
	).Scan(&higher)
	if err != nil {
		return MyRank{}, fmt.Errorf("leaderboard: query rank: %w", err)
	}

	rank := higher + 1
	percentile := 100 * (1 - (float64(rank-1) / float64(total)))
	return MyRank{Rank: rank, Score: myScore, Total: total, Percentile: percentile}, nil
}

// PublicProfile is the text-only response a public alias resolves to.
type PublicProfile struct {
	Alias           string
	Score           float64
	UpdatedAt       string
	RKSComposition  json.RawMessage
	BestTop3        []ChartSummary
	APTop3          []ChartSummary
}

// GetPublicProfile resolves alias to its visible-only public profile.
// ok=false covers both "no such alias" and "alias exists but is not
// public" — the caller must not distinguish the two, or the API leaks
// which aliases exist.
func GetPublicProfile(ctx context.Context, store *storage.Storage, alias string) (PublicProfile, bool, error) {
	var userHash string
	var isPublic bool
	var showRC, showBest3, showAP3 bool
	var score float64
	var updatedAt string
	row := store.DB.QueryRowContext(ctx,
		`SELECT up.user_hash, up.is_public, up.show_rks_composition, up.show_best_top3, up.show_ap_top3,
		        COALESCE(lr.total_rks,0), COALESCE(lr.updated_at,'')
		 FROM user_profile up LEFT JOIN leaderboard_rks lr ON lr.user_hash = up.user_hash
		 WHERE up.alias = ?`, alias,
	)
	if err := row.Scan(&userHash, &isPublic, &showRC, &showBest3, &showAP3, &score, &updatedAt); err != nil {
		return PublicProfile{}, false, nil
	}
	if !isPublic {
		return PublicProfile{}, false, nil
	}

	profile := PublicProfile{Alias: alias, Score: score, UpdatedAt: updatedAt}
	if showRC || showBest3 || showAP3 {
		var rcJSON, bestJSON, apJSON *string
		err := store.DB.QueryRowContext(ctx,
			`SELECT rks_composition_json, best_top3_json, ap_top3_json FROM leaderboard_details WHERE user_hash = ?`,
			userHash,
		).Scan(&rcJSON, &bestJSON, &apJSON)
		if err == nil {
			if showRC && rcJSON != nil {
				profile.RKSComposition = json.RawMessage(*rcJSON)
			}
			if showBest3 && bestJSON != nil {
				_ = json.Unmarshal([]byte(*bestJSON), &profile.BestTop3)
			}
			if showAP3 && apJSON != nil {
				_ = json.Unmarshal([]byte(*apJSON), &profile.APTop3)
			}
		}
	}
	return profile, true, nil
}
