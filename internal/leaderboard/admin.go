// SPDX-License-Identifier: MIT

package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/phicloud/phi-backend/internal/stats/storage"
)

// AdminUserItem is one row of an admin-facing user listing: unlike the
// public Top listing, it carries the full user_hash and the raw suspicion
// score so an operator can act on it directly.
type AdminUserItem struct {
	UserHash  string
	Alias     *string
	Score     float64
	Suspicion float64
	IsHidden  bool
	Status    string
	UpdatedAt string
}

// ListUsersPage is a page of the admin user listing.
type ListUsersPage struct {
	Items    []AdminUserItem
	Total    int64
	Page     int64
	PageSize int64
}

// ListUsers returns every scored user (public or not), optionally filtered
// by moderation status and/or an alias substring, ordered the same way the
// public ranking is.
func ListUsers(ctx context.Context, store *storage.Storage, page, pageSize int64, status, aliasFilter *string) (ListUsersPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize

	where := []string{"1=1"}
	var args []any
	if status != nil && *status != "" {
		where = append(where, "COALESCE(up.moderation_status,'approved') = ?")
		args = append(args, *status)
	}
	if aliasFilter != nil && *aliasFilter != "" {
		where = append(where, "up.alias LIKE ? COLLATE NOCASE")
		args = append(args, "%"+*aliasFilter+"%")
	}
	whereClause := strings.Join(where, " AND ")

	var total int64
	countArgs := append([]any{}, args...)
	err := store.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM leaderboard_rks lr LEFT JOIN user_profile up ON up.user_hash = lr.user_hash WHERE `+whereClause,
		countArgs...,
	).Scan(&total)
	if err != nil {
		return ListUsersPage{}, fmt.Errorf("leaderboard admin: count users: %w", err)
	}

	queryArgs := append(append([]any{}, args...), pageSize, offset)
	rows, err := store.DB.QueryContext(ctx,
		`SELECT lr.user_hash, up.alias, lr.total_rks, lr.suspicion_score, lr.is_hidden,
		        COALESCE(up.moderation_status,'approved'), lr.updated_at
		 FROM leaderboard_rks lr LEFT JOIN user_profile up ON up.user_hash = lr.user_hash
		 WHERE `+whereClause+`
		 ORDER BY lr.total_rks DESC, lr.updated_at ASC, lr.user_hash ASC
		 LIMIT ? OFFSET ?`,
		queryArgs...,
	)
	if err != nil {
		return ListUsersPage{}, fmt.Errorf("leaderboard admin: query users: %w", err)
	}
	defer rows.Close()

	var items []AdminUserItem
	for rows.Next() {
		var it AdminUserItem
		var hiddenNum int64
		if err := rows.Scan(&it.UserHash, &it.Alias, &it.Score, &it.Suspicion, &hiddenNum, &it.Status, &it.UpdatedAt); err != nil {
			return ListUsersPage{}, err
		}
		it.IsHidden = hiddenNum != 0
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return ListUsersPage{}, err
	}

	return ListUsersPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// ScanSuspicious pages through ListUsers up to scanPages times, keeping
// only users whose suspicion score meets minScore, then returns the
// highest-suspicion results first (ties broken by score, then user_hash)
// capped at limit. Scanning stops early once a page reaches the end of the
// dataset.
func ScanSuspicious(ctx context.Context, store *storage.Storage, minScore float64, scanPages, pageSize int64, limit int, status, aliasFilter *string) ([]AdminUserItem, int64, error) {
	if scanPages < 1 {
		scanPages = 1
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = 100
	}

	var all []AdminUserItem
	var scanned int64
	for p := int64(1); p <= scanPages; p++ {
		page, err := ListUsers(ctx, store, p, pageSize, status, aliasFilter)
		if err != nil {
			return nil, scanned, err
		}
		scanned++
		for _, it := range page.Items {
			if it.Suspicion >= minScore {
				all = append(all, it)
			}
		}
		if p*pageSize >= page.Total {
			break
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Suspicion != all[j].Suspicion {
			return all[i].Suspicion > all[j].Suspicion
		}
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].UserHash < all[j].UserHash
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, scanned, nil
}

// UserStatus is the moderation state a status query/mutation returns.
type UserStatus struct {
	UserHash  string
	Status    string
	Reason    *string
	UpdatedBy *string
	UpdatedAt *string
}

// GetUserStatus returns a user's current moderation status from the most
// recent moderation_flags entry, falling back to "approved" with no
// history if the user has never been flagged.
func GetUserStatus(ctx context.Context, store *storage.Storage, userHash string) (UserStatus, error) {
	var status UserStatus
	status.UserHash = userHash
	status.Status = "approved"

	row := store.DB.QueryRowContext(ctx,
		`SELECT status, reason, actor, created_at FROM moderation_flags WHERE user_hash = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		userHash,
	)
	var reason, actor, createdAt string
	err := row.Scan(&status.Status, &reason, &actor, &createdAt)
	if err != nil {
		return status, nil
	}
	if reason != "" {
		status.Reason = &reason
	}
	status.UpdatedBy = &actor
	status.UpdatedAt = &createdAt
	return status, nil
}

// SetUserStatus transitions a user's moderation status, recording actor
// for the audit trail. Ban and unban are expressed as "banned"/"approved" by
// the caller, matching the admin tool's shortcut commands.
func SetUserStatus(ctx context.Context, store *storage.Storage, userHash, status string, reason *string, actor string) (UserStatus, error) {
	r := ""
	if reason != nil {
		r = *reason
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := store.SetModerationStatus(ctx, userHash, status, r, actor, now); err != nil {
		return UserStatus{}, fmt.Errorf("leaderboard admin: set status: %w", err)
	}
	return UserStatus{UserHash: userHash, Status: status, Reason: reason, UpdatedBy: &actor, UpdatedAt: &now}, nil
}
