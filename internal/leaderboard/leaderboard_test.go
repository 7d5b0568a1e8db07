// SPDX-License-Identifier: MIT

package leaderboard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

func openTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "stats.sqlite"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPlayer(t *testing.T, store *storage.Storage, userHash string, score float64, public bool, alias string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := store.UpsertLeaderboardRKS(ctx, userHash, score, nil, 0, false, now); err != nil {
		t.Fatalf("UpsertLeaderboardRKS: %v", err)
	}
	if alias != "" {
		if _, err := SetAlias(ctx, store, userHash, alias); err != nil {
			t.Fatalf("SetAlias: %v", err)
		}
	}
	if public {
		if err := UpdateProfile(ctx, store, config.LeaderboardConfig{AllowPublic: true}, userHash, ProfileUpdate{IsPublic: boolPtr(true)}); err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
	}
	// force a deterministic ordering across near-simultaneous inserts
	time.Sleep(time.Millisecond)
}

func boolPtr(b bool) *bool { return &b }

func TestTop_OnlyVisiblePlayersOrderedByScore(t *testing.T) {
	store := openTestStore(t)
	seedPlayer(t, store, "user-a", 10.0, true, "alpha")
	seedPlayer(t, store, "user-b", 20.0, true, "bravo")
	seedPlayer(t, store, "user-c", 30.0, false, "charlie") // not public

	page, err := Top(context.Background(), store, 10, 0, nil)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2 (private player excluded)", page.Total)
	}
	if len(page.Items) != 2 || page.Items[0].Score != 20.0 || page.Items[1].Score != 10.0 {
		t.Fatalf("items = %+v, want descending score order", page.Items)
	}
	if page.Items[0].Rank != 1 || page.Items[1].Rank != 2 {
		t.Fatalf("ranks = %d,%d, want 1,2", page.Items[0].Rank, page.Items[1].Rank)
	}
}

func TestTop_OffsetPaginationHasMore(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		seedPlayer(t, store, fmt_userHash(i), float64(i+1), true, "")
	}
	page, err := Top(context.Background(), store, 2, 0, nil)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if !page.HasMore {
		t.Fatal("expected HasMore with 5 players and limit 2")
	}
	if len(page.Items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(page.Items))
	}
}

func TestTop_SeekPaginationContinuesFromCursor(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		seedPlayer(t, store, fmt_userHash(i), float64(i+1), true, "")
	}
	first, err := Top(context.Background(), store, 2, 0, nil)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if first.NextAfterScore == nil {
		t.Fatal("expected a cursor from the first page")
	}
	cursor := &Cursor{Score: *first.NextAfterScore, UpdatedAt: *first.NextAfterUpdated, UserHash: *first.NextAfterUser}
	second, err := Top(context.Background(), store, 2, 0, cursor)
	if err != nil {
		t.Fatalf("Top seek: %v", err)
	}
	if len(second.Items) == 0 {
		t.Fatal("expected seek page to return items")
	}
	for _, it := range second.Items {
		for _, prev := range first.Items {
			if it.User == prev.User {
				t.Fatalf("seek page repeated an item from the first page: %+v", it)
			}
		}
	}
}

func fmt_userHash(i int) string {
	return "user-" + string(rune('a'+i))
}

func TestByRank_SingleRank(t *testing.T) {
	store := openTestStore(t)
	seedPlayer(t, store, "user-a", 10.0, true, "")
	seedPlayer(t, store, "user-b", 20.0, true, "")

	r := int64(1)
	page, err := ByRank(context.Background(), store, RankQuery{Rank: &r})
	if err != nil {
		t.Fatalf("ByRank: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Score != 20.0 {
		t.Fatalf("items = %+v, want rank 1 = score 20", page.Items)
	}
}

func TestByRank_RequiresARangeSelector(t *testing.T) {
	store := openTestStore(t)
	if _, err := ByRank(context.Background(), store, RankQuery{}); err == nil {
		t.Fatal("expected an error when no rank selector is given")
	}
}

func TestMe_ComputesCompetitiveRankAndPercentile(t *testing.T) {
	store := openTestStore(t)
	seedPlayer(t, store, "user-a", 10.0, true, "")
	seedPlayer(t, store, "user-b", 20.0, true, "")
	seedPlayer(t, store, "user-c", 30.0, true, "")

	me, err := Me(context.Background(), store, "user-b")
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Rank != 2 {
		t.Fatalf("rank = %d, want 2", me.Rank)
	}
	if me.Total != 3 {
		t.Fatalf("total = %d, want 3", me.Total)
	}
}

func TestMe_UnknownUserReturnsZeroRank(t *testing.T) {
	store := openTestStore(t)
	seedPlayer(t, store, "user-a", 10.0, true, "")

	me, err := Me(context.Background(), store, "stranger")
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Rank != 0 {
		t.Fatalf("rank = %d, want 0 for unknown user", me.Rank)
	}
}

func TestGetPublicProfile_HiddenAliasNotFound(t *testing.T) {
	store := openTestStore(t)
	seedPlayer(t, store, "user-a", 10.0, false, "private-alias")

	_, ok, err := GetPublicProfile(context.Background(), store, "private-alias")
	if err != nil {
		t.Fatalf("GetPublicProfile: %v", err)
	}
	if ok {
		t.Fatal("expected a non-public alias to read as not found")
	}
}

func TestGetPublicProfile_PublicAliasResolves(t *testing.T) {
	store := openTestStore(t)
	seedPlayer(t, store, "user-a", 10.0, true, "public-alias")

	profile, ok, err := GetPublicProfile(context.Background(), store, "public-alias")
	if err != nil {
		t.Fatalf("GetPublicProfile: %v", err)
	}
	if !ok {
		t.Fatal("expected public alias to resolve")
	}
	if profile.Score != 10.0 {
		t.Fatalf("score = %v, want 10.0", profile.Score)
	}
}

func TestValidateAlias_RejectsBadInput(t *testing.T) {
	cases := []string{"a", "this-alias-is-definitely-too-long-to-accept", "bad alias", "bad$alias"}
	for _, c := range cases {
		if err := ValidateAlias(c); err == nil {
			t.Errorf("ValidateAlias(%q) = nil, want error", c)
		}
	}
	if err := ValidateAlias("valid.alias_1"); err != nil {
		t.Errorf("ValidateAlias(valid) = %v, want nil", err)
	}
}

func TestListUsers_FiltersByStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedPlayer(t, store, "user-a", 10.0, false, "")
	seedPlayer(t, store, "user-b", 20.0, false, "")
	if _, err := SetUserStatus(ctx, store, "user-b", "banned", nil, "test-admin"); err != nil {
		t.Fatalf("SetUserStatus: %v", err)
	}

	banned := "banned"
	page, err := ListUsers(ctx, store, 1, 50, &banned, nil)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].UserHash != "user-b" {
		t.Fatalf("items = %+v, want only user-b", page.Items)
	}
}

func TestScanSuspicious_RanksBySuspicionDescending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := store.UpsertLeaderboardRKS(ctx, "user-low", 10, nil, 0.2, false, now); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.UpsertLeaderboardRKS(ctx, "user-high", 10, nil, 0.9, false, now); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, scanned, err := ScanSuspicious(ctx, store, 0.5, 5, 100, 10, nil, nil)
	if err != nil {
		t.Fatalf("ScanSuspicious: %v", err)
	}
	if scanned < 1 {
		t.Fatal("expected at least one page scanned")
	}
	if len(items) != 1 || items[0].UserHash != "user-high" {
		t.Fatalf("items = %+v, want only user-high above threshold", items)
	}
}

func TestSetUserStatus_BanThenUnban(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedPlayer(t, store, "user-x", 5.0, false, "")

	if _, err := SetUserStatus(ctx, store, "user-x", "banned", nil, "admin1"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	status, err := GetUserStatus(ctx, store, "user-x")
	if err != nil {
		t.Fatalf("GetUserStatus: %v", err)
	}
	if status.Status != "banned" {
		t.Fatalf("status = %q, want banned", status.Status)
	}

	if _, err := SetUserStatus(ctx, store, "user-x", "approved", nil, "admin1"); err != nil {
		t.Fatalf("unban: %v", err)
	}
	status, err = GetUserStatus(ctx, store, "user-x")
	if err != nil {
		t.Fatalf("GetUserStatus: %v", err)
	}
	if status.Status != "approved" {
		t.Fatalf("status = %q, want approved", status.Status)
	}
}
