// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(v string) *string { return &v }
func i64Ptr(v int64) *int64   { return &v }

func TestInsertEvents_BatchesAcrossChunkBoundary(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	events := make([]EventInsert, maxRowsPerInsert+5)
	for i := range events {
		events[i] = EventInsert{
			TsUTC:  time.Now().UTC(),
			Route:  strPtr("/api/save"),
			Status: i64Ptr(200),
		}
	}

	if err := s.InsertEvents(ctx, events); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	var count int64
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(1) FROM events").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != int64(len(events)) {
		t.Fatalf("count = %d, want %d", count, len(events))
	}
}

func TestInsertEvents_EmptyIsNoop(t *testing.T) {
	s := openTestStorage(t)
	if err := s.InsertEvents(context.Background(), nil); err != nil {
		t.Fatalf("InsertEvents(nil): %v", err)
	}
}

func TestUpsertLeaderboardRKS_NeverRegresses(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.UpsertLeaderboardRKS(ctx, "user-1", 15.0, nil, 0, false, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertLeaderboardRKS(ctx, "user-1", 10.0, nil, 0, false, "2026-01-02T00:00:00Z"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	total, updatedAt, ok, err := s.GetPrevRKS(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("GetPrevRKS: %v ok=%v", err, ok)
	}
	if total != 15.0 {
		t.Fatalf("total = %v, want regression-proof 15.0", total)
	}
	if updatedAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("updated_at = %v, want timestamp of the higher score", updatedAt)
	}
}

func TestUpsertLeaderboardRKS_HiddenIsSticky(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.UpsertLeaderboardRKS(ctx, "user-2", 10.0, nil, 90, true, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if err := s.UpsertLeaderboardRKS(ctx, "user-2", 20.0, nil, 0, false, "2026-01-02T00:00:00Z"); err != nil {
		t.Fatalf("unhide attempt: %v", err)
	}

	var isHidden int
	if err := s.DB.QueryRowContext(ctx, "SELECT is_hidden FROM leaderboard_rks WHERE user_hash = ?", "user-2").Scan(&isHidden); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if isHidden != 1 {
		t.Fatal("expected is_hidden to remain sticky once set")
	}
}

func TestSetAlias_RejectsReservedAndDuplicate(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.SetAlias(ctx, "user-1", "admin", "2026-01-01T00:00:00Z"); err != ErrAliasReserved {
		t.Fatalf("err = %v, want ErrAliasReserved", err)
	}
	if err := s.SetAlias(ctx, "user-1", "Phira", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.SetAlias(ctx, "user-2", "phira", "2026-01-01T00:00:00Z"); err != ErrAliasTaken {
		t.Fatalf("err = %v, want ErrAliasTaken (case-insensitive collision)", err)
	}
}

func TestSessionRevocation_BlacklistAndLogoutGate(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	now := "2026-01-01T00:00:00Z"
	future := "2026-01-02T00:00:00Z"

	if err := s.AddTokenBlacklist(ctx, "jti-1", future, now); err != nil {
		t.Fatalf("AddTokenBlacklist: %v", err)
	}
	blacklisted, err := s.IsTokenBlacklisted(ctx, "jti-1", now)
	if err != nil || !blacklisted {
		t.Fatalf("IsTokenBlacklisted = %v, %v", blacklisted, err)
	}

	if err := s.UpsertLogoutGate(ctx, "user-1", now, future, now); err != nil {
		t.Fatalf("UpsertLogoutGate: %v", err)
	}
	bl, logoutBefore, hasLogout, err := s.GetSessionRevokeState(ctx, "jti-2", "user-1", now)
	if err != nil {
		t.Fatalf("GetSessionRevokeState: %v", err)
	}
	if bl {
		t.Fatal("jti-2 was never blacklisted")
	}
	if !hasLogout || logoutBefore != now {
		t.Fatalf("logoutBefore = %q hasLogout=%v", logoutBefore, hasLogout)
	}
}

func TestMaybeCleanupExpiredSessionRecords_Debounces(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	ran, err := s.MaybeCleanupExpiredSessionRecords(ctx, now)
	if err != nil {
		t.Fatalf("first cleanup: %v", err)
	}
	if !ran {
		t.Fatal("expected first cleanup to run")
	}

	ran, err = s.MaybeCleanupExpiredSessionRecords(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if ran {
		t.Fatal("expected second cleanup within debounce window to be skipped")
	}
}
