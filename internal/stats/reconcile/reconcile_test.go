// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"
	"os"
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

func TestWalk_CountsFilesByPartition(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "year=2026", "month=01", "day=02")
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(p, "events-abc.parquet"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(p, "events-def.parquet"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	counts, err := Walk(dir)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if counts["2026-01-02"] != 2 {
		t.Fatalf("counts = %v, want 2 files for 2026-01-02", counts)
	}
}

func TestWalk_MissingDirIsNotAnError(t *testing.T) {
	counts, err := Walk(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("expected empty counts, got %v", counts)
	}
}

func TestRun_ReportsGapWithoutApplying(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	route := "/api/save"

	if err := store.InsertEvents(ctx, []storage.EventInsert{
		{TsUTC: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), Route: &route},
	}); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	cfg := config.ArchiveConfig{Dir: t.TempDir(), Compress: "none", Parquet: true}
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	report, err := Run(ctx, store, cfg, from, to, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Applied {
		t.Fatal("dry run must not set Applied")
	}
	missing := MissingDays(report)
	if len(missing) != 1 || missing[0] != "2026-02-01" {
		t.Fatalf("missing = %v, want [2026-02-01]", missing)
	}
}

func TestRun_Backfills(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	route := "/api/save"

	if err := store.InsertEvents(ctx, []storage.EventInsert{
		{TsUTC: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), Route: &route},
	}); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	cfg := config.ArchiveConfig{Dir: t.TempDir(), Compress: "none", Parquet: true}
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	report, err := Run(ctx, store, cfg, from, to, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Applied {
		t.Fatal("expected backfill to apply")
	}
	if len(MissingDays(report)) != 0 {
		t.Fatal("expected no missing days after backfill")
	}
}

func TestClampRange_BoundsToMaxDays(t *testing.T) {
	to := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	clampedFrom, clampedTo := ClampRange(from, to, 5)
	if clampedTo != to {
		t.Fatalf("to should be unchanged, got %v", clampedTo)
	}
	if clampedFrom != to.AddDate(0, 0, -4) {
		t.Fatalf("from = %v, want 5-day window ending at to", clampedFrom)
	}
}
