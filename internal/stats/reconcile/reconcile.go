// SPDX-License-Identifier: MIT

// Package reconcile compares the Parquet archive tree against the stats
// database and reports (or back-fills) days whose archive is missing or
// incomplete.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/stats/archive"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

var partitionRe = regexp.MustCompile(`year=(\d{4})[/\\]month=(\d{2})[/\\]day=(\d{2})`)

// DayStatus is one day's archive-vs-database comparison result.
type DayStatus struct {
	Date           string // YYYY-MM-DD
	DBCount        int64
	ArchiveFiles   int
	BackfilledFile string // set if Backfill wrote a new file for this day
	Err            error
}

// Report is the outcome of a full reconciliation pass.
type Report struct {
	Days    []DayStatus
	Applied bool
}

// Walk walks the archive directory and counts Parquet files per day,
// identified from the year=/month=/day= partition path segments.
func Walk(archiveDir string) (map[string]int, error) {
	counts := make(map[string]int)
	err := filepath.WalkDir(archiveDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".parquet" {
			return nil
		}
		m := partitionRe.FindStringSubmatch(filepath.ToSlash(path))
		if m == nil {
			return nil
		}
		counts[fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile walk: %w", err)
	}
	return counts, nil
}

// dbDayCounts returns the event count for each day (YYYY-MM-DD, as
// substr(ts_utc,1,10)) present in the database within [from, to].
func dbDayCounts(ctx context.Context, store *storage.Storage, from, to time.Time) (map[string]int64, error) {
	rows, err := store.DB.QueryContext(ctx,
		`SELECT substr(ts_utc,1,10) AS day, COUNT(*) AS c FROM events WHERE substr(ts_utc,1,10) BETWEEN ? AND ? GROUP BY day`,
		from.Format("2006-01-02"), to.Format("2006-01-02"),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var day string
		var c int64
		if err := rows.Scan(&day, &c); err != nil {
			return nil, err
		}
		out[day] = c
	}
	return out, rows.Err()
}

// Run compares the archive tree against the database for every day in
// [from, to] inclusive. When apply is true, any day with database rows but
// zero archive files is back-filled via archive.ArchiveOneDay; dry-run
// (apply=false) only reports the gap. Partial failures (one day's
// back-fill erroring) do not abort the remaining days.
func Run(ctx context.Context, store *storage.Storage, cfg config.ArchiveConfig, from, to time.Time, apply bool) (Report, error) {
	fileCounts, err := Walk(cfg.Dir)
	if err != nil {
		return Report{}, err
	}
	dbCounts, err := dbDayCounts(ctx, store, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile db query: %w", err)
	}

	var report Report
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		status := DayStatus{
			Date:         key,
			DBCount:      dbCounts[key],
			ArchiveFiles: fileCounts[key],
		}
		if status.DBCount > 0 && status.ArchiveFiles == 0 {
			if apply {
				if err := archive.ArchiveOneDay(ctx, store, cfg, d); err != nil {
					status.Err = err
				} else {
					status.BackfilledFile = key
					report.Applied = true
				}
			}
		}
		report.Days = append(report.Days, status)
	}

	sort.Slice(report.Days, func(i, j int) bool { return report.Days[i].Date < report.Days[j].Date })
	return report, nil
}

// MissingDays filters a Report down to days that still lack an archive
// file after the run (useful for a CLI's non-zero-exit-on-gap behavior).
func MissingDays(r Report) []string {
	var out []string
	for _, d := range r.Days {
		if d.DBCount > 0 && d.ArchiveFiles == 0 && d.BackfilledFile == "" {
			out = append(out, d.Date)
		}
	}
	return out
}

// ParseDay parses a "YYYY-MM-DD" command-line date argument.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// clampMaxDays bounds a [from,to] range to at most maxDays days, trimming
// from the start (oldest days dropped first) so "--max-days" protects
// against an accidental full-history scan.
func clampMaxDays(from, to time.Time, maxDays int) time.Time {
	if maxDays <= 0 {
		return from
	}
	earliest := to.AddDate(0, 0, -(maxDays - 1))
	if earliest.After(from) {
		return earliest
	}
	return from
}

// ClampRange applies clampMaxDays and returns the effective [from, to].
func ClampRange(from, to time.Time, maxDays int) (time.Time, time.Time) {
	return clampMaxDays(from, to, maxDays), to
}
