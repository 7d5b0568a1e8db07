// SPDX-License-Identifier: MIT

// Package archive drains the stats database's hot event window into
// partitioned Parquet files once a day, so the SQLite file doesn't grow
// without bound while still keeping the raw events available for offline
// analysis.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/log"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

// eventRow is the Parquet schema: one row per archived event. ts_utc_millis
// is a Unix-millisecond timestamp rather than a native Parquet timestamp
// logical type, keeping the schema simple for downstream consumers that
// just want a sortable integer.
type eventRow struct {
	TsUTCMillis  int64   `parquet:"ts_utc_millis"`
	Route        *string `parquet:"route,optional"`
	Feature      *string `parquet:"feature,optional"`
	Action       *string `parquet:"action,optional"`
	Method       *string `parquet:"method,optional"`
	Status       *int64  `parquet:"status,optional"`
	DurationMs   *int64  `parquet:"duration_ms,optional"`
	UserHash     *string `parquet:"user_hash,optional"`
	ClientIPHash *string `parquet:"client_ip_hash,optional"`
	Instance     *string `parquet:"instance,optional"`
	ExtraJSON    *string `parquet:"extra_json,optional"`
}

// Worker runs the daily archival loop as a daemon.Worker.
type Worker struct {
	store  *storage.Storage
	cfg    config.ArchiveConfig
	tz     *time.Location
	hour   int
	minute int
}

// New builds the archiver. dailyAggregateTime is "HH:MM" local to tz;
// an unparseable value falls back to 03:00, matching the upstream default.
func New(store *storage.Storage, cfg config.ArchiveConfig, tz *time.Location, dailyAggregateTime string) *Worker {
	hh, mm := parseClock(dailyAggregateTime)
	return &Worker{store: store, cfg: cfg, tz: tz, hour: hh, minute: mm}
}

func parseClock(s string) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 3, 0
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 3, 0
	}
	if hh < 0 || hh > 23 {
		hh = 3
	}
	if mm < 0 || mm > 59 {
		mm = 0
	}
	return hh, mm
}

// Name identifies this worker to the daemon manager.
func (w *Worker) Name() string { return "stats-archiver" }

// Run sleeps until the next daily trigger, archives the prior day, and
// repeats until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger := log.L().With().Str("worker", w.Name()).Logger()

	for {
		now := time.Now().In(w.tz)
		next := nextOccurrence(now, w.hour, w.minute)
		logger.Info().Time("next_run", next).Msg("archiver scheduled")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		yday := time.Now().In(w.tz).AddDate(0, 0, -1)
		if err := ArchiveOneDay(ctx, w.store, w.cfg, yday); err != nil {
			logger.Warn().Err(err).Time("day", yday).Msg("daily archive failed")
		}
	}
}

func nextOccurrence(now time.Time, hh, mm int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	if candidate.After(now) {
		return candidate
	}
	return candidate.AddDate(0, 0, 1)
}

// ArchiveOneDay writes all events whose ts_utc falls on day (UTC calendar
// date) into one Parquet file under
// base/year=YYYY/month=MM/day=DD/events-<uuid>.parquet. A day with no
// events is skipped without creating a file.
func ArchiveOneDay(ctx context.Context, store *storage.Storage, cfg config.ArchiveConfig, day time.Time) error {
	if !cfg.Parquet {
		return nil
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, time.UTC)

	rows, err := store.QueryEventsBetween(ctx, start.Format("2006-01-02"), end.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("archive query: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	out := make([]eventRow, len(rows))
	for i, r := range rows {
		ms := int64(0)
		if ts, err := time.Parse(time.RFC3339Nano, r.TsUTC); err == nil {
			ms = ts.UnixMilli()
		}
		out[i] = eventRow{
			TsUTCMillis: ms, Route: r.Route, Feature: r.Feature, Action: r.Action, Method: r.Method,
			Status: r.Status, DurationMs: r.DurationMs, UserHash: r.UserHash,
			ClientIPHash: r.ClientIPHash, Instance: r.Instance, ExtraJSON: r.ExtraJSON,
		}
	}

	dir := partitionDir(cfg.Dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive mkdir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("events-%s.parquet", uuid.NewString()))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive create: %w", err)
	}
	defer f.Close()

	writer := parquet.NewGenericWriter[eventRow](f, parquet.Compression(compressionCodec(cfg.Compress)))
	if _, err := writer.Write(out); err != nil {
		return fmt.Errorf("archive write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("archive close: %w", err)
	}

	log.L().Info().Str("path", path).Int("rows", len(out)).Msg("stats archive written")
	return nil
}

func compressionCodec(name string) parquet.Compression {
	switch strings.ToLower(name) {
	case "snappy":
		return &parquet.Snappy
	case "zstd":
		return &parquet.Zstd
	default:
		return &parquet.Uncompressed
	}
}

func partitionDir(base string, day time.Time) string {
	return filepath.Join(base,
		fmt.Sprintf("year=%04d", day.Year()),
		fmt.Sprintf("month=%02d", day.Month()),
		fmt.Sprintf("day=%02d", day.Day()),
	)
}
