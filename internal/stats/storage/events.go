// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// EventInsert is one telemetry row awaiting a batched INSERT.
type EventInsert struct {
	TsUTC        time.Time
	Route        *string
	Feature      *string
	Action       *string
	Method       *string
	Status       *int64
	DurationMs   *int64
	UserHash     *string
	ClientIPHash *string
	Instance     *string
	ExtraJSON    *string
}

// eventCols is the fixed column count per row; SQLite's default
// SQLITE_MAX_VARIABLE_NUMBER is 999, so batches are capped at
// maxRowsPerInsert = 999/eventCols per statement.
const eventCols = 11
const sqliteMaxVars = 999
const maxRowsPerInsert = sqliteMaxVars / eventCols

// InsertEvents writes events in one transaction, chunked into multi-row
// INSERT statements that stay under SQLite's bound-parameter ceiling. A
// crash between chunks can lose the whole batch; a clean drain on quiesce
// (see ingest.Queue) is what keeps that from happening under normal
// shutdown.
func (s *Storage) InsertEvents(ctx context.Context, events []EventInsert) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(events); start += maxRowsPerInsert {
		end := start + maxRowsPerInsert
		if end > len(events) {
			end = len(events)
		}
		if err := insertEventChunk(ctx, tx, events[start:end]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertEventChunk(ctx context.Context, tx *sql.Tx, chunk []EventInsert) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO events(ts_utc, route, feature, action, method, status, duration_ms, user_hash, client_ip_hash, instance, extra_json) VALUES ")
	args := make([]any, 0, len(chunk)*eventCols)
	for i, e := range chunk {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args,
			e.TsUTC.UTC().Format(time.RFC3339Nano),
			e.Route, e.Feature, e.Action, e.Method,
			e.Status, e.DurationMs,
			e.UserHash, e.ClientIPHash, e.Instance, e.ExtraJSON,
		)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// EventRow is one raw events row as read back for archival.
type EventRow struct {
	TsUTC        string
	Route        *string
	Feature      *string
	Action       *string
	Method       *string
	Status       *int64
	DurationMs   *int64
	UserHash     *string
	ClientIPHash *string
	Instance     *string
	ExtraJSON    *string
}

// QueryEventsBetween returns events with ts_utc in [startRFC3339,
// endRFC3339], ordered ascending, for the daily archiver to drain into a
// Parquet file.
func (s *Storage) QueryEventsBetween(ctx context.Context, startRFC3339, endRFC3339 string) ([]EventRow, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT ts_utc, route, feature, action, method, status, duration_ms, user_hash, client_ip_hash, instance, extra_json
		 FROM events WHERE ts_utc BETWEEN ? AND ? ORDER BY ts_utc ASC`,
		startRFC3339, endRFC3339,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.TsUTC, &r.Route, &r.Feature, &r.Action, &r.Method, &r.Status, &r.DurationMs,
			&r.UserHash, &r.ClientIPHash, &r.Instance, &r.ExtraJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyAggRow is one (date, feature, route, method) bucket of a daily
// aggregation, computed on the fly from events rather than materialized.
type DailyAggRow struct {
	Date     string
	Feature  *string
	Route    *string
	Method   *string
	Count    int64
	ErrCount int64
}

// QueryDaily aggregates events between start and end (inclusive, RFC3339),
// optionally narrowed to one feature/route/method, grouped by day.
func (s *Storage) QueryDaily(ctx context.Context, startRFC3339, endRFC3339 string, feature, route, method *string) ([]DailyAggRow, error) {
	const q = `
		SELECT substr(ts_utc, 1, 10) AS date,
		       feature, route, method,
		       COUNT(1) AS count,
		       SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END) AS err_count
		FROM events
		WHERE ts_utc BETWEEN ? AND ?
		  AND (? IS NULL OR feature = ?)
		  AND (? IS NULL OR route = ?)
		  AND (? IS NULL OR method = ?)
		GROUP BY date, feature, route, method
		ORDER BY date ASC`

	rows, err := s.DB.QueryContext(ctx, q,
		startRFC3339, endRFC3339,
		feature, feature,
		route, route,
		method, method,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyAggRow
	for rows.Next() {
		var r DailyAggRow
		if err := rows.Scan(&r.Date, &r.Feature, &r.Route, &r.Method, &r.Count, &r.ErrCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
