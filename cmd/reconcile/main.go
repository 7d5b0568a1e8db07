// SPDX-License-Identifier: MIT

// Command reconcile compares the Parquet archive tree against the stats
// database and reports (or, with --apply, back-fills) days whose archive is
// missing or incomplete. It defaults to a dry run so an operator can review
// the gap report before committing to a write.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/log"
	"github.com/phicloud/phi-backend/internal/stats/reconcile"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	dbPath := fs.String("db", "", "path to the stats sqlite database (default: APP_STATS_SQLITE_PATH)")
	archiveDir := fs.String("archive-dir", "", "archive directory to scan (default: APP_STATS_ARCHIVE_DIR)")
	fromStr := fs.String("from", "", "start date, YYYY-MM-DD (default: 7 days before --to)")
	toStr := fs.String("to", time.Now().UTC().Format("2006-01-02"), "end date, YYYY-MM-DD")
	maxDays := fs.Int("max-days", 31, "clamp the [from,to] range to at most this many days")
	apply := fs.Bool("apply", false, "back-fill missing days instead of only reporting them")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.Configure(log.Config{Service: "reconcile"})

	cfg := config.Load()
	if *dbPath == "" {
		*dbPath = cfg.Stats.SQLitePath
	}
	if *archiveDir == "" {
		*archiveDir = cfg.Stats.Archive.Dir
	}
	cfg.Stats.Archive.Dir = *archiveDir

	to, err := reconcile.ParseDay(*toStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	var from time.Time
	if *fromStr != "" {
		from, err = reconcile.ParseDay(*fromStr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	} else {
		from = to.AddDate(0, 0, -7)
	}
	from, to = reconcile.ClampRange(from, to, *maxDays)

	store, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database %s: %v\n", *dbPath, err)
		return 1
	}
	defer store.Close()

	report, err := reconcile.Run(context.Background(), store, cfg.Stats.Archive, from, to, *apply)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	for _, d := range report.Days {
		status := "ok"
		switch {
		case d.Err != nil:
			status = "error: " + d.Err.Error()
		case d.BackfilledFile != "":
			status = "backfilled"
		case d.DBCount > 0 && d.ArchiveFiles == 0:
			status = "missing"
		}
		fmt.Printf("%s  db=%-6d archive=%-3d  %s\n", d.Date, d.DBCount, d.ArchiveFiles, status)
	}

	missing := reconcile.MissingDays(report)
	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "%d day(s) still missing an archive: %v\n", len(missing), missing)
		if !*apply {
			fmt.Fprintln(os.Stderr, "re-run with --apply to back-fill")
		}
		return 1
	}
	return 0
}
