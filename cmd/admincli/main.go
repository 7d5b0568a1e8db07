// SPDX-License-Identifier: MIT

// Command admincli is the leaderboard moderation tool: list ranked users,
// scan for suspicious scores, and read/set a user's moderation status. It
// talks to the stats sqlite file directly rather than proxying through an
// admin HTTP API, so it works standalone whether or not cmd/server is
// running — see DESIGN.md's C12 entry for why.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/leaderboard"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// Flags must come before positional arguments on every subcommand: the
// standard flag package stops parsing at the first non-flag token, so
// "ban --reason spam user123" works but "ban user123 --reason spam" doesn't.
func usage() {
	fmt.Fprintln(os.Stderr, `usage: admincli [--db path] [--json] <command> [args]

commands:
  users [--page N] [--page-size N] [--status S] [--alias SUBSTR]
  suspicious [--min-score F] [--scan-pages N] [--page-size N] [--limit N] [--status S] [--alias SUBSTR]
  status <user_hash>
  set-status [--reason TEXT] [--actor NAME] <user_hash> <status>
  ban [--reason TEXT] [--actor NAME] <user_hash>
  unban [--reason TEXT] [--actor NAME] <user_hash>`)
}

func run(args []string) int {
	top := flag.NewFlagSet("admincli", flag.ContinueOnError)
	dbPath := top.String("db", "", "path to the stats sqlite database (default: APP_STATS_SQLITE_PATH)")
	asJSON := top.Bool("json", false, "emit JSON instead of a plain-text table")
	if err := top.Parse(args); err != nil {
		return 2
	}
	rest := top.Args()
	if len(rest) == 0 {
		usage()
		return 2
	}

	if *dbPath == "" {
		*dbPath = config.Load().Stats.SQLitePath
	}
	store, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database %s: %v\n", *dbPath, err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "users":
		return runUsers(ctx, store, cmdArgs, *asJSON)
	case "suspicious":
		return runSuspicious(ctx, store, cmdArgs, *asJSON)
	case "status":
		return runStatus(ctx, store, cmdArgs, *asJSON)
	case "set-status":
		return runSetStatus(ctx, store, cmdArgs, *asJSON, "")
	case "ban":
		return runSetStatus(ctx, store, cmdArgs, *asJSON, "banned")
	case "unban":
		return runSetStatus(ctx, store, cmdArgs, *asJSON, "approved")
	default:
		usage()
		return 2
	}
}

func emit(asJSON bool, v any, plain func()) {
	if asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	plain()
}

func runUsers(ctx context.Context, store *storage.Storage, args []string, asJSON bool) int {
	fs := flag.NewFlagSet("users", flag.ContinueOnError)
	page := fs.Int64("page", 1, "page number (1-based)")
	pageSize := fs.Int64("page-size", 50, "page size")
	status := fs.String("status", "", "filter by moderation status")
	alias := fs.String("alias", "", "filter by alias substring")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	result, err := leaderboard.ListUsers(ctx, store, *page, *pageSize, optionalString(*status), optionalString(*alias))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	emit(asJSON, result, func() {
		fmt.Printf("page %d/%d (total %d)\n", result.Page, (result.Total+result.PageSize-1)/result.PageSize, result.Total)
		for _, u := range result.Items {
			alias := "-"
			if u.Alias != nil {
				alias = *u.Alias
			}
			fmt.Printf("%-40s %-20s score=%-9.4f suspicion=%-6.3f hidden=%-5v status=%s\n",
				u.UserHash, alias, u.Score, u.Suspicion, u.IsHidden, u.Status)
		}
	})
	return 0
}

func runSuspicious(ctx context.Context, store *storage.Storage, args []string, asJSON bool) int {
	fs := flag.NewFlagSet("suspicious", flag.ContinueOnError)
	minScore := fs.Float64("min-score", 0.5, "minimum suspicion score to include")
	scanPages := fs.Int64("scan-pages", 10, "how many pages of ListUsers to scan")
	pageSize := fs.Int64("page-size", 100, "page size per scan")
	limit := fs.Int("limit", 50, "maximum results to return")
	status := fs.String("status", "", "filter by moderation status")
	alias := fs.String("alias", "", "filter by alias substring")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	items, scanned, err := leaderboard.ScanSuspicious(ctx, store, *minScore, *scanPages, *pageSize, *limit,
		optionalString(*status), optionalString(*alias))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	emit(asJSON, map[string]any{"items": items, "scanned_pages": scanned}, func() {
		fmt.Printf("scanned %d page(s), %d result(s) above %.3f\n", scanned, len(items), *minScore)
		for _, u := range items {
			alias := "-"
			if u.Alias != nil {
				alias = *u.Alias
			}
			fmt.Printf("%-40s %-20s score=%-9.4f suspicion=%-6.3f status=%s\n", u.UserHash, alias, u.Score, u.Suspicion, u.Status)
		}
	})
	return 0
}

func runStatus(ctx context.Context, store *storage.Storage, args []string, asJSON bool) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		usage()
		return 2
	}
	status, err := leaderboard.GetUserStatus(ctx, store, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	emit(asJSON, status, func() {
		fmt.Printf("%s: %s\n", status.UserHash, status.Status)
		if status.Reason != nil {
			fmt.Printf("  reason: %s\n", *status.Reason)
		}
		if status.UpdatedBy != nil {
			fmt.Printf("  by %s at %s\n", *status.UpdatedBy, *status.UpdatedAt)
		}
	})
	return 0
}

func runSetStatus(ctx context.Context, store *storage.Storage, args []string, asJSON bool, forcedStatus string) int {
	fs := flag.NewFlagSet("set-status", flag.ContinueOnError)
	reason := fs.String("reason", "", "moderation reason, recorded in the audit trail")
	actor := fs.String("actor", "admincli", "who performed this action, recorded in the audit trail")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var userHash, status string
	if forcedStatus != "" {
		if fs.NArg() != 1 {
			usage()
			return 2
		}
		userHash, status = fs.Arg(0), forcedStatus
	} else {
		if fs.NArg() != 2 {
			usage()
			return 2
		}
		userHash, status = fs.Arg(0), fs.Arg(1)
	}

	result, err := leaderboard.SetUserStatus(ctx, store, userHash, status, optionalString(*reason), *actor)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	emit(asJSON, result, func() {
		fmt.Printf("%s -> %s\n", result.UserHash, result.Status)
	})
	return 0
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
