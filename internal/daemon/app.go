// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// App owns process-level signal handling and delegates server/worker
// lifecycle to Manager.
type App struct {
	logger  zerolog.Logger
	manager Manager
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager) *App {
	return &App{logger: logger, manager: manager}
}

// Run starts the manager and blocks until ctx is cancelled or the manager
// returns a fatal error.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	return a.manager.Start(ctx)
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
