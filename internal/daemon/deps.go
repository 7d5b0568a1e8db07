// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServerConfig carries the HTTP listener tuning the manager needs; it is
// derived from config.Config at the composition root rather than imported
// directly, keeping this package free of a config dependency.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// Worker is a long-running background subsystem owned by the daemon for its
// entire lifetime: the stats ingest drain loop, the daily archiver scheduler,
// the session revocation sweep. Run blocks until ctx is cancelled and should
// return nil on a clean stop.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Deps contains the dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon.
	Logger zerolog.Logger

	// APIHandler is the HTTP handler for the main API server.
	APIHandler http.Handler

	// MetricsHandler is the HTTP handler for Prometheus metrics. Nil disables
	// the metrics server.
	MetricsHandler http.Handler

	// MetricsAddr is the address the metrics server listens on. Empty
	// disables the metrics server even if MetricsHandler is set.
	MetricsAddr string

	// Workers are background subsystems started alongside the HTTP servers
	// and stopped as part of graceful shutdown.
	Workers []Worker
}

// Validate checks that the dependencies are sufficient to start the daemon.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
