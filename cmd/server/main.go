// SPDX-License-Identifier: MIT

// Command server runs the phi-backend HTTP API: session issuance,
// leaderboard queries and mutations, and score-card rendering.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phicloud/phi-backend/internal/api"
	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/log"
	"github.com/phicloud/phi-backend/internal/render"
	"github.com/phicloud/phi-backend/internal/session"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

var (
	version = "dev"
	commit  = "none"
)

// server bundles the dependencies every HTTP handler needs.
type server struct {
	cfg      config.Config
	store    *storage.Storage
	sessions *session.Service
	assets   *render.AssetCache
	colors   *render.InverseColorCache
}

func main() {
	cfg := config.Load()
	log.Configure(log.Config{Service: "phi-backend", Version: version})
	logger := log.WithComponent("server")

	store, err := storage.Open(cfg.Stats.SQLitePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Stats.SQLitePath).Msg("failed to open stats database")
	}
	defer store.Close()

	srv := &server{
		cfg:      cfg,
		store:    store,
		sessions: session.NewService(cfg.Session, store),
		assets:   render.NewAssetCache(0),
		colors:   render.NewInverseColorCache(0),
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.WithMiddlewares(srv.router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("commit", commit).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Shutdown.TimeoutSecs)*time.Second)
	defer cancel()
	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func (s *server) router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/session", func(r chi.Router) {
		r.Post("/issue", s.handleSessionIssue)
		r.Post("/logout", s.handleSessionLogout)
		r.Post("/logout-everywhere", s.handleSessionLogoutEverywhere)
	})

	r.Route("/leaderboard", func(r chi.Router) {
		r.Get("/top", s.handleLeaderboardTop)
		r.Get("/by-rank", s.handleLeaderboardByRank)
		r.Post("/me", s.handleLeaderboardMe)
		r.Put("/alias", s.handleLeaderboardAlias)
		r.Put("/profile", s.handleLeaderboardProfile)
		r.Get("/public/{alias}", s.handleLeaderboardPublicProfile)
	})

	r.Route("/render", func(r chi.Router) {
		r.Post("/card", s.handleRenderCard)
		r.Post("/leaderboard", s.handleRenderLeaderboard)
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
