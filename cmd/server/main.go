// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/engine"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/supervisor"
	"github.com/tomtom215/marquee/internal/supervisor/services"
)

const (
	cacheSweepInterval = time.Minute
	badgerGCInterval   = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("auth_mode", cfg.Auth.Mode).
		Str("storage", cfg.Storage.Driver).
		Str("activity_storage", cfg.Storage.ActivityDriver).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting Marquee")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to start engine")
	}

	if err := run(ctx, cfg, eng); err != nil {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := eng.Close(closeCtx); err != nil {
		logging.Error().Err(err).Msg("Error closing engine resources")
	}

	logging.Info().Msg("Marquee stopped")
}

// run builds the supervisor tree and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, eng *engine.Engine) error {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	tree.AddDataService(eng.Queue())
	tree.AddDataService(services.NewTickerService("presence-refresher", cfg.Presence.RefreshInterval, eng.RefreshPresence))
	tree.AddDataService(services.NewTickerService("cache-sweeper", cacheSweepInterval, eng.SweepCaches))
	if eng.HasPersistentCache() {
		tree.AddDataService(services.NewTickerService("badger-gc", badgerGCInterval, eng.CollectGarbage))
	}

	tree.AddMessagingService(eng.Relay())

	handler := api.NewHandler(eng, eng.Hub())
	router := api.NewRouter(cfg, handler)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	tree.AddAPIService(eng.Hub())
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	err = tree.Serve(ctx)

	if unstopped, rerr := tree.UnstoppedServiceReport(); rerr == nil {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
