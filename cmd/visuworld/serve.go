// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/visuworld/visuworld/internal/server"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the shader HTTP API",
		Long:  "Load configuration, open the index and shader stores, register providers, and serve the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, a)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, a *app) error {
	if f := cmd.Flags().Lookup("listen"); f.Changed {
		a.v.Set("server.listen", f.Value.String())
	}

	cfg, err := a.config()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wired, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := wired.Close(); err != nil {
			slog.Warn("closing stores", "error", err)
		}
	}()

	srv, err := newServer(wired)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	count, err := wired.Index.Count(ctx)
	if err != nil {
		slog.Warn("counting indexed examples", "error", err)
	} else if count == 0 {
		slog.Warn("vector index is empty; run 'visuworld ingest' for grounded generations")
	}

	slog.Info("visuworld starting",
		"listen", cfg.Server.Listen,
		"storage", cfg.Storage.Backend,
		"examples", count,
		"standard", cfg.Models.Standard,
		"pro", cfg.Models.Pro,
	)

	return srv.Start(ctx)
}

func newServer(wired *App) (*server.Server, error) {
	cfg := wired.Config

	services, err := server.NewServices(wired.Pipeline, wired.Shaders, cfg.Shaders.PageSize, wired.Providers)
	if err != nil {
		return nil, vwerr.Wrapf(err, vwerr.CodeCLISetupFailure, "creating services")
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		Services: services,
		Metrics:  wired.Metrics.Handler(),
		Version:  version,
	})
	if err != nil {
		return nil, vwerr.Wrapf(err, vwerr.CodeCLISetupFailure, "creating server")
	}
	return srv, nil
}
