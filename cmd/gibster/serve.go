package main

import (
	"context"
	"errors"
	"time"

	"gibster/internal/api"
	"gibster/internal/history"
	"gibster/internal/logging"
	"gibster/internal/metrics"
	"gibster/internal/orchestrator"
	"gibster/internal/web"

	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync state feed and run scheduled syncs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.Web.Addr = addr
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default web.addr)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	logger := logging.Component(a.logger, "serve")

	if a.cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	hub := web.NewHub(logger)
	hub.Subscribe(a.bus)

	server := web.NewServer(ctx, a.cfg.Web.Addr, a.orch, a.history, hub, a.cfg.Sync.HistoryLimit, logger)

	scheduler := orchestrator.NewScheduler(a.cfg.Schedule.Cron, a.orch, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	// a job started elsewhere is picked up on startup
	if resumed, err := a.orch.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("Could not check for a running sync")
	} else if resumed {
		logger.Info().Msg("Following a sync already in progress")
	}

	go func() {
		err := a.history.Run(ctx, a.cfg.Sync.HistoryRefresh, a.cfg.Sync.HistoryLimit)
		switch {
		case errors.Is(err, api.ErrAuthRequired):
			logger.Warn().Msg("History refresh stopped: session expired")
		case errors.Is(err, history.ErrRefreshGaveUp):
			logger.Error().Err(err).Msg("History refresh stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("state feed shutdown failed")
	}
	if _, err := a.orch.Wait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("sync did not stop in time")
	}
	logger.Info().Msg("state feed stopped")
	return nil
}
