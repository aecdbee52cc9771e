package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/woragis/woragis-sub002/infrastructure/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		container, cleanup, err := di.InitializeContainer(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		logger := container.Logger

		srv := &http.Server{
			Addr:         cfg.ServerAddress,
			Handler:      container.Handler,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			logger.Info("Starting server",
				zap.String("address", cfg.ServerAddress),
				zap.String("environment", cfg.Environment),
				zap.String("storage", cfg.Storage.Backend),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		if container.Watcher != nil {
			g.Go(func() error {
				return container.Watcher.Run(gctx)
			})
		}

		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server shutdown error", zap.Error(err))
				return err
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			logger.Error("Server stopped with error", zap.Error(err))
			return err
		}
		logger.Info("Server stopped")
		return nil
	},
}
