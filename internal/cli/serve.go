package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/issuelog/internal/api/http"
	"github.com/spec-kit/issuelog/internal/api/http/handlers"
	"github.com/spec-kit/issuelog/internal/auth"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run, snapshot, health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			// background runs are cancelled on shutdown, not when the triggering request ends
			runsCtx, cancelRuns := context.WithCancel(context.Background())
			defer cancelRuns()

			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

			server := httptransport.NewApp(cfg.App.Name)
			httptransport.RegisterMiddlewares(server, logger, a.metrics, cfg.App.RequestTimeout())
			httptransport.RegisterRoutes(server, httptransport.RouteConfig{
				Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
					handlers.Dependency{Name: "postgres", Pinger: a.pg},
					handlers.Dependency{Name: "redis", Pinger: a.redis},
				),
				Runs:           handlers.NewRunsHandler(a.replay, runsCtx),
				Snapshots:      handlers.NewSnapshotsHandler(a.replay),
				Metrics:        a.metrics,
				AuthMiddleware: auth.NewAuthMiddleware(tokens),
			})

			listenErr := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
				listenErr <- server.Listen(cfg.App.Addr())
			}()

			select {
			case err := <-listenErr:
				cancelRuns()
				a.replay.Wait()
				return err
			case <-ctx.Done():
				logger.Info("shutting down", zap.Error(context.Cause(ctx)))
			}

			shutdownErr := server.ShutdownWithTimeout(shutdownTimeout)
			cancelRuns()
			a.replay.Wait()
			if err := <-listenErr; err != nil && shutdownErr == nil {
				shutdownErr = err
			}
			if errors.Is(shutdownErr, context.DeadlineExceeded) {
				logger.Warn("http shutdown timed out")
				return nil
			}
			return shutdownErr
		},
	}
}
