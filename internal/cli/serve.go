package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/helpline/escalation-service/internal/api/http"
	"github.com/helpline/escalation-service/internal/api/http/handlers"
	"github.com/helpline/escalation-service/internal/auth"
)

const shutdownGrace = 15 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic timeout sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				logger.Error("bootstrap failed", zap.Error(err))
				return err
			}
			defer rt.Close()

			app := fiber.New(fiber.Config{
				AppName:               cfg.App.Name,
				DisableStartupMessage: true,
			})
			httptransport.RegisterMiddlewares(app, logger, rt.metrics, cfg.App.RequestTimeout())
			httptransport.RegisterRoutes(app, httptransport.RouteConfig{
				Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, rt.readinessChecks()),
				HelpRequests:   handlers.NewHelpRequestsHandler(rt.lifecycle, rt.intake),
				Console:        handlers.NewConsoleHandler(rt.auth, rt.stats, rt.lifecycle, rt.history),
				AuthMiddleware: auth.NewAuthMiddleware(rt.tokens, rt.roster),
				Metrics:        rt.metrics,
			})

			rt.lifecycle.Start(ctx)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("http server listening",
					zap.String("addr", cfg.App.Addr()),
					zap.String("store", cfg.Store.Driver),
					zap.Duration("sweep_interval", cfg.Sweep.Interval()))
				return app.Listen(cfg.App.Addr())
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				var errs []error
				if err := app.ShutdownWithContext(shutdownCtx); err != nil {
					errs = append(errs, err)
				}
				if err := rt.lifecycle.Stop(shutdownCtx); err != nil {
					errs = append(errs, err)
				}
				return errors.Join(errs...)
			})

			if err := g.Wait(); err != nil {
				logger.Error("server stopped with error", zap.Error(err))
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
}
