package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"duckflow/internal/api"
	"duckflow/internal/middleware"
	"duckflow/internal/service/pipeline"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run pipelines on their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if cmd.Flags().Changed("listen") {
				a.cfg.ListenAddr = listenAddr
			}
			if err := a.withEngine(ctx, true); err != nil {
				return err
			}
			if err := a.svc.RecoverInterrupted(ctx); err != nil {
				return err
			}

			scheduler := pipeline.NewScheduler(a.svc, a.logger)
			a.svc.SetScheduleReloader(scheduler)
			if a.cfg.SchedulerEnabled {
				if err := scheduler.Start(ctx); err != nil {
					return err
				}
			}

			validator, err := api.RequestValidator()
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr: a.cfg.ListenAddr,
				Handler: api.NewRouter(api.Deps{
					Pipelines:   a.svc,
					Credentials: a.creds,
					Schedules:   scheduler.Entries,
					Metrics:     a.metrics.Handler(),
					Logger:      a.logger,
					CORSOrigins: a.cfg.CORSAllowedOrigins,
					RateLimit: middleware.RateLimitConfig{
						RequestsPerSecond: a.cfg.RateLimitRPS,
						Burst:             a.cfg.RateLimitBurst,
					},
					Validator: validator,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("HTTP API listening", "addr", srv.Addr, "scheduler", a.cfg.SchedulerEnabled)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down", "timeout", a.cfg.ShutdownTimeout)
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.ShutdownTimeout)
				defer cancel()

				if a.cfg.SchedulerEnabled {
					scheduler.Stop()
				}
				return errors.Join(srv.Shutdown(shutdownCtx), a.svc.Shutdown(shutdownCtx))
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address (overrides LISTEN_ADDR)")
	return cmd
}
