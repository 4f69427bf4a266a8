package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/quartermaster/pkg/httputil"
	"github.com/platinummonkey/quartermaster/pkg/observability"
)

func newOpsCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "ops",
		Description: "Serve health, metrics and capability checks and watch the policy file",
		Flags:       flag.NewFlagSet("ops", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	cmd.Flags.String("stats-schedule", "@every 15s", "Cron schedule for connection pool statistics")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		schedule := cmd.Flags.Lookup("stats-schedule").Value.String()
		return env.withApp(func(ctx context.Context, app *App) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOps(ctx, app, schedule)
		})
	}
	return cmd
}

// opsHandler routes the health probes, the metrics endpoint and capability
// checks
func opsHandler(app *App) http.Handler {
	router := mux.NewRouter()
	checker := observability.NewHealthChecker(app.Conn.Primary(), app.Redis, app.Config.Observability.OTelServiceVersion)
	observability.RegisterOpsRoutes(router, checker, app.Registry)
	(&authzHandlers{checker: app.Checker}).registerRoutes(router)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(app.Logger),
		httputil.RecoveryMiddleware(app.Logger),
	)(router)
	return otelhttp.NewHandler(handler, "ops")
}

// runOps serves until ctx is done or the server fails
func runOps(ctx context.Context, app *App, statsSchedule string) error {
	scheduler := cron.New()
	if app.Metrics != nil {
		updateStats := func() { app.Metrics.UpdateDBStats(app.Conn.Primary().Stats()) }
		if _, err := scheduler.AddFunc(statsSchedule, updateStats); err != nil {
			return fmt.Errorf("invalid stats schedule %q: %w", statsSchedule, err)
		}
		updateStats()
	}

	providers, err := observability.InitOTel(ctx, app.Config.Observability.OTel(), app.Logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         app.Config.Ops.Addr(),
		Handler:      opsHandler(app),
		ReadTimeout:  app.Config.Ops.ReadTimeout,
		WriteTimeout: app.Config.Ops.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(app.Logger, server, app.Config.Ops.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, app.Logger)
	})
	shutdown.Register(func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.WithField("addr", server.Addr).Info("Ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return shutdown.Wait(gctx)
	})
	if app.Watcher != nil {
		g.Go(func() error {
			if err := app.Watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("policy watcher failed: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
