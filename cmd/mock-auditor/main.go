// Package main runs the in-process fake of the compliance-auditing service
// as a standalone server, for trying compliancectl without the real backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/time/rate"

	"github.com/BASIL960/FinalYearProject/internal/fakeauditor"
	"github.com/BASIL960/FinalYearProject/internal/telemetry"
)

type options struct {
	addr          string
	accessTTL     time.Duration
	rotateRefresh bool
	refreshDelay  time.Duration
	rateLimit     float64
	seedUser      string
	seedPassword  string
	tracing       bool
	otlpEndpoint  string
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:           "mock-auditor",
		Short:         "Serve a fake compliance-auditing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := root.Flags()
	f.StringVar(&opts.addr, "addr", ":8000", "listen address")
	f.DurationVar(&opts.accessTTL, "access-ttl", 5*time.Minute, "lifetime of issued access tokens")
	f.BoolVar(&opts.rotateRefresh, "rotate-refresh", false, "issue a new refresh token on every refresh")
	f.DurationVar(&opts.refreshDelay, "refresh-delay", 0, "artificial latency of the refresh endpoint")
	f.Float64Var(&opts.rateLimit, "rate-limit", 20, "requests per second allowed per client IP (0 disables)")
	f.StringVar(&opts.seedUser, "seed-user", "", "create this user at startup")
	f.StringVar(&opts.seedPassword, "seed-password", "password123", "password of --seed-user")
	f.BoolVar(&opts.tracing, "tracing", false, "export server spans over OTLP")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "http://localhost:4318", "OTLP HTTP endpoint")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mock-auditor: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	shutdownTracing, err := telemetry.InitProvider(ctx, telemetry.Config{
		ServiceName:  "mock-auditor",
		OTLPEndpoint: opts.otlpEndpoint,
		Enabled:      opts.tracing,
		SampleRatio:  1,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracing", "error", err)
		}
	}()

	fake := fakeauditor.New(logger)
	fake.SetAccessTTL(opts.accessTTL)
	fake.SetRotateRefresh(opts.rotateRefresh)
	fake.SetRefreshDelay(opts.refreshDelay)
	if opts.seedUser != "" {
		if _, _, err := fake.SeedUser(opts.seedUser, opts.seedPassword); err != nil {
			return fmt.Errorf("seeding user: %w", err)
		}
		logger.Info("seeded user", "username", opts.seedUser)
	}

	e := newServer(fake, opts, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting mock-auditor", "address", opts.addr, "access_ttl", opts.accessTTL)
		if err := e.Start(opts.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited properly")
	return nil
}

func newServer(fake http.Handler, opts options, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(otelecho.Middleware("mock-auditor"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.InfoContext(c.Request().Context(), "request completed",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if opts.rateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(opts.rateLimit))))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.Any("/*", echo.WrapHandler(fake))
	return e
}
