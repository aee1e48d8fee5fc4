// Package cmd contains all CLI commands for compliancectl
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/BASIL960/FinalYearProject/internal/api"
	"github.com/BASIL960/FinalYearProject/internal/config"
	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/driver"
	"github.com/BASIL960/FinalYearProject/internal/metrics"
	"github.com/BASIL960/FinalYearProject/internal/output"
	"github.com/BASIL960/FinalYearProject/internal/session"
	"github.com/BASIL960/FinalYearProject/internal/telemetry"
	"github.com/BASIL960/FinalYearProject/internal/tokenstore"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	colorMode string
	cfg       *config.Config
	logger    *slog.Logger
	version   = "dev"

	// app is rebuilt by initConfig for every invocation
	app *application
)

// flagKeys maps persistent flags onto config keys. Only flags the user set
// override the file and environment.
var flagKeys = map[string]string{
	"base-url":         "api.base_url",
	"timeout":          "api.timeout",
	"store":            "store.backend",
	"store-dir":        "store.dir",
	"profile":          "store.profile",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"metrics-textfile": "metrics.textfile",
}

// application holds everything a command needs to talk to the service
type application struct {
	store   tokenstore.Store
	client  *api.Client
	manager *session.Manager
	metrics *metrics.Metrics
	printer *output.Printer
	close   func() error

	span            trace.Span
	shutdownTracing telemetry.ShutdownFunc
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "compliancectl",
	Short: "Compliance auditing client",
	Long: `compliancectl signs in to the compliance-auditing service, submits policy
documents for audit against a regulatory framework, and browses the
resulting compliance records.

The session is kept in a token store (a local file by default) and renewed
transparently when the access token expires.

Example usage:
  compliancectl login --username auditor --password-stdin
  compliancectl audit submit policy.pdf --framework ECC --detailed
  compliancectl records list
  compliancectl records get <id>
  compliancectl logout`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	defer shutdown()
	if err == nil {
		return output.ExitSuccess
	}

	cliErr := output.FromError(err)
	if app != nil {
		app.manager.ObserveError(err)
		app.printer.FormatError(cliErr)
	} else {
		output.NewPrinter(output.PrinterOptions{ColorMode: output.ColorNever, Err: rootCmd.ErrOrStderr()}).FormatError(cliErr)
	}
	return cliErr.ExitCode
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .compliancectl.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress informational output")
	flags.StringVar(&colorMode, "color", "auto", "color output: auto, always, or never")

	flags.String("base-url", config.DefaultBaseURL, "compliance service base URL")
	flags.Duration("timeout", 0, "per-request timeout (default 30s)")
	flags.String("store", config.BackendFile, "session store backend: file, memory, redis, or kubernetes")
	flags.String("store-dir", "", "directory of the file store (default: user config dir)")
	flags.String("profile", "default", "session profile name")
	flags.String("log-level", "warn", "log level: debug, info, warn, or error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this file after each command")
}

// initConfig loads configuration and wires the client for this invocation
func initConfig(cmd *cobra.Command) error {
	shutdown()

	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}

	var err error
	cfg, err = config.Load(cfgFile, overrides)
	if err != nil {
		return &output.CLIError{
			Summary:    "invalid configuration",
			Detail:     err.Error(),
			Suggestion: "Check .compliancectl.yaml and COMPLIANCECTL_* environment variables",
			ExitCode:   output.ExitConfigError,
		}
	}

	logger = newLogger(cmd.ErrOrStderr(), cfg.Logging)

	mode, err := output.ParseColorMode(colorMode)
	if err != nil {
		return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitUsageError}
	}
	printer := output.NewPrinter(output.PrinterOptions{
		ColorMode:    mode,
		ConfigColors: cfg.Output.Colors,
		Quiet:        quiet,
		Out:          cmd.OutOrStdout(),
		Err:          cmd.ErrOrStderr(),
	})

	shutdownTracing, err := telemetry.InitProvider(cmd.Context(), telemetry.Config{
		ServiceName:    "compliancectl",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return &output.CLIError{
			Summary:  fmt.Sprintf("opening %s session store", cfg.Store.Backend),
			Detail:   err.Error(),
			ExitCode: output.ExitConfigError,
		}
	}

	m := metrics.New(nil)
	drv := driver.NewDriver(cfg.API.BaseURL, cfg.API.Timeout, "compliancectl/"+version, logger)
	manager := session.NewManager(store, logger)
	manager.Subscribe(func(user *domain.UserProfile) {
		if user == nil {
			logger.Debug("Signed out", "profile", cfg.Store.Profile)
			return
		}
		logger.Debug("Signed in", "profile", cfg.Store.Profile, "username", user.Username)
	})

	ctx, span := otel.Tracer("compliancectl").Start(cmd.Context(), cmd.CommandPath())
	cmd.SetContext(ctx)

	app = &application{
		store:           store,
		client:          api.NewClient(store, drv, m, logger),
		manager:         manager,
		metrics:         m,
		printer:         printer,
		close:           closeStore,
		span:            span,
		shutdownTracing: shutdownTracing,
	}

	logger.Debug("configuration loaded",
		"base_url", cfg.API.BaseURL,
		"store", cfg.Store.Backend,
		"profile", cfg.Store.Profile,
	)
	return nil
}

func newLogger(w io.Writer, lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelWarn
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelWarn
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func openStore(sc config.StoreConfig) (tokenstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch sc.Backend {
	case config.BackendMemory:
		return tokenstore.NewMemoryStore(), noop, nil
	case config.BackendRedis:
		s, err := tokenstore.NewRedisStoreWithURL(sc.Redis.URL, sc.Redis.KeyPrefix, sc.Profile, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendKubernetes:
		s, err := tokenstore.NewKubernetesSecretStore(sc.Kubernetes.Kubeconfig, sc.Kubernetes.Namespace, sc.Kubernetes.SecretName, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		s, err := tokenstore.NewFileStore(sc.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	}
}

// shutdown flushes metrics and releases the store of the last invocation
func shutdown() {
	if app == nil {
		return
	}
	if cfg != nil && cfg.Metrics.Textfile != "" {
		if err := app.metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	if err := app.close(); err != nil {
		logger.Warn("Failed to close session store", "error", err)
	}

	app.span.End()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.shutdownTracing(ctx); err != nil {
		logger.Warn("Failed to flush traces", "error", err)
	}
	app = nil
}
