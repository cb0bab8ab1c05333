package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/retention"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/storage"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/writer"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/categorizer"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/cli"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/proxy"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/server"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/telemetry/health"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/telemetry/logging"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/telemetry/metrics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/telemetry/tracing"
)

// tracerShutdownTimeout bounds the final span flush.
const tracerShutdownTimeout = 5 * time.Second

var runFlags struct {
	listenAddress    string
	upstreamURL      string
	analyticsBackend string
	logLevel         string
	dryRun           bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the proxy server",
	Long: `Start the proxy server with the specified configuration.

The server listens on the configured address, forwards every request to the
Ollama daemon and records each interaction to the analytics backend.

Examples:
  # Start with defaults
  ollama-proxy run

  # Start with custom config
  ollama-proxy run --config /etc/ollama-proxy/config.yaml

  # Point at a daemon on another host and store analytics in SQLite
  ollama-proxy run --ollama-host http://gpu-box:11434 --analytics-backend sqlite

  # Validate config without starting server
  ollama-proxy run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.upstreamURL, "ollama-host", "", "override upstream Ollama URL")
	runCmd.Flags().StringVar(&runFlags.analyticsBackend, "analytics-backend", "", "override analytics backend (jsonl, sqlite, loki, memory)")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.upstreamURL != "" {
		cfg.Upstream.URL = runFlags.upstreamURL
	}
	if runFlags.analyticsBackend != "" {
		cfg.Analytics.Backend = runFlags.analyticsBackend
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		RedactPII: cfg.Telemetry.Logging.RedactPII,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}
	logger.SetDefault()

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	printBanner(out, cfg)

	// Deferred cleanups run in reverse: scheduler, writer, tracer. The
	// server has already drained by the time they run.
	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	cat := categorizer.New(
		categorizer.WithCeiling(cfg.Categorizer.Ceiling),
		categorizer.WithOverflowLabel(cfg.Categorizer.OverflowLabel),
	)
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	backend, err := storage.New(&cfg.Analytics)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open analytics backend: %w", err))
	}
	analyticsWriter := writer.New(backend, &writer.Config{
		QueueSize:    cfg.Analytics.QueueSize,
		WriteTimeout: cfg.Analytics.WriteTimeout,
	}, writer.WithObserver(collector))
	defer func() {
		if err := analyticsWriter.Close(); err != nil {
			slog.Error("failed to close analytics writer", "error", err)
		}
	}()
	fmt.Fprintf(out, "✓ Analytics backend: %s (%s)\n", backend.Name(), cfg.Analytics.DataDir)

	pruner := retention.NewPruner(analyticsWriter, &retention.Config{
		RetentionDays: cfg.Analytics.RetentionDays,
		Schedule:      cfg.Analytics.CleanupSchedule,
	})
	if err := pruner.Start(ctx); err != nil {
		slog.Warn("failed to start retention scheduler", "error", err)
	} else {
		defer pruner.Stop()
		if next := pruner.NextPruning(); next != nil {
			slog.Debug("analytics retention scheduler started", "next_pruning", next)
		}
	}

	p, err := proxy.New(cfg,
		proxy.WithCategorizer(cat),
		proxy.WithMetrics(collector),
		proxy.WithRecorder(analyticsWriter),
		proxy.WithTracer(tracer),
	)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	upstream := health.NewUpstream(cfg.Upstream.URL, cfg.Upstream.HealthTimeout)
	checker := health.New(cfg.Upstream.HealthTimeout)
	checker.RegisterCheck("upstream", upstream.Check)
	checker.RegisterCheck("analytics", analyticsWriter.Check)

	srv, err := server.NewServer(cfg, server.Deps{
		Proxy:      p,
		Analytics:  analyticsWriter,
		Categories: cat,
		Metrics:    collector.Handler(),
		Health:     checker,
		Upstream:   upstream,
		Version:    health.VersionHandler(Version, GitCommit, BuildDate),
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if configFileExists() {
		watchConfig(ctx, logger, pruner)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Proxying %s -> %s\n", cfg.Proxy.ListenAddress, cfg.Upstream.URL)
	fmt.Fprintf(out, "✓ Dashboard: http://%s/analytics\n", cfg.Proxy.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Proxy.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// watchConfig reloads the configuration file on change. The log level and
// retention horizon are applied to the running process; other settings need
// a restart.
func watchConfig(ctx context.Context, logger *logging.Logger, pruner *retention.Pruner) {
	watcher, err := config.NewWatcher(cfgFile, func(cfg *config.Config) {
		pruner.SetRetentionDays(cfg.Analytics.RetentionDays)
		if err := logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
			slog.Warn("ignoring invalid log level from reloaded config", "error", err)
			return
		}
		slog.Info("log level updated", "level", cfg.Telemetry.Logging.Level)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "error", err)
		return
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()
}

func printBanner(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Ollama Proxy v%s\n", Version)
	if configFileExists() {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	} else {
		fmt.Fprintln(out, "No configuration file found, using defaults and environment")
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("categorizer configured",
		"ceiling", cfg.Categorizer.Ceiling,
		"overflow_label", cfg.Categorizer.OverflowLabel,
	)
	if cfg.Telemetry.Tracing.Enabled {
		slog.Debug("tracing enabled", "endpoint", cfg.Telemetry.Tracing.Endpoint)
	}
}
