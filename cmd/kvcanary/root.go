package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kvcanary/internal/config"
	"kvcanary/internal/metrics"
	"kvcanary/internal/monitor"
	"kvcanary/internal/probe"
	"kvcanary/internal/server"
	"kvcanary/internal/storage"
)

const (
	flagURL         = "url"
	flagDir         = "dir"
	flagMetricFile  = "metric-file"
	flagInterval    = "interval"
	flagMaxFailures = "max-failures"
	flagVerbose     = "verbose"
	flagMetricsPort = "metrics-port"
	flagStream      = "stream"
	flagTimeout     = "timeout"
	flagConfig      = "config"
)

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd, _ := newCommand(stdout, stderr)
	return cmd
}

func newCommand(stdout, stderr io.Writer) (*cobra.Command, *viper.Viper) {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "kvcanary",
		Short:         "Canary: exercise an LSMTree server and emit liveness metrics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.String(flagURL, "", "LSMTree server URL (e.g. http://localhost:8000). Required, or set "+config.URLEnv+".")
	flags.String(flagDir, "", "Directory for metrics file (default: current dir)")
	flags.String(flagMetricFile, "", "Write metrics JSON here (default: <dir>/canary.json)")
	flags.Float64(flagInterval, 10, "Seconds between probes")
	flags.Int(flagMaxFailures, 0, "Exit after N consecutive failures (0 = never)")
	flags.BoolP(flagVerbose, "v", false, "Log each probe step and request/response details")
	flags.Int(flagMetricsPort, 0, "Expose Prometheus metrics at /metrics on this port (0=disabled)")
	flags.Bool(flagStream, false, "Also serve a live snapshot websocket at /stream on the metrics port")
	flags.Float64(flagTimeout, 30, "Timeout in seconds for each probe request")
	flags.StringP(flagConfig, "c", "", "Optional YAML config file")

	_ = v.BindPFlags(flags)
	_ = v.BindEnv(flagURL, config.URLEnv)
	return cmd, v
}

// resolveConfig layers flags and environment over the YAML file and defaults.
func resolveConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v.GetString(flagConfig))
	if err != nil {
		return config.Config{}, err
	}
	if v.IsSet(flagURL) {
		cfg.URL = v.GetString(flagURL)
	}
	if v.IsSet(flagDir) {
		cfg.DataDirectory = v.GetString(flagDir)
	}
	if v.IsSet(flagMetricFile) {
		cfg.MetricFile = v.GetString(flagMetricFile)
	}
	if v.IsSet(flagInterval) {
		cfg.IntervalSeconds = v.GetFloat64(flagInterval)
	}
	if v.IsSet(flagMaxFailures) {
		cfg.MaxFailures = v.GetInt(flagMaxFailures)
	}
	if v.IsSet(flagVerbose) {
		cfg.Verbose = v.GetBool(flagVerbose)
	}
	if v.IsSet(flagMetricsPort) {
		cfg.MetricsPort = v.GetInt(flagMetricsPort)
	}
	if v.IsSet(flagStream) {
		cfg.Stream = v.GetBool(flagStream)
	}
	if v.IsSet(flagTimeout) {
		cfg.TimeoutSeconds = v.GetFloat64(flagTimeout)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("run", uuid.NewString())
}

func run(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, cfg.Verbose)

	path, err := cfg.MetricsFilePath()
	if err != nil {
		return err
	}
	sink, err := storage.NewMetricsFile(path, logger)
	if err != nil {
		return err
	}

	state := metrics.NewState()
	if addr := cfg.MetricsAddr(); addr != "" {
		srv := server.New(addr, state, server.WithStream(cfg.Stream), server.WithLogger(logger))
		if _, err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", "error", err)
			}
		}()
		fmt.Fprintf(stderr, "Prometheus metrics at http://127.0.0.1:%d%s\n", cfg.MetricsPort, server.MetricsPath)
	}

	exec := probe.NewExecutor(cfg.URL, probe.WithTimeout(cfg.Timeout()), probe.WithLogger(logger))
	mon := monitor.New(exec, state,
		monitor.WithInterval(cfg.Interval()),
		monitor.WithMaxFailures(cfg.MaxFailures),
		monitor.WithSink(sink),
		monitor.WithOutput(stdout),
		monitor.WithLogger(logger),
	)

	err = mon.Run(ctx)
	if errors.Is(err, monitor.ErrTooManyFailures) {
		return fmt.Errorf("exiting after %d consecutive failures", state.Snapshot().ConsecutiveFailures)
	}
	return err
}
