package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/HerbHall/loginwatch/internal/config"
	"github.com/HerbHall/loginwatch/internal/event"
	"github.com/HerbHall/loginwatch/internal/eventlog"
	"github.com/HerbHall/loginwatch/internal/metrics"
	"github.com/HerbHall/loginwatch/internal/pulse"
	"github.com/HerbHall/loginwatch/internal/store"
	"github.com/HerbHall/loginwatch/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Probe every configured endpoint once and alert on status changes",
	Args:  cobra.NoArgs,
	RunE:  runMonitor,
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	// Load configuration before the logger, so log level/format can be configured.
	v, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var logFile io.WriteCloser
	if path := v.GetString("logging.file"); path != "" {
		logFile = config.NewRotatingFile(path, v.GetInt("logging.max_size_mb"), v.GetInt("logging.max_backups"))
		defer logFile.Close()
	}
	logger, err := config.NewLogger(v, logFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := checkConfig(v)
	if err != nil {
		logger.Error("invalid configuration", zap.String("component", "config"), zap.Error(err))
		return err
	}

	logger.Info("loginwatch starting",
		zap.String("version", version.Short()),
		zap.Int("endpoints", len(cfg.Endpoints)),
		zap.String("environment", cfg.Environment),
	)
	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus(logger.Named("event"))

	eventsFile, err := openAppend(v.GetString("logging.events_file"))
	if err != nil {
		return err
	}
	defer closeQuietly(eventsFile)
	statusFile, err := openAppend(v.GetString("logging.status_file"))
	if err != nil {
		return err
	}
	defer closeQuietly(statusFile)

	elog := eventlog.New(writerOrNil(eventsFile), writerOrNil(statusFile), cfg.Host, cfg.Environment)
	bus.SubscribeAll(elog.Handle)
	defer func() { _ = elog.Sync() }()

	recorder := metrics.New()
	bus.SubscribeAll(recorder.Handle)

	channels, err := pulse.BuildNotifiers(cfg)
	if err != nil {
		return err
	}
	dispatcher := pulse.NewDispatcher(channels, cfg.Alert.MaxAttempts, bus, logger.Named("dispatcher"))
	tags := pulse.AlertTags{Environment: cfg.Environment, Host: cfg.Host}
	guard := pulse.NewCrashHandler(dispatcher, tags, bus, logger.Named("guard"))

	runErr := guard.Run(ctx, func(ctx context.Context) error {
		st, err := store.Open(v.GetString("state.backend"), v.GetString("state.path"))
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer st.Close()

		runner := pulse.NewRunner(cfg, pulse.RunnerDeps{
			Prober:     pulse.NewLoginProber(cfg, pulse.NewExtractor(cfg.CSRF, logger.Named("csrf")), logger.Named("prober")),
			Reacher:    pulse.NewReachabilityProber(cfg.Reachability, cfg.VerifySSL, logger.Named("reachability")),
			Store:      st,
			Dispatcher: dispatcher,
			Bus:        bus,
			Logger:     logger.Named("runner"),
		})
		return runner.Run(ctx)
	})

	if path := v.GetString("metrics.textfile"); path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics", zap.String("path", path), zap.Error(err))
		}
	}

	return runErr
}

// openAppend opens path for appending, or returns nil when path is empty.
func openAppend(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // G302: log files are meant to be readable
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// writerOrNil avoids handing a typed nil *os.File to an io.Writer parameter.
func writerOrNil(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	return f
}

func closeQuietly(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}
