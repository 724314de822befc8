// Package cli exposes the desktop app and its headless operations as cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whisper-transcribe/internal/bootstrap"
	"whisper-transcribe/internal/config"
	"whisper-transcribe/internal/domain"
	"whisper-transcribe/internal/logger"
	"whisper-transcribe/internal/metrics"
)

const defaultPollInterval = 100 * time.Millisecond

// cliApp holds state shared by the commands of one invocation.
type cliApp struct {
	configPath  string
	envFile     string
	logLevel    string
	metricsAddr string

	store    config.Store
	settings domain.Settings
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *http.Server

	pollInterval time.Duration
	preparePATH  func() error
	runGUI       func(svc *bootstrap.Services, store config.Store) error
}

// NewRootCommand builds the command tree. Without a subcommand the desktop
// app is started.
func NewRootCommand() *cobra.Command {
	a := &cliApp{
		pollInterval: defaultPollInterval,
		preparePATH:  bootstrap.PreparePATH,
		runGUI: func(svc *bootstrap.Services, store config.Store) error {
			return bootstrap.NewApp(svc, store, nil).Run()
		},
	}
	return a.command()
}

func (a *cliApp) command() *cobra.Command {
	root := &cobra.Command{
		Use:           "whisper-transcribe",
		Short:         "Transcribe audio files locally with whisper.cpp models.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			return a.runGUI(svc, a.store)
		}),
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultSettingsPath(), "settings file (.json, .yaml or .yml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading WHISPER_TRANSCRIBE_* variables")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		a.transcribeCommand(),
		a.downloadCommand(),
		a.modelsCommand(),
		a.doctorCommand(),
	)
	return root
}

// setup loads settings, builds the logger and starts the metrics endpoint.
func (a *cliApp) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	a.store = config.NewStore(a.configPath)
	settings, err := a.store.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings, err = config.ApplyEnv(settings)
	if err != nil {
		return err
	}
	if strings.TrimSpace(a.logLevel) != "" {
		settings.LogLevel = a.logLevel
	}
	a.settings = config.Normalize(settings)

	logFile := a.settings.LogFile
	if logFile == "" && cmd == cmd.Root() {
		logFile = config.DefaultLogFile()
	}
	a.logger, err = logger.New(logger.Config{
		Level:   a.settings.LogLevel,
		File:    logFile,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	if err := a.preparePATH(); err != nil {
		a.logger.Warn("could not add local tool directory to PATH", zap.Error(err))
	}

	a.registry = prometheus.NewRegistry()
	if a.metricsAddr != "" {
		if err := a.serveMetrics(); err != nil {
			return err
		}
	}
	return nil
}

// serveMetrics binds the metrics listener before returning so address errors surface immediately.
func (a *cliApp) serveMetrics() error {
	listener, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return fmt.Errorf("listen on metrics address %s: %w", a.metricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metrics.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", listener.Addr().String()))
	return nil
}

// run wraps a command body so the metrics server and logger are released on
// every exit path.
func (a *cliApp) run(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.teardown()
		return fn(cmd, args)
	}
}

func (a *cliApp) teardown() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// services wires the object graph from the settings after command flags were applied.
func (a *cliApp) services() (*bootstrap.Services, error) {
	return bootstrap.NewServices(a.settings, a.logger, a.registry)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
