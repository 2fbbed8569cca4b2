// offsync keeps a local replica of messages, tasks, documents and team data
// in sync with a remote store, and keeps working while offline.
//
// Usage:
//
//	offsync init                    # interactive first-run wizard
//	offsync sync [collection...]    # one push/pull pass, then exit
//	offsync daemon                  # sync periodically until interrupted
//	offsync status                  # pending changes per collection
//	offsync tasks add|edit|done|rm|list
//	offsync devserver               # in-memory remote store for testing
//	offsync version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"

	"github.com/njoerd114/offsync/internal/app"
	"github.com/njoerd114/offsync/internal/config"
	"github.com/njoerd114/offsync/internal/telemetry"
)

var (
	cfgPath string
	verbose bool
	offline bool
)

var rootCmd = &cobra.Command{
	Use:   "offsync",
	Short: "Offline-first sync for messages, tasks, documents and teams",
	Long: `offsync keeps a local SQLite replica of several collections eventually
consistent with a remote store. Changes are written locally first and pushed
when the network allows; remote changes are pulled and merged with
last-write-wins.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultCfg, _ := config.DefaultPath()
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "never contact the remote store; changes stay queued")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the stderr text logger and makes it the default.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// session is what every data command needs: the wired app plus cleanup.
type session struct {
	*app.App
	log   *slog.Logger
	close func()
}

// openSession loads the config, starts telemetry when configured and opens
// the app. The caller must call close.
func openSession() (*session, error) {
	logger := newLogger()

	cfg, err := config.Load(afero.NewOsFs(), cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w\n\nRun 'offsync init' to create one", cfgPath, err)
	}
	logger.Debug("config loaded",
		"remote_url", cfg.RemoteURL,
		"poll_interval", cfg.PollInterval,
		"collections", len(cfg.EnabledCollections()),
	)

	shutdownTel := func(context.Context) error { return nil }
	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdown, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			shutdownTel = shutdown
			logger = slog.New(telemetry.NewSlogHandler(logger.Handler(), global.GetLoggerProvider()))
			slog.SetDefault(logger)
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
		}
	}

	var opts []app.Option
	if offline {
		opts = append(opts, app.WithOffline())
	}
	a, err := app.New(cfg, logger, opts...)
	if err != nil {
		_ = shutdownTel(context.Background())
		return nil, err
	}

	return &session{
		App: a,
		log: logger,
		close: func() {
			if err := a.Close(); err != nil {
				logger.Error("closing app", "error", err)
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTel(flushCtx); err != nil {
				logger.Error("telemetry shutdown error", "error", err)
			}
		},
	}, nil
}
