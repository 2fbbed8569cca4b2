package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/njoerd114/offsync/internal/config"
	"github.com/njoerd114/offsync/internal/devserver"
)

var (
	devAddr  string
	devToken string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory remote store for local testing",
	Long: `Serve the remote sync protocol from memory. Data is lost on exit.

Example:
  offsync devserver --addr :8080 --token dev`,
	Args: cobra.NoArgs,
	RunE: runDevserver,
}

func init() {
	devserverCmd.Flags().StringVar(&devAddr, "addr", ":8080", "listen address")
	devserverCmd.Flags().StringVar(&devToken, "token", os.Getenv(config.TokenEnv), "bearer token clients must send")
	rootCmd.AddCommand(devserverCmd)
}

func runDevserver(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	if devToken == "" {
		return errors.New("--token is required (or set OFFSYNC_TOKEN)")
	}

	srv := &http.Server{
		Addr:              devAddr,
		Handler:           devserver.New(devToken, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("devserver listening", "addr", devAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("devserver: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("devserver shutdown: %w", err)
	}
	logger.Info("devserver stopped")
	return nil
}
