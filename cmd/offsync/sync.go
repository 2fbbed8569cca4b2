package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	syncp "github.com/njoerd114/offsync/internal/sync"
)

var syncTimeout time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync [collection...]",
	Short: "Run one push/pull pass",
	Long: `Push pending local changes, then pull the remote state.

Without arguments every enabled collection is synchronized. A collection
that fails does not stop the others.

Example:
  offsync sync
  offsync sync tasks messages`,
	RunE: runSync,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Synchronize periodically until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

func init() {
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 2*time.Minute, "stop waiting after this long; a pass already running still finishes before exit")
	rootCmd.AddCommand(syncCmd, daemonCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	start := time.Now()
	var stats syncp.Stats
	if len(args) == 0 {
		stats, err = s.Engine.SyncAll(ctx)
	} else {
		var errs []error
		for _, name := range args {
			st, err := s.Engine.Sync(ctx, name)
			stats = stats.Add(st)
			if err != nil {
				errs = append(errs, err)
			}
		}
		err = errors.Join(errs...)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sync finished in %s\n", time.Since(start).Round(time.Millisecond))
	printStats(out, stats)
	if errors.Is(err, syncp.ErrNetworkUnavailable) {
		fmt.Fprintln(out, "Remote store unreachable; pending changes stay queued.")
	}
	return err
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	s.log.Info("daemon starting", "poll_interval", s.Config.PollInterval)
	if err := s.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync engine: %w", err)
	}
	s.log.Info("shutdown complete")
	return nil
}
