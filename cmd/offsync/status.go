package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	syncp "github.com/njoerd114/offsync/internal/sync"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changes per collection and whether the remote is reachable",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	statuses, err := s.Engine.Status(ctx)
	if err != nil {
		return err
	}

	counts, err := s.RecordCounts(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if s.Gate.IsAvailable(ctx) {
		fmt.Fprintf(out, "Remote %s: %s\n\n", s.Config.RemoteURL, green("online"))
	} else {
		fmt.Fprintf(out, "Remote %s: %s\n\n", s.Config.RemoteURL, red("offline"))
	}
	printStatuses(out, statuses, counts)
	return nil
}

func printStatuses(out io.Writer, statuses []syncp.CollectionStatus, counts map[string]int) {
	total := 0
	for _, st := range statuses {
		total += st.Pending
		records := fmt.Sprintf("%6d records", counts[st.Name])
		if st.Pending == 0 {
			fmt.Fprintf(out, "  %-18s %s  %s\n", st.Name, records, faint("up to date"))
			continue
		}
		fmt.Fprintf(out, "  %-18s %s  %s\n", st.Name, records, yellow(fmt.Sprintf("%d pending", st.Pending)))
	}
	if total == 0 {
		fmt.Fprintf(out, "\nNothing to push.\n")
		return
	}
	fmt.Fprintf(out, "\n%d change(s) waiting to be pushed.\n", total)
}

func printStats(out io.Writer, st syncp.Stats) {
	if st.Empty() {
		fmt.Fprintf(out, "  %s\n", faint("nothing changed"))
		return
	}
	fmt.Fprintf(out, "  pushed %d, pulled %d new, merged %d, removed %d\n",
		st.Pushed, st.Inserted, st.Merged, st.Removed)
	if st.Conflicts > 0 {
		fmt.Fprintf(out, "  %s\n", yellow(fmt.Sprintf("%d local edit(s) dropped: deleted remotely", st.Conflicts)))
	}
	if st.Failed > 0 {
		fmt.Fprintf(out, "  %s\n", red(fmt.Sprintf("%d record(s) failed and stay pending", st.Failed)))
	}
	if st.Skipped > 0 {
		fmt.Fprintf(out, "  %d record(s) skipped\n", st.Skipped)
	}
}
