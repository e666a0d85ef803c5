package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/zugdienste/internal/ir"
	"github.com/roach88/zugdienste/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Show row counts and the last scan",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExisting(resolveDatabase(opts.Database))
	if err != nil {
		return formatter.Fail("failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return formatter.Fail("failed to read stats", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(stats)
	}

	outputStatsText(formatter, stats)
	return nil
}

func outputStatsText(formatter *OutputFormatter, stats store.Stats) {
	w := formatter.Writer
	fmt.Fprintf(w, "Services: %d on %d route(s)\n", stats.Services, stats.Routes)
	fmt.Fprintf(w, "  installation: %d\n", stats.ByOrigin[ir.OriginInstallation])
	fmt.Fprintf(w, "  user:         %d\n", stats.ByOrigin[ir.OriginUser])
	fmt.Fprintf(w, "  passenger:    %d\n", stats.ByKind[ir.KindPassenger])
	fmt.Fprintf(w, "  cargo:        %d\n", stats.ByKind[ir.KindCargo])

	run := stats.LastRun
	if run == nil {
		fmt.Fprintln(w, "No scan recorded")
		return
	}
	fmt.Fprintf(w, "Last scan: %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(w, "  started:  %s\n", run.StartedAt.Format(time.RFC3339))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  finished: %s\n", run.FinishedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "  scanned %d, ingested %d, unchanged %d, skipped %d, excluded %d\n",
		run.Scanned, run.Ingested, run.Unchanged, run.Skipped, run.Excluded)
}
