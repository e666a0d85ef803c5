package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/ingest"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	configFlags
	Database    string
	Workers     int
	Prune       bool
	MetricsFile string

	// Deps allows overriding the clock and run ID generator (for testing).
	// The logger is always built from the root options.
	Deps ingest.Deps
}

func newScanCommand(opts *ScanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the timetable directories into the database",
		Long: `Walk the installation and user timetable directories, extract every
service and upsert it into the SQLite database.

Files that cannot be parsed are logged and skipped; the scan still exits 0.
A missing installation directory or an unopenable database exits 2.

Example:
  zugdienste scan --config zugdienste.yaml
  zugdienste scan --db services.db --workers 4 --prune`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, cmd)
		},
	}

	opts.configFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "extraction workers (overrides config)")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "delete rows for files no longer present")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")

	return cmd
}

func runScan(opts *ScanOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := opts.load()
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if flags.Changed("prune") {
		cfg.Prune = opts.Prune
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.MetricsFile
	}
	if err := config.Validate(cfg); err != nil {
		return formatter.Fail("invalid configuration", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := opts.Deps
	deps.Logger = logger

	sum, err := ingest.Run(ctx, cfg, deps)
	formatter.RunID = sum.RunID
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_ = outputScanSummary(formatter, sum)
			_ = formatter.Error(ErrCodeInterrupted, "scan interrupted", nil)
			return WrapExitError(ExitFailure, "scan interrupted", err)
		}
		return formatter.Fail("scan failed", err)
	}

	return outputScanSummary(formatter, sum)
}

func outputScanSummary(formatter *OutputFormatter, sum ingest.Summary) error {
	if formatter.Format == "json" {
		return formatter.Success(sum)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Scan %s (%s)\n", sum.RunID, sum.Status)
	for _, root := range sum.Roots {
		fmt.Fprintf(w, "  root:      %s\n", root)
	}
	fmt.Fprintf(w, "  database:  %s\n", sum.Database)
	fmt.Fprintf(w, "  scanned:   %d\n", sum.Scanned)
	fmt.Fprintf(w, "  ingested:  %d (%d new, %d updated)\n", sum.Ingested(), sum.Inserted, sum.Updated)
	fmt.Fprintf(w, "  unchanged: %d\n", sum.Unchanged)
	fmt.Fprintf(w, "  skipped:   %d%s\n", sum.Skipped, formatReasons(sum.Reasons))
	fmt.Fprintf(w, "  excluded:  %d\n", sum.Excluded)
	if sum.Failed > 0 {
		fmt.Fprintf(w, "  failed:    %d\n", sum.Failed)
	}
	if sum.Pruned > 0 {
		fmt.Fprintf(w, "  pruned:    %d\n", sum.Pruned)
	}
	fmt.Fprintf(w, "  duration:  %s\n", sum.Duration.Round(time.Millisecond))
	return nil
}

// formatReasons renders skip reasons as " (a: 1, b: 2)" in name order.
func formatReasons(reasons map[string]int64) string {
	if len(reasons) == 0 {
		return ""
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", k, reasons[k])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
