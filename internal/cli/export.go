package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/zugdienste/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database   string
	Output     string
	Route      string
	Locomotive string
}

// ExportResult is the JSON payload of a finished export.
type ExportResult struct {
	Output string `json:"output"`
	Rows   int    `json:"rows"`
}

// csvHeader lists the exported columns in order.
var csvHeader = []string{
	"source_path", "origin", "country", "route", "timetable", "service_name",
	"kind", "category", "train_number", "locomotive", "length_m", "mass_t",
	"line", "timetable_group", "start_time", "end_time", "duration",
	"entry_point", "end_station", "start_kind", "end_kind", "stop_count",
	"stops", "has_events", "turnarounds", "distance_km", "avg_speed_kmh",
	"content_hash", "scanned_at", "scan_id",
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export services to a CSV file",
		Long: `Write all services, or those matching the filters, to a CSV file.

The file is replaced atomically: readers see either the previous export
or the complete new one.

Example:
  zugdienste export --out services.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "output CSV file (required)")
	cmd.Flags().StringVar(&opts.Route, "route", "", "filter by route")
	cmd.Flags().StringVar(&opts.Locomotive, "locomotive", "", "filter by locomotive")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
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

	services, err := st.ListServices(cmd.Context(), store.ListFilter{
		Route:      opts.Route,
		Locomotive: opts.Locomotive,
	})
	if err != nil {
		return formatter.Fail("failed to read services", err)
	}

	if err := writeCSVFile(opts.Output, services); err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "export failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ExportResult{Output: opts.Output, Rows: len(services)})
	}
	fmt.Fprintf(formatter.Writer, "Exported %d service(s) to %s\n", len(services), opts.Output)
	return nil
}

// writeCSVFile writes services to path through a pending file that only
// replaces path once everything is written.
func writeCSVFile(path string, services []store.Service) error {
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Cleanup()

	if err := writeCSV(f, services); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := f.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func writeCSV(w io.Writer, services []store.Service) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, s := range services {
		r := s.ServiceRecord
		row := []string{
			r.SourcePath,
			string(r.Origin),
			r.Country,
			r.Route,
			r.Timetable,
			r.ServiceName,
			string(r.Kind),
			r.Category,
			r.TrainNumber,
			r.Locomotive,
			strconv.FormatInt(r.LengthM, 10),
			strconv.FormatInt(r.MassT, 10),
			r.Line,
			r.TimetableGroup,
			r.StartTime,
			r.EndTime,
			r.Duration,
			r.EntryPoint,
			r.EndStation,
			string(r.StartKind),
			string(r.EndKind),
			strconv.FormatInt(r.StopCount, 10),
			r.Stops,
			strconv.FormatBool(r.HasEvents),
			strconv.FormatInt(r.Turnarounds, 10),
			strconv.FormatInt(r.DistanceKm, 10),
			strconv.FormatInt(r.AvgSpeedKmh, 10),
			r.ContentHash,
			s.ScannedAt.UTC().Format(time.RFC3339),
			s.ScanID,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
