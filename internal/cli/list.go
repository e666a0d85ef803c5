package cli

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/zugdienste/internal/ir"
	"github.com/roach88/zugdienste/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Database   string
	Route      string
	Locomotive string
	Origin     string
	Kind       string
	Limit      int
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested services",
		Long: `List services from the database, optionally filtered.

Route and locomotive filters match case-insensitive substrings.

Example:
  zugdienste list --route "Hamburg - Kassel"
  zugdienste list --locomotive "BR 412" --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Route, "route", "", "filter by route")
	cmd.Flags().StringVar(&opts.Locomotive, "locomotive", "", "filter by locomotive")
	cmd.Flags().StringVar(&opts.Origin, "origin", "", "filter by origin (installation|user)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter by kind (P|C)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "maximum rows, 0 for all")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	filter, err := opts.filter()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	dbPath := resolveDatabase(opts.Database)
	st, err := openExisting(dbPath)
	if err != nil {
		return formatter.Fail("failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	services, err := st.ListServices(cmd.Context(), filter)
	if err != nil {
		return formatter.Fail("failed to list services", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(services)
	}

	if len(services) == 0 {
		fmt.Fprintln(formatter.Writer, "No services found")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tSERVICE\tKIND\tLOCOMOTIVE\tFROM\tTO\tDEP\tDURATION\tKM")
	for _, s := range services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			s.Route, s.ServiceName, s.Kind, s.Locomotive,
			s.EntryPoint, s.EndStation, s.StartTime, s.Duration, s.DistanceKm)
	}
	return tw.Flush()
}

func (o *ListOptions) filter() (store.ListFilter, error) {
	f := store.ListFilter{
		Route:      o.Route,
		Locomotive: o.Locomotive,
		Limit:      o.Limit,
	}

	switch ir.Origin(o.Origin) {
	case "", ir.OriginInstallation, ir.OriginUser:
		f.Origin = ir.Origin(o.Origin)
	default:
		return f, fmt.Errorf("invalid origin %q: must be installation or user", o.Origin)
	}

	switch ir.ServiceKind(o.Kind) {
	case "", ir.KindPassenger, ir.KindCargo:
		f.Kind = ir.ServiceKind(o.Kind)
	default:
		return f, fmt.Errorf("invalid kind %q: must be P or C", o.Kind)
	}

	if o.Limit < 0 {
		return f, fmt.Errorf("invalid limit %d", o.Limit)
	}

	return f, nil
}
