package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/scan"
)

// ConfigValidation is the result of config validate.
type ConfigValidation struct {
	Valid    bool          `json:"valid"`
	Config   config.Config `json:"config"`
	Roots    []scan.Root   `json:"roots"`
	Database string        `json:"database"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	return cmd
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and show the resolved roots",
		Long: `Load the configuration file, .env file and ZUGDIENSTE_* variables,
validate the result and resolve the timetable roots without scanning.

Exits 2 when the configuration is invalid or the installation
directory does not exist.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(rootOpts, &flags, cmd)
		},
	}

	flags.register(cmd)
	return cmd
}

func runConfigValidate(opts *RootOptions, flags *configFlags, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	// Warnings about the user root go to stderr only in verbose mode.
	logw := io.Discard
	if opts.Verbose {
		logw = cmd.ErrOrStderr()
	}
	logger := newLogger(opts, logw)

	cfg, err := flags.load()
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}
	formatter.VerboseLog("Loaded configuration from %q", flags.ConfigPath)

	roots, err := scan.Resolve(cfg, logger)
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}

	result := ConfigValidation{
		Valid:    true,
		Config:   cfg,
		Roots:    roots.All(),
		Database: cfg.Database,
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✓ Configuration valid")
	for _, root := range result.Roots {
		fmt.Fprintf(w, "  %-12s %s\n", root.Origin+":", root.Path)
	}
	if roots.User == nil {
		fmt.Fprintln(w, "  user:        (not available)")
	}
	fmt.Fprintf(w, "  database:    %s\n", cfg.Database)
	fmt.Fprintf(w, "  workers:     %d\n", cfg.Workers)
	return nil
}

