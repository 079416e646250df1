package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/bullion/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	Tenant   string
	Location string

	// LogWriter receives structured logs. Defaults to the command's stderr.
	LogWriter io.Writer

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Scope returns the (tenant, location) selected by the global flags.
func (o *RootOptions) Scope() ir.Scope {
	return ir.Scope{TenantID: o.Tenant, LocationID: o.Location}
}

// Logger returns the logger configured for this invocation.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

// NewRootCommand creates the root command for the bullion CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bullion",
		Short: "bullion - jewellery inventory rollups",
		Long: `Track jewellery stock by category and subcategory with exact weight rollups.

Every item counts toward its subcategory and category totals. Inserts and
deletes adjust both totals in place; recalc rebuilds them from the items.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			w := opts.LogWriter
			if w == nil {
				w = cmd.ErrOrStderr()
			}
			opts.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "bullion.db", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", "default", "tenant id")
	cmd.PersistentFlags().StringVar(&opts.Location, "location", "main", "location id")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRecalcCommand(opts))
	cmd.AddCommand(NewFilterCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}
