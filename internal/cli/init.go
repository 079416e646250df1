package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database",
		Long: `Create the SQLite database at --db, or bring an existing one up to the
current schema version. Safe to run repeatedly.

Example:
  bullion init --db ./shop.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var version int
			if err := a.store.DB().QueryRowContext(cmd.Context(), "PRAGMA user_version").Scan(&version); err != nil {
				return WrapExitError(ExitCommandError, "failed to read schema version", err)
			}
			opts.Logger().Info("database ready", "path", opts.Database, "schema_version", version)

			return a.out.Success(
				map[string]any{"database": opts.Database, "schema_version": version},
				fmt.Sprintf("Initialized %s (schema v%d)", opts.Database, version),
			)
		},
	}
}
