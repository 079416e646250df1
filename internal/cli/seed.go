package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bullion/internal/catalog"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog>",
		Short: "Create categories and subcategories from a CUE catalog",
		Long: `Load a CUE catalog (a .cue file or a directory) and create every category
and subcategory missing from the selected scope. Existing rows are matched by
name, so seeding is idempotent.

Example catalog:
  category: Gold: subcategories: ["Ring", "Chain"]

Example:
  bullion seed --tenant acme --location store-1 ./catalog.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load catalog", err)
			}

			a, err := openApp(opts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			scope, err := a.scope()
			if err != nil {
				return err
			}

			seeder := catalog.NewSeeder(a.store, catalog.WithLogger(opts.Logger()))
			rep, err := seeder.Seed(cmd.Context(), scope, cat)
			if err != nil {
				return WrapExitError(ExitCommandError, "seed failed", err)
			}

			return a.out.Success(rep, fmt.Sprintf(
				"Seeded %s: %d categories created (%d existing), %d subcategories created (%d existing)",
				scope, rep.CategoriesCreated, rep.CategoriesExisting,
				rep.SubCategoriesCreated, rep.SubCategoriesExisting,
			))
		},
	}
}
