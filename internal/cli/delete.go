package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Remove an item and subtract it from its rollups",
		Long: `Delete one item by id. Deleting an item that does not exist is not an
error and changes nothing.

Exit codes:
  0 - Deleted, or nothing to delete
  3 - Item removed but a rollup update failed; run recalc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			scope, err := a.scope()
			if err != nil {
				return err
			}

			n, err := a.coord.DeleteItem(cmd.Context(), scope, args[0], "", "")
			if err != nil {
				return a.out.Fail(mutationError("delete", err))
			}

			text := fmt.Sprintf("Deleted %s", args[0])
			if n == 0 {
				text = fmt.Sprintf("No item %s in %s; nothing deleted", args[0], scope)
			}
			return a.out.Success(map[string]any{"id": args[0], "deleted": n}, text)
		},
	}
}
