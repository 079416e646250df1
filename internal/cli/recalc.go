package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/reconcile"
)

// RecalcOptions holds flags for the recalc command.
type RecalcOptions struct {
	*RootOptions
	Locations []string
}

// NewRecalcCommand creates the recalc command.
func NewRecalcCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecalcOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recompute cached rollups from items",
		Long: `Recompute every subcategory and category total from the items table and
overwrite the cached values. Items whose parents are missing or mismatched
are reported as anomalies.

Use --locations to reconcile several locations of the same tenant at once;
each location runs concurrently under its own exclusive lock.

Example:
  bullion recalc --tenant acme --locations store-1,store-2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecalc(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Locations, "locations", nil, "locations to reconcile (default: --location)")
	return cmd
}

func runRecalc(opts *RecalcOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	scopes := []ir.Scope{opts.Scope()}
	if len(opts.Locations) > 0 {
		scopes = scopes[:0]
		for _, loc := range opts.Locations {
			scopes = append(scopes, ir.Scope{TenantID: opts.Tenant, LocationID: strings.TrimSpace(loc)})
		}
	}
	for _, s := range scopes {
		if !s.Valid() {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid scope %q", s.String()))
		}
	}

	reports := make([]*reconcile.Report, len(scopes))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, scope := range scopes {
		g.Go(func() error {
			rep, err := a.runner.RecalcAll(ctx, scope)
			if err != nil {
				return fmt.Errorf("recalc %s: %w", scope, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return a.out.Fail(WrapExitError(ExitCommandError, "recalc failed", err))
	}

	var b strings.Builder
	for i, rep := range reports {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Recalculated %s: %d items, %d subcategories, %d categories",
			rep.Scope, rep.Items, rep.SubCategories, rep.Categories)
		for _, d := range rep.Drift {
			fmt.Fprintf(&b, "\n  drift %s %s (%s): cached %d/%.3f/%.3f -> %d/%.3f/%.3f",
				d.Level, d.ID, d.Name,
				d.Cached.Quantity, d.Cached.GrossWeight, d.Cached.FineWeight,
				d.Computed.Quantity, d.Computed.GrossWeight, d.Computed.FineWeight)
		}
		for _, an := range rep.Anomalies {
			fmt.Fprintf(&b, "\n  anomaly %s: %s (ref %s)", an.Kind, an.ID, an.Ref)
		}
	}
	return a.out.Success(reports, b.String())
}
