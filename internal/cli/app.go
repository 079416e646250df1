package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/bullion/internal/coordinator"
	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/metrics"
	"github.com/roach88/bullion/internal/reconcile"
	"github.com/roach88/bullion/internal/store"
)

// app is the wiring shared by commands that touch the store.
type app struct {
	opts     *RootOptions
	store    *store.Store
	coord    *coordinator.Coordinator
	runner   *reconcile.Runner
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	out      *OutputFormatter
}

func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := opts.Logger()

	coord := coordinator.New(st,
		coordinator.WithMetrics(m),
		coordinator.WithLogger(logger),
	)
	runner := reconcile.NewRunner(st,
		reconcile.WithGate(coord.Gate()),
		reconcile.WithMetrics(m),
		reconcile.WithLogger(logger),
	)

	return &app{
		opts:     opts,
		store:    st,
		coord:    coord,
		runner:   runner,
		registry: reg,
		metrics:  m,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// scope returns the selected scope or a usage error.
func (a *app) scope() (ir.Scope, error) {
	scope := a.opts.Scope()
	if !scope.Valid() {
		return scope, NewExitError(ExitCommandError, "--tenant and --location are required")
	}
	return scope, nil
}

// resolveParents maps category and subcategory names to ids in scope.
func (a *app) resolveParents(ctx context.Context, scope ir.Scope, category, subCategory string) (string, string, error) {
	c, err := a.store.FindCategoryByName(ctx, scope, category)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", &coordinator.NotFoundError{Kind: "category", ID: category, Scope: scope}
	}
	if err != nil {
		return "", "", err
	}
	if subCategory == "" {
		return c.ID, "", nil
	}

	sc, err := a.store.FindSubCategoryByName(ctx, scope, c.ID, subCategory)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", &coordinator.NotFoundError{
			Kind:   "subcategory",
			ID:     subCategory,
			Scope:  scope,
			Detail: fmt.Sprintf("no subcategory %q under %q", subCategory, category),
		}
	}
	if err != nil {
		return "", "", err
	}
	return c.ID, sc.ID, nil
}
