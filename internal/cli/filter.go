package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/bullion/internal/filter"
	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/queryir"
)

const dateLayout = "2006-01-02"

// FilterOptions holds flags for the filter command.
type FilterOptions struct {
	*RootOptions
	Category    string
	SubCategory string
	Purity      string
	EntryType   string
	ChargeType  string
	Firm        string
	PO          string
	From        string
	To          string
	MinGross    float64
	MaxGross    float64
	MinNet      float64
	MaxNet      float64
	MinFine     float64
	MaxFine     float64
	MinQuantity int64
	MaxQuantity int64
	SortField   string
	Direction   string
	Limit       int
	Watch       bool
	MetricsAddr string
}

// NewFilterCommand creates the filter command.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FilterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "List items matching a filter",
		Long: `List items in the selected scope. Every flag is an optional predicate;
set flags combine with AND. Dates are inclusive calendar days (YYYY-MM-DD).

With --watch the result set is printed again after every write to the scope
until interrupted. --metrics-addr serves Prometheus metrics while watching.

Examples:
  bullion filter --category Gold --purity 22K --sort gross_weight --direction desc
  bullion filter --from 2024-01-01 --to 2024-01-31 --min-gross 5
  bullion filter --watch --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Category, "category", "", "category name")
	f.StringVar(&opts.SubCategory, "subcategory", "", "subcategory name (requires --category)")
	f.StringVar(&opts.Purity, "purity", "", "purity grade")
	f.StringVar(&opts.EntryType, "entry-type", "", "entry type")
	f.StringVar(&opts.ChargeType, "charge-type", "", "making charge type")
	f.StringVar(&opts.Firm, "firm", "", "source firm id")
	f.StringVar(&opts.PO, "po", "", "source purchase order id")
	f.StringVar(&opts.From, "from", "", "first creation day (YYYY-MM-DD)")
	f.StringVar(&opts.To, "to", "", "last creation day (YYYY-MM-DD)")
	f.Float64Var(&opts.MinGross, "min-gross", 0, "minimum gross weight")
	f.Float64Var(&opts.MaxGross, "max-gross", 0, "maximum gross weight")
	f.Float64Var(&opts.MinNet, "min-net", 0, "minimum net weight")
	f.Float64Var(&opts.MaxNet, "max-net", 0, "maximum net weight")
	f.Float64Var(&opts.MinFine, "min-fine", 0, "minimum fine weight")
	f.Float64Var(&opts.MaxFine, "max-fine", 0, "maximum fine weight")
	f.Int64Var(&opts.MinQuantity, "min-quantity", 0, "minimum quantity")
	f.Int64Var(&opts.MaxQuantity, "max-quantity", 0, "maximum quantity")
	f.StringVar(&opts.SortField, "sort", string(queryir.SortCreatedAt), "sort field")
	f.StringVar(&opts.Direction, "direction", string(queryir.Desc), "sort direction (asc|desc)")
	f.IntVar(&opts.Limit, "limit", 0, "keep only the newest N matches (0 = all)")
	f.BoolVar(&opts.Watch, "watch", false, "print updated results after every write until interrupted")
	f.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics on this address while watching")

	return cmd
}

func runFilter(opts *FilterOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	cfg, err := opts.config(cmd.Flags())
	if err != nil {
		return err
	}
	if opts.Category != "" {
		catID, subID, err := a.resolveParents(cmd.Context(), scope, opts.Category, opts.SubCategory)
		if err != nil {
			return a.out.Fail(WrapExitError(ExitFailure, "filter rejected", err))
		}
		cfg.CategoryID = &catID
		if subID != "" {
			cfg.SubCategoryID = &subID
		}
	}
	if err := cfg.Validate(scope); err != nil {
		return a.out.Fail(WrapExitError(ExitFailure, "invalid filter", err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Watch && opts.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				opts.Logger().Error("metrics server failed", "addr", opts.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	engine := filter.New(a.store, filter.WithLogger(opts.Logger()), filter.WithMetrics(a.metrics))
	defer engine.Close()

	sub := engine.Filter(ctx, "cli", scope, cfg)
	defer sub.Cancel()

	for snap := range sub.Updates() {
		if snap.Err != nil {
			return a.out.Fail(WrapExitError(ExitCommandError, "filter failed", snap.Err))
		}
		if err := a.out.Success(snap.Items, formatItems(snap)); err != nil {
			return err
		}
		if !opts.Watch {
			return nil
		}
	}
	return nil
}

// config builds a FilterConfig from the flags the user actually set.
func (o *FilterOptions) config(flags *pflag.FlagSet) (queryir.FilterConfig, error) {
	var cfg queryir.FilterConfig

	if o.SubCategory != "" && o.Category == "" {
		return cfg, NewExitError(ExitCommandError, "--subcategory requires --category")
	}
	if o.Purity != "" {
		p := ir.Purity(o.Purity)
		cfg.Purity = &p
	}
	if o.EntryType != "" {
		e := ir.EntryType(o.EntryType)
		cfg.EntryType = &e
	}
	if o.ChargeType != "" {
		c := ir.ChargeType(o.ChargeType)
		cfg.ChargeType = &c
	}
	if o.Firm != "" {
		cfg.SourceFirmID = &o.Firm
	}
	if o.PO != "" {
		cfg.SourcePurchaseOrderID = &o.PO
	}

	var err error
	if cfg.DateFrom, err = parseDay("from", o.From); err != nil {
		return cfg, err
	}
	if cfg.DateTo, err = parseDay("to", o.To); err != nil {
		return cfg, err
	}

	cfg.GrossWeight = floatRange(flags, "min-gross", "max-gross", o.MinGross, o.MaxGross)
	cfg.NetWeight = floatRange(flags, "min-net", "max-net", o.MinNet, o.MaxNet)
	cfg.FineWeight = floatRange(flags, "min-fine", "max-fine", o.MinFine, o.MaxFine)
	if flags.Changed("min-quantity") || flags.Changed("max-quantity") {
		cfg.Quantity = &queryir.IntRange{}
		if flags.Changed("min-quantity") {
			cfg.Quantity.Min = &o.MinQuantity
		}
		if flags.Changed("max-quantity") {
			cfg.Quantity.Max = &o.MaxQuantity
		}
	}

	cfg.Sort = queryir.Sort{Field: queryir.SortField(o.SortField), Direction: queryir.Direction(o.Direction)}
	if o.Limit < 0 {
		return cfg, NewExitError(ExitCommandError, "--limit must not be negative")
	}
	cfg.Limit = o.Limit
	return cfg, nil
}

func parseDay(flag, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s: expected YYYY-MM-DD, got %q", flag, v))
	}
	return &t, nil
}

func floatRange(flags *pflag.FlagSet, minFlag, maxFlag string, lo, hi float64) *queryir.FloatRange {
	if !flags.Changed(minFlag) && !flags.Changed(maxFlag) {
		return nil
	}
	fr := &queryir.FloatRange{}
	if flags.Changed(minFlag) {
		fr.Min = &lo
	}
	if flags.Changed(maxFlag) {
		fr.Max = &hi
	}
	return fr
}

func formatItems(snap filter.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d items (update %d)", len(snap.Items), snap.Seq)
	for _, it := range snap.Items {
		fmt.Fprintf(&b, "\n  %s  %-20s %s/%s  qty %d  gross %.3f  net %.3f  fine %.3f  %s  %s",
			it.ID, it.Name, it.CategoryName, it.SubCategoryName, it.Quantity,
			it.GrossWeight, it.NetWeight, it.FineWeight, it.Purity,
			it.CreatedAt.Local().Format(dateLayout))
	}
	return b.String()
}
