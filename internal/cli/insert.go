package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bullion/internal/ir"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	Category    string
	SubCategory string
	Item        ir.Item
	Purity      string
	ChargeType  string
	EntryType   string
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Add an item and update its rollups",
		Long: `Insert one item under a category and subcategory, named as in the catalog.

Net weight defaults to gross weight and fine weight defaults to net weight
times the purity fraction.

Exit codes:
  0 - Inserted
  1 - Rejected (invalid item or unknown parents); nothing was written
  3 - Item written but a rollup update failed; run recalc

Example:
  bullion insert --category Gold --subcategory Ring --name "Band" \
    --gross 5.5 --purity 22K --charge-type per_gram --charge 450`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Category, "category", "", "category name (required)")
	f.StringVar(&opts.SubCategory, "subcategory", "", "subcategory name (required)")
	f.StringVar(&opts.Item.Name, "name", "", "item name (required)")
	f.Int64Var(&opts.Item.Quantity, "quantity", 1, "number of pieces")
	f.Float64Var(&opts.Item.GrossWeight, "gross", 0, "gross weight in grams")
	f.Float64Var(&opts.Item.NetWeight, "net", 0, "net weight in grams (default: gross)")
	f.Float64Var(&opts.Item.FineWeight, "fine", 0, "fine weight in grams (default: net x purity)")
	f.StringVar(&opts.Purity, "purity", string(ir.Purity22K), "purity grade")
	f.StringVar(&opts.ChargeType, "charge-type", string(ir.ChargePerGram), "making charge type (per_gram|percentage|per_piece)")
	f.Float64Var(&opts.Item.ChargeAmount, "charge", 0, "making charge amount")
	f.Float64Var(&opts.Item.TaxRate, "tax", 0, "tax rate percent")
	f.StringVar(&opts.Item.HUID, "huid", "", "hallmark unique id")
	f.StringVar(&opts.EntryType, "entry-type", string(ir.EntryManual), "entry type (manual|import|purchase_order)")
	f.StringVar(&opts.Item.SourceFirmID, "firm", "", "source firm id")
	f.StringVar(&opts.Item.SourcePurchaseOrderID, "po", "", "source purchase order id")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("subcategory")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runInsert(opts *InsertOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	item := opts.Item
	item.Purity = ir.Purity(opts.Purity)
	item.ChargeType = ir.ChargeType(opts.ChargeType)
	item.EntryType = ir.EntryType(opts.EntryType)
	if !cmd.Flags().Changed("net") {
		item.NetWeight = item.GrossWeight
	}
	if !cmd.Flags().Changed("fine") {
		item.FineWeight = item.Purity.FineFromNet(item.NetWeight)
	}

	ctx := cmd.Context()
	item.CategoryID, item.SubCategoryID, err = a.resolveParents(ctx, scope, opts.Category, opts.SubCategory)
	if err != nil {
		return a.out.Fail(mutationError("insert", err))
	}

	stored, id, err := a.coord.InsertItem(ctx, scope, item)
	if err != nil {
		return a.out.Fail(mutationError("insert", err))
	}

	return a.out.Success(stored, fmt.Sprintf("Inserted %s (%s / %s, %.3fg gross, %.3fg fine)",
		id, stored.CategoryName, stored.SubCategoryName, stored.GrossWeight, stored.FineWeight))
}
