package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bullion/internal/coordinator"
	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/store"
)

type restoreFile struct {
	Items []ir.Item `yaml:"items"`
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file.yaml>",
		Short: "Write item rows from a backup, then recalc",
		Long: `Write items with their original ids and parent ids directly, replacing
rows with the same id, then rebuild every rollup in the scope. Items whose
parents are missing are kept and reported as anomalies by the recalc.

Example file:
  items:
    - id: 0190c7a2-...
      category_id: 0190c7a1-...
      subcategory_id: 0190c7a1-...
      name: Band
      quantity: 1
      gross_weight: 5.5
      net_weight: 5.5
      fine_weight: 5.038
      purity: 22K
      charge_type: per_gram
      entry_type: manual
      created_at: 2024-01-15T10:00:00Z`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readRestoreFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read restore file", err)
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

			now := time.Now().UTC()
			var fields []ir.FieldError
			for i := range items {
				it := &items[i]
				it.Scope = scope
				if it.CreatedAt.IsZero() {
					it.CreatedAt = now
				}
				if it.ID == "" {
					fields = append(fields, ir.FieldError{Field: fmt.Sprintf("items[%d].id", i), Message: "is required"})
				}
				for _, fe := range it.Validate() {
					fe.Field = fmt.Sprintf("items[%d].%s", i, fe.Field)
					fields = append(fields, fe)
				}
			}
			if len(fields) > 0 {
				return a.out.Fail(WrapExitError(ExitFailure, "restore rejected",
					&coordinator.ValidationError{Op: "restore", Fields: fields}))
			}

			ctx := cmd.Context()
			if err := a.store.RestoreItems(ctx, items); err != nil {
				if errors.Is(err, store.ErrForeignScope) {
					return a.out.Fail(WrapExitError(ExitFailure, "restore rejected", err))
				}
				return a.out.Fail(WrapExitError(ExitCommandError, "restore failed", err))
			}
			rep, err := a.runner.RecalcAll(ctx, scope)
			if err != nil {
				return a.out.Fail(WrapExitError(ExitNeedsRecalc, "items restored but recalc failed", err))
			}

			var text strings.Builder
			fmt.Fprintf(&text, "Restored %d items into %s; recalculated %d subcategories, %d categories",
				len(items), scope, rep.SubCategories, rep.Categories)
			for _, an := range rep.Anomalies {
				fmt.Fprintf(&text, "\n  anomaly %s: %s (ref %s)", an.Kind, an.ID, an.Ref)
			}
			return a.out.Success(map[string]any{"restored": len(items), "recalc": rep}, text.String())
		},
	}
}

func readRestoreFile(path string) ([]ir.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f restoreFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Items, nil
}
