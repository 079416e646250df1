package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bullion/internal/coordinator"
	"github.com/roach88/bullion/internal/ir"
)

// importFile is the YAML document accepted by import. Parents are named the
// way the catalog names them.
type importFile struct {
	Items []importRow `yaml:"items"`
}

type importRow struct {
	Category    string `yaml:"category"`
	SubCategory string `yaml:"subcategory"`
	ir.Item     `yaml:",inline"`
}

// ImportFailure describes one rejected or partially applied row.
type ImportFailure struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Code  string `json:"code"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error"`
}

// ImportReport summarizes an import run. Inserted holds the new item ids.
type ImportReport struct {
	Inserted []string        `json:"inserted"`
	Failed   []ImportFailure `json:"failed"`
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Insert items in bulk from a YAML file",
		Long: `Insert every item listed in a YAML file, one at a time through the same
path as insert. A rejected row does not stop the rest. Entry type defaults to
"import"; net and fine weights default as for insert.

Example file:
  items:
    - category: Gold
      subcategory: Ring
      name: Band
      quantity: 1
      gross_weight: 5.5
      purity: 22K
      charge_type: per_gram

Exit codes:
  0 - All rows inserted
  1 - One or more rows rejected
  3 - A row was written but a rollup update failed; run recalc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readImportFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read import file", err)
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

			ctx := cmd.Context()
			rep := ImportReport{Inserted: []string{}, Failed: []ImportFailure{}}
			needsRecalc := false
			for i, row := range rows {
				item := row.Item
				if item.EntryType == "" {
					item.EntryType = ir.EntryImport
				}
				if item.NetWeight == 0 {
					item.NetWeight = item.GrossWeight
				}
				if item.FineWeight == 0 {
					item.FineWeight = item.Purity.FineFromNet(item.NetWeight)
				}

				var id string
				item.CategoryID, item.SubCategoryID, err = a.resolveParents(ctx, scope, row.Category, row.SubCategory)
				if err == nil {
					_, id, err = a.coord.InsertItem(ctx, scope, item)
				}
				if err != nil {
					f := ImportFailure{Index: i, Name: row.Name, Code: ErrorCode(err), Error: err.Error()}
					var wf *coordinator.WriteFailure
					if errors.As(err, &wf) {
						f.Stage = string(wf.Stage)
						needsRecalc = needsRecalc || wf.NeedsRecalc()
					}
					rep.Failed = append(rep.Failed, f)
					a.out.VerboseLog("row %d (%s): %v", i, row.Name, err)
					continue
				}
				rep.Inserted = append(rep.Inserted, id)
			}

			opts.Logger().Info("import finished", "scope", scope.String(),
				"inserted", len(rep.Inserted), "failed", len(rep.Failed))

			var text strings.Builder
			fmt.Fprintf(&text, "Imported %d of %d items into %s", len(rep.Inserted), len(rows), scope)
			for _, f := range rep.Failed {
				fmt.Fprintf(&text, "\n  row %d (%s): [%s] %s", f.Index, f.Name, f.Code, f.Error)
			}
			if err := a.out.Success(rep, text.String()); err != nil {
				return err
			}

			switch {
			case needsRecalc:
				return NewExitError(ExitNeedsRecalc, "import partially applied; run recalc")
			case len(rep.Failed) > 0:
				return NewExitError(ExitFailure, fmt.Sprintf("%d rows rejected", len(rep.Failed)))
			}
			return nil
		},
	}
}

func readImportFile(path string) ([]importRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f importFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Items, nil
}
