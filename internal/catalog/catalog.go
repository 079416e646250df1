// Package catalog loads the category/subcategory tree from CUE and seeds it
// into a store.
//
// A catalog file names categories by label and lists their subcategories:
//
//	category: Gold: subcategories: ["Ring", "Chain"]
//	category: Silver: subcategories: ["Anklet"]
package catalog

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bullion/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Catalog is the declared hierarchy, in declaration order.
type Catalog struct {
	Categories []CategorySpec
}

// CategorySpec is one category and its subcategory names.
type CategorySpec struct {
	Name          string
	SubCategories []string
}

// SubCategoryCount returns the number of declared subcategories.
func (c *Catalog) SubCategoryCount() int {
	n := 0
	for _, cat := range c.Categories {
		n += len(cat.SubCategories)
	}
	return n
}

// CompileError is a catalog definition error with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile checks v against the catalog schema and extracts the hierarchy.
// Names are normalized; two names that normalize to the same key in the same
// parent are an error.
func Compile(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	v = v.Unify(schema.LookupPath(cue.ParsePath("#Catalog")))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	catsVal := v.LookupPath(cue.ParsePath("category"))
	if !catsVal.Exists() {
		return nil, &CompileError{Field: "category", Message: "at least one category is required", Pos: v.Pos()}
	}

	iter, err := catsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cat := &Catalog{}
	seen := make(map[string]bool)
	for iter.Next() {
		name := ir.NormalizeName(iter.Selector().Unquoted())
		if name == "" {
			return nil, &CompileError{Field: "category", Message: "category name is empty", Pos: iter.Value().Pos()}
		}
		if seen[ir.NameKey(name)] {
			return nil, &CompileError{Field: "category", Message: fmt.Sprintf("duplicate category %q", name), Pos: iter.Value().Pos()}
		}
		seen[ir.NameKey(name)] = true

		subs, err := parseSubCategories(name, iter.Value())
		if err != nil {
			return nil, err
		}
		cat.Categories = append(cat.Categories, CategorySpec{Name: name, SubCategories: subs})
	}

	if len(cat.Categories) == 0 {
		return nil, &CompileError{Field: "category", Message: "at least one category is required", Pos: catsVal.Pos()}
	}
	return cat, nil
}

func parseSubCategories(category string, v cue.Value) ([]string, error) {
	list, err := v.LookupPath(cue.ParsePath("subcategories")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var subs []string
	seen := make(map[string]bool)
	for list.Next() {
		raw, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		name := ir.NormalizeName(raw)
		if seen[ir.NameKey(name)] {
			return nil, &CompileError{
				Field:   "subcategories",
				Message: fmt.Sprintf("duplicate subcategory %q under %q", name, category),
				Pos:     list.Value().Pos(),
			}
		}
		seen[ir.NameKey(name)] = true
		subs = append(subs, name)
	}
	return subs, nil
}

// CompileString compiles catalog source held in memory.
func CompileString(src string) (*Catalog, error) {
	return Compile(cuecontext.New().CompileString(src, cue.Filename("catalog.cue")))
}

// formatCUEError keeps the first error's position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
