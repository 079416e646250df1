package filter

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/queryir"
)

// SortItems orders items in place by s, falling back to creation date
// descending for an unknown field. Ties always break on id ascending, so the
// order is total and repeatable.
//
// Category and subcategory names use Unicode collation, so "Ánklet" sorts
// next to "Anklet" rather than after "Zircon".
func SortItems(items []ir.Item, s queryir.Sort) {
	s = s.Normalize()
	cmpField := comparator(s.Field)

	slices.SortStableFunc(items, func(a, b ir.Item) int {
		c := cmpField(a, b)
		if s.Direction == queryir.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func comparator(f queryir.SortField) func(a, b ir.Item) int {
	switch f {
	case queryir.SortID:
		return func(a, b ir.Item) int { return strings.Compare(a.ID, b.ID) }
	case queryir.SortGrossWeight:
		return func(a, b ir.Item) int { return cmp.Compare(a.GrossWeight, b.GrossWeight) }
	case queryir.SortNetWeight:
		return func(a, b ir.Item) int { return cmp.Compare(a.NetWeight, b.NetWeight) }
	case queryir.SortFineWeight:
		return func(a, b ir.Item) int { return cmp.Compare(a.FineWeight, b.FineWeight) }
	case queryir.SortQuantity:
		return func(a, b ir.Item) int { return cmp.Compare(a.Quantity, b.Quantity) }
	case queryir.SortCategoryName:
		col := collate.New(language.Und, collate.IgnoreCase)
		return func(a, b ir.Item) int { return col.CompareString(a.CategoryName, b.CategoryName) }
	case queryir.SortSubCategoryName:
		col := collate.New(language.Und, collate.IgnoreCase)
		return func(a, b ir.Item) int { return col.CompareString(a.SubCategoryName, b.SubCategoryName) }
	case queryir.SortPurity:
		return func(a, b ir.Item) int { return strings.Compare(string(a.Purity), string(b.Purity)) }
	case queryir.SortEntryType:
		return func(a, b ir.Item) int { return strings.Compare(string(a.EntryType), string(b.EntryType)) }
	default:
		return func(a, b ir.Item) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}
}
