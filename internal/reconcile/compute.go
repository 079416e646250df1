package reconcile

import (
	"sort"

	"github.com/roach88/bullion/internal/ir"
)

// AnomalyKind classifies a row that could not be reconciled normally.
type AnomalyKind string

const (
	// AnomalyOrphanItem is an item whose subcategory does not exist.
	// The item is excluded from every sum.
	AnomalyOrphanItem AnomalyKind = "orphan_item"

	// AnomalyOrphanSubCategory is a subcategory whose category does not
	// exist. Its own totals are recomputed but reach no category.
	AnomalyOrphanSubCategory AnomalyKind = "orphan_subcategory"

	// AnomalyMisparentedItem is an item whose category id disagrees with its
	// subcategory's category. It is counted under its subcategory's parent.
	AnomalyMisparentedItem AnomalyKind = "misparented_item"
)

// Anomaly reports one row excluded from, or rerouted in, the sums.
type Anomaly struct {
	Kind AnomalyKind `json:"kind"`
	ID   string      `json:"id"`
	Ref  string      `json:"ref"` // the missing or disagreeing parent id
}

// Result holds recomputed totals for every subcategory and category passed
// to Compute, including zero totals for empty ones.
type Result struct {
	SubCategories map[string]ir.Totals
	Categories    map[string]ir.Totals
	Anomalies     []Anomaly
}

// Compute recomputes rollups from scratch. It does not read the cached
// totals on cats and subs, only their ids and parent links.
//
// Summation visits rows in id order and rounds every step to 3 decimals,
// so the same inputs always produce bit-identical totals.
func Compute(cats []ir.Category, subs []ir.SubCategory, items []ir.Item) Result {
	res := Result{
		SubCategories: make(map[string]ir.Totals, len(subs)),
		Categories:    make(map[string]ir.Totals, len(cats)),
	}

	for _, c := range cats {
		res.Categories[c.ID] = ir.Totals{}
	}
	parentOf := make(map[string]string, len(subs))
	for _, sc := range subs {
		res.SubCategories[sc.ID] = ir.Totals{}
		parentOf[sc.ID] = sc.CategoryID
	}

	sortedItems := append([]ir.Item(nil), items...)
	sort.Slice(sortedItems, func(i, j int) bool { return sortedItems[i].ID < sortedItems[j].ID })

	for _, it := range sortedItems {
		parent, ok := parentOf[it.SubCategoryID]
		if !ok {
			res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyOrphanItem, ID: it.ID, Ref: it.SubCategoryID})
			continue
		}
		if parent != it.CategoryID {
			res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyMisparentedItem, ID: it.ID, Ref: it.CategoryID})
		}
		res.SubCategories[it.SubCategoryID] = res.SubCategories[it.SubCategoryID].Add(it.Contribution())
	}

	subIDs := make([]string, 0, len(parentOf))
	for id := range parentOf {
		subIDs = append(subIDs, id)
	}
	sort.Strings(subIDs)

	for _, id := range subIDs {
		catID := parentOf[id]
		cat, ok := res.Categories[catID]
		if !ok {
			res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyOrphanSubCategory, ID: id, Ref: catID})
			continue
		}
		res.Categories[catID] = cat.Add(res.SubCategories[id])
	}

	sort.SliceStable(res.Anomalies, func(i, j int) bool {
		a, b := res.Anomalies[i], res.Anomalies[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
	return res
}

// DriftRow is a cached rollup that disagrees with its recomputed value.
type DriftRow struct {
	Level    string    `json:"level"` // "subcategory" or "category"
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Cached   ir.Totals `json:"cached"`
	Computed ir.Totals `json:"computed"`
}

// Drift lists rows whose cached totals differ from r beyond ir.Tolerance,
// subcategories first, each level in id order.
func (r Result) Drift(cats []ir.Category, subs []ir.SubCategory) []DriftRow {
	var rows []DriftRow

	sortedSubs := append([]ir.SubCategory(nil), subs...)
	sort.Slice(sortedSubs, func(i, j int) bool { return sortedSubs[i].ID < sortedSubs[j].ID })
	for _, sc := range sortedSubs {
		want, ok := r.SubCategories[sc.ID]
		if ok && !sc.Totals.ApproxEqual(want) {
			rows = append(rows, DriftRow{Level: "subcategory", ID: sc.ID, Name: sc.Name, Cached: sc.Totals, Computed: want})
		}
	}

	sortedCats := append([]ir.Category(nil), cats...)
	sort.Slice(sortedCats, func(i, j int) bool { return sortedCats[i].ID < sortedCats[j].ID })
	for _, c := range sortedCats {
		want, ok := r.Categories[c.ID]
		if ok && !c.Totals.ApproxEqual(want) {
			rows = append(rows, DriftRow{Level: "category", ID: c.ID, Name: c.Name, Cached: c.Totals, Computed: want})
		}
	}
	return rows
}
