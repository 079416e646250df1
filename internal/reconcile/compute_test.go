package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bullion/internal/ir"
)

func item(id, catID, subID string, qty int64, gross, fine float64) ir.Item {
	return ir.Item{ID: id, CategoryID: catID, SubCategoryID: subID, Quantity: qty, GrossWeight: gross, FineWeight: fine}
}

func TestCompute_SumsItemsThenSubCategories(t *testing.T) {
	cats := []ir.Category{{ID: "c1"}, {ID: "c2"}}
	subs := []ir.SubCategory{
		{ID: "s1", CategoryID: "c1"},
		{ID: "s2", CategoryID: "c1"},
		{ID: "s3", CategoryID: "c2"},
	}
	items := []ir.Item{
		item("i1", "c1", "s1", 1, 5.5, 5.038),
		item("i2", "c1", "s1", 2, 2.25, 2.061),
		item("i3", "c1", "s2", 1, 10, 9.16),
	}

	res := Compute(cats, subs, items)

	assert.Equal(t, ir.Totals{Quantity: 3, GrossWeight: 7.75, FineWeight: 7.099}, res.SubCategories["s1"])
	assert.Equal(t, ir.Totals{Quantity: 1, GrossWeight: 10, FineWeight: 9.16}, res.SubCategories["s2"])
	assert.Equal(t, ir.Totals{}, res.SubCategories["s3"], "empty subcategories are zeroed")
	assert.True(t, ir.Totals{Quantity: 4, GrossWeight: 17.75, FineWeight: 16.259}.ApproxEqual(res.Categories["c1"]))
	assert.Equal(t, ir.Totals{}, res.Categories["c2"])
	assert.Empty(t, res.Anomalies)
}

func TestCompute_IgnoresCachedTotals(t *testing.T) {
	cats := []ir.Category{{ID: "c1", Totals: ir.Totals{Quantity: 99, GrossWeight: 99}}}
	subs := []ir.SubCategory{{ID: "s1", CategoryID: "c1", Totals: ir.Totals{Quantity: 42}}}

	res := Compute(cats, subs, []ir.Item{item("i1", "c1", "s1", 1, 1, 1)})
	assert.Equal(t, ir.Totals{Quantity: 1, GrossWeight: 1, FineWeight: 1}, res.Categories["c1"])
}

func TestCompute_OrphansAreReportedNotFatal(t *testing.T) {
	cats := []ir.Category{{ID: "c1"}}
	subs := []ir.SubCategory{
		{ID: "s1", CategoryID: "c1"},
		{ID: "s-orphan", CategoryID: "c-gone"},
	}
	items := []ir.Item{
		item("i1", "c1", "s1", 1, 1, 1),
		item("i2", "c1", "s-gone", 1, 50, 50),
		item("i3", "c-gone", "s-orphan", 1, 7, 7),
		item("i4", "c-other", "s1", 1, 2, 2),
	}

	res := Compute(cats, subs, items)

	require.Len(t, res.Anomalies, 3)
	assert.Equal(t, []Anomaly{
		{Kind: AnomalyMisparentedItem, ID: "i4", Ref: "c-other"},
		{Kind: AnomalyOrphanItem, ID: "i2", Ref: "s-gone"},
		{Kind: AnomalyOrphanSubCategory, ID: "s-orphan", Ref: "c-gone"},
	}, res.Anomalies)

	assert.Equal(t, ir.Totals{Quantity: 2, GrossWeight: 3, FineWeight: 3}, res.SubCategories["s1"])
	assert.Equal(t, ir.Totals{Quantity: 1, GrossWeight: 7, FineWeight: 7}, res.SubCategories["s-orphan"])
	assert.Equal(t, ir.Totals{Quantity: 2, GrossWeight: 3, FineWeight: 3}, res.Categories["c1"],
		"category totals come from its subcategories only")
	_, ok := res.Categories["c-gone"]
	assert.False(t, ok)
}

func TestCompute_DeterministicRegardlessOfInputOrder(t *testing.T) {
	cats := []ir.Category{{ID: "c1"}}
	subs := []ir.SubCategory{{ID: "s1", CategoryID: "c1"}}
	items := []ir.Item{
		item("b", "c1", "s1", 1, 0.1, 0.1),
		item("a", "c1", "s1", 1, 0.2, 0.2),
		item("c", "c1", "s1", 1, 0.3, 0.3),
	}
	reversed := []ir.Item{items[2], items[1], items[0]}

	assert.Equal(t, Compute(cats, subs, items), Compute(cats, subs, reversed))
}

func TestCompute_Empty(t *testing.T) {
	res := Compute(nil, nil, nil)
	assert.Empty(t, res.SubCategories)
	assert.Empty(t, res.Categories)
	assert.Empty(t, res.Anomalies)
}

func TestResult_Drift(t *testing.T) {
	cats := []ir.Category{{ID: "c1", Name: "Gold", Totals: ir.Totals{Quantity: 1, GrossWeight: 5.5}}}
	subs := []ir.SubCategory{
		{ID: "s2", CategoryID: "c1", Totals: ir.Totals{Quantity: 1, GrossWeight: 5.5004}},
		{ID: "s1", CategoryID: "c1", Name: "Ring", Totals: ir.Totals{Quantity: 1, GrossWeight: 1}},
	}
	items := []ir.Item{
		item("i1", "c1", "s1", 1, 2, 0),
		item("i2", "c1", "s2", 1, 5.5, 0),
	}

	res := Compute(cats, subs, items)
	drift := res.Drift(cats, subs)

	require.Len(t, drift, 2, "s2 is within tolerance")
	assert.Equal(t, "subcategory", drift[0].Level)
	assert.Equal(t, "s1", drift[0].ID)
	assert.Equal(t, 1.0, drift[0].Cached.GrossWeight)
	assert.Equal(t, 2.0, drift[0].Computed.GrossWeight)
	assert.Equal(t, "category", drift[1].Level)
	assert.Equal(t, 7.5, drift[1].Computed.GrossWeight)
}
