package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/queryir"
)

func sortFixture() []ir.Item {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []ir.Item{
		{ID: "c", GrossWeight: 2, Quantity: 1, CategoryName: "gold", Purity: ir.Purity22K, CreatedAt: base.Add(time.Hour)},
		{ID: "a", GrossWeight: 5, Quantity: 3, CategoryName: "Ánklet", Purity: ir.Purity18K, CreatedAt: base},
		{ID: "b", GrossWeight: 2, Quantity: 2, CategoryName: "Zircon", Purity: ir.Purity24K, CreatedAt: base.Add(time.Hour)},
		{ID: "d", GrossWeight: 9, Quantity: 1, CategoryName: "anklet", Purity: ir.Purity22K, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func ids(items []ir.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestSortItems(t *testing.T) {
	tests := []struct {
		name string
		sort queryir.Sort
		want []string
	}{
		{"default newest first, id tiebreak", queryir.Sort{}, []string{"d", "b", "c", "a"}},
		{"unknown field falls back", queryir.Sort{Field: "color", Direction: queryir.Asc}, []string{"d", "b", "c", "a"}},
		{"gross asc", queryir.Sort{Field: queryir.SortGrossWeight, Direction: queryir.Asc}, []string{"b", "c", "a", "d"}},
		{"gross desc keeps id asc on ties", queryir.Sort{Field: queryir.SortGrossWeight, Direction: queryir.Desc}, []string{"d", "a", "b", "c"}},
		{"quantity desc", queryir.Sort{Field: queryir.SortQuantity, Direction: queryir.Desc}, []string{"a", "b", "c", "d"}},
		{"id desc", queryir.Sort{Field: queryir.SortID, Direction: queryir.Desc}, []string{"d", "c", "b", "a"}},
		{"created asc", queryir.Sort{Field: queryir.SortCreatedAt, Direction: queryir.Asc}, []string{"a", "b", "c", "d"}},
		{"purity asc", queryir.Sort{Field: queryir.SortPurity, Direction: queryir.Asc}, []string{"a", "c", "d", "b"}},
		{"category name collated", queryir.Sort{Field: queryir.SortCategoryName, Direction: queryir.Asc}, []string{"d", "a", "c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := sortFixture()
			SortItems(items, tt.sort)
			assert.Equal(t, tt.want, ids(items))
		})
	}
}

func TestSortItems_Repeatable(t *testing.T) {
	a, b := sortFixture(), sortFixture()
	b[0], b[3] = b[3], b[0]

	s := queryir.Sort{Field: queryir.SortGrossWeight, Direction: queryir.Asc}
	SortItems(a, s)
	SortItems(b, s)
	assert.Equal(t, ids(a), ids(b))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "delivered", StateDelivered.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateDelivered.Terminal())
}
