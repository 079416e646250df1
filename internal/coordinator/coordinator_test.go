package coordinator

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/metrics"
	"github.com/roach88/bullion/internal/testutil"
)

func TestInsertItem_AppliesBothDeltas(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	got, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 5.5))
	require.NoError(t, err)

	assert.Equal(t, "item-0001", id)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, testScope, got.Scope)
	assert.Equal(t, testutil.DefaultEpoch, got.CreatedAt)
	assert.Equal(t, "Gold", got.CategoryName)
	assert.Equal(t, "Ring", got.SubCategoryName)

	want := ir.Totals{Quantity: 1, GrossWeight: 5.5, FineWeight: 5.038}
	assert.Equal(t, want, subTotals(t, s, "sub-1"))
	assert.Equal(t, want, catTotals(t, s, "cat-1"))
	assert.Equal(t, ir.Totals{}, subTotals(t, s, "sub-2"))

	stored, err := s.GetItem(ctx, testScope, id)
	require.NoError(t, err)
	assert.Equal(t, "Band", stored.Name)
}

func TestInsertItem_StampsScopeFromCaller(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)

	item := newItem("sub-1", 1)
	item.Scope = ir.Scope{TenantID: "someone-else", LocationID: "x"}

	got, _, err := c.InsertItem(context.Background(), testScope, item)
	require.NoError(t, err)
	assert.Equal(t, testScope, got.Scope)
}

func TestInsertItem_ValidationPerformsNoWrites(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	tests := []struct {
		name   string
		scope  ir.Scope
		mutate func(*ir.Item)
		field  string
	}{
		{"missing scope", ir.Scope{TenantID: "t"}, func(*ir.Item) {}, "scope"},
		{"blank name", testScope, func(it *ir.Item) { it.Name = "   " }, "name"},
		{"zero quantity", testScope, func(it *ir.Item) { it.Quantity = 0 }, "quantity"},
		{"negative gross", testScope, func(it *ir.Item) { it.GrossWeight = -1 }, "gross_weight"},
		{"NaN gross", testScope, func(it *ir.Item) { it.GrossWeight = math.NaN() }, "gross_weight"},
		{"infinite gross", testScope, func(it *ir.Item) { it.GrossWeight = math.Inf(1) }, "gross_weight"},
		{"infinite fine", testScope, func(it *ir.Item) { it.FineWeight = math.Inf(1) }, "fine_weight"},
		{"fine above net", testScope, func(it *ir.Item) { it.FineWeight = it.NetWeight + 1 }, "fine_weight"},
		{"bad purity", testScope, func(it *ir.Item) { it.Purity = "23K" }, "purity"},
		{"bad charge type", testScope, func(it *ir.Item) { it.ChargeType = "flat" }, "charge_type"},
		{"bad entry type", testScope, func(it *ir.Item) { it.EntryType = "gift" }, "entry_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := newItem("sub-1", 2)
			tt.mutate(&item)

			_, _, err := c.InsertItem(ctx, tt.scope, item)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			fields := make([]string, len(ve.Fields))
			for i, f := range ve.Fields {
				fields[i] = f.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	items, err := s.ListItems(ctx, testScope)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, ir.Totals{}, subTotals(t, s, "sub-1"))
}

func TestInsertItem_UnknownParents(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	item := newItem("sub-1", 1)
	item.SubCategoryID = "sub-missing"
	_, _, err := c.InsertItem(ctx, testScope, item)
	assert.True(t, IsNotFound(err))

	item = newItem("sub-3", 1)
	item.CategoryID = "cat-1"
	_, _, err = c.InsertItem(ctx, testScope, item)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "subcategory", nf.Kind)
	assert.Contains(t, nf.Detail, "cat-1")

	other := ir.Scope{TenantID: "tenant-2", LocationID: "shop-1"}
	_, _, err = c.InsertItem(ctx, other, newItem("sub-1", 1))
	assert.True(t, IsNotFound(err), "parents from another scope are invisible")

	items, err := s.ListItems(ctx, testScope)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInsertItem_WriteFailureStages(t *testing.T) {
	tests := []struct {
		stage        Stage
		wantItemRow  bool
		wantSubDelta bool
	}{
		{StageItem, false, false},
		{StageSubCategoryDelta, true, false},
		{StageCategoryDelta, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			s := setupStore(t)
			c := newTestCoordinator(&failingStore{Store: s, failAt: tt.stage})
			ctx := context.Background()

			_, _, err := c.InsertItem(ctx, testScope, newItem("sub-1", 4))
			require.Error(t, err)
			stage, ok := StageOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.stage, stage)
			assert.ErrorIs(t, err, errDiskFull)

			items, err := s.ListItems(ctx, testScope)
			require.NoError(t, err)
			if tt.wantItemRow {
				assert.Len(t, items, 1, "item row is retained after a later stage fails")
			} else {
				assert.Empty(t, items)
			}

			wantSub := ir.Totals{}
			if tt.wantSubDelta {
				wantSub = ir.Totals{Quantity: 1, GrossWeight: 4, FineWeight: 3.664}
			}
			assert.Equal(t, wantSub, subTotals(t, s, "sub-1"))
			assert.Equal(t, ir.Totals{}, catTotals(t, s, "cat-1"))
		})
	}
}

// Insert A (5.5), insert B (2.25), delete A.
func TestInsertDelete_RollupScenario(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	_, idA, err := c.InsertItem(ctx, testScope, newItem("sub-1", 5.5))
	require.NoError(t, err)
	assert.InDelta(t, 5.5, subTotals(t, s, "sub-1").GrossWeight, ir.Tolerance)

	_, _, err = c.InsertItem(ctx, testScope, newItem("sub-1", 2.25))
	require.NoError(t, err)
	assert.InDelta(t, 7.75, subTotals(t, s, "sub-1").GrossWeight, ir.Tolerance)

	n, err := c.DeleteItem(ctx, testScope, idA, "cat-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sub := subTotals(t, s, "sub-1")
	assert.InDelta(t, 2.25, sub.GrossWeight, ir.Tolerance)
	assert.Equal(t, int64(1), sub.Quantity)
	assert.Equal(t, sub, catTotals(t, s, "cat-1"))
}

func TestDeleteItem_Idempotent(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	_, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 3))
	require.NoError(t, err)

	n, err := c.DeleteItem(ctx, testScope, id, "cat-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.DeleteItem(ctx, testScope, id, "cat-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.Equal(t, ir.Totals{}, subTotals(t, s, "sub-1"))
	assert.Equal(t, ir.Totals{}, catTotals(t, s, "cat-1"))
}

func TestDeleteItem_ClampsDriftedRollupAtZero(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	_, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 3))
	require.NoError(t, err)

	// Simulate drift: the cached rollup under-counts the item.
	require.NoError(t, s.WriteRollups(ctx, testScope,
		map[string]ir.Totals{"sub-1": {Quantity: 0, GrossWeight: 1}},
		map[string]ir.Totals{"cat-1": {}},
	))

	_, err = c.DeleteItem(ctx, testScope, id, "", "")
	require.NoError(t, err)

	assert.Equal(t, ir.Totals{}, subTotals(t, s, "sub-1"))
	assert.Equal(t, ir.Totals{}, catTotals(t, s, "cat-1"))
}

func TestDeleteItem_ParentMismatchIsValidation(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	_, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 3))
	require.NoError(t, err)

	_, err = c.DeleteItem(ctx, testScope, id, "cat-1", "sub-2")
	assert.True(t, IsValidation(err))

	_, err = s.GetItem(ctx, testScope, id)
	assert.NoError(t, err, "rejected delete leaves the item in place")
}

func TestDeleteItem_MisparentedItemLeavesSubCategoryParent(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	_, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 3))
	require.NoError(t, err)
	_, _, err = c.InsertItem(ctx, testScope, newItem("sub-3", 2))
	require.NoError(t, err)

	// sub-1 belongs to cat-1; point the item at cat-2 behind the coordinator.
	_, err = s.DB().Exec(`UPDATE items SET category_id = 'cat-2' WHERE id = ?`, id)
	require.NoError(t, err)

	_, err = c.DeleteItem(ctx, testScope, id, "", "")
	require.NoError(t, err)

	assert.Equal(t, ir.Totals{}, subTotals(t, s, "sub-1"))
	assert.Equal(t, ir.Totals{}, catTotals(t, s, "cat-1"))
	assert.InDelta(t, 2.0, catTotals(t, s, "cat-2").GrossWeight, ir.Tolerance)
}

func TestDeleteItem_RequiresScopeAndID(t *testing.T) {
	c := newTestCoordinator(setupStore(t))

	_, err := c.DeleteItem(context.Background(), ir.Scope{}, "item-1", "", "")
	assert.True(t, IsValidation(err))

	_, err = c.DeleteItem(context.Background(), testScope, "", "", "")
	assert.True(t, IsValidation(err))
}

func TestDeleteItem_WriteFailureStages(t *testing.T) {
	for _, stage := range []Stage{StageItem, StageSubCategoryDelta, StageCategoryDelta} {
		t.Run(string(stage), func(t *testing.T) {
			s := setupStore(t)
			ctx := context.Background()

			_, id, err := newTestCoordinator(s).InsertItem(ctx, testScope, newItem("sub-1", 2))
			require.NoError(t, err)

			c := newTestCoordinator(&failingStore{Store: s, failAt: stage, onDelete: true})
			_, err = c.DeleteItem(ctx, testScope, id, "cat-1", "sub-1")
			got, ok := StageOf(err)
			require.True(t, ok)
			assert.Equal(t, stage, got)

			_, getErr := s.GetItem(ctx, testScope, id)
			if stage == StageItem {
				assert.NoError(t, getErr, "item survives a failed delete")
			} else {
				assert.Error(t, getErr, "row delete committed before the failing stage")
			}
		})
	}
}

func TestInsertThenDelete_RestoresRollups(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	_, _, err := c.InsertItem(ctx, testScope, newItem("sub-1", 1.234))
	require.NoError(t, err)
	beforeSub, beforeCat := subTotals(t, s, "sub-1"), catTotals(t, s, "cat-1")

	_, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 9.876))
	require.NoError(t, err)
	_, err = c.DeleteItem(ctx, testScope, id, "cat-1", "sub-1")
	require.NoError(t, err)

	assert.True(t, beforeSub.ApproxEqual(subTotals(t, s, "sub-1")))
	assert.True(t, beforeCat.ApproxEqual(catTotals(t, s, "cat-1")))
}

func TestUpdateItem_MovesContribution(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	_, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 4))
	require.NoError(t, err)

	updated, newID, err := c.UpdateItem(ctx, testScope, id, newItem("sub-3", 6))
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)
	assert.Equal(t, "sub-3", updated.SubCategoryID)

	assert.Equal(t, ir.Totals{}, subTotals(t, s, "sub-1"))
	assert.Equal(t, ir.Totals{}, catTotals(t, s, "cat-1"))
	assert.InDelta(t, 6, subTotals(t, s, "sub-3").GrossWeight, ir.Tolerance)
	assert.InDelta(t, 6, catTotals(t, s, "cat-2").GrossWeight, ir.Tolerance)
}

func TestUpdateItem_RejectedUpdateKeepsOriginal(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)
	ctx := context.Background()

	_, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 4))
	require.NoError(t, err)

	bad := newItem("sub-1", 4)
	bad.Quantity = -1
	_, _, err = c.UpdateItem(ctx, testScope, id, bad)
	assert.True(t, IsValidation(err))

	missingParent := newItem("sub-1", 4)
	missingParent.SubCategoryID = "nope"
	_, _, err = c.UpdateItem(ctx, testScope, id, missingParent)
	assert.True(t, IsNotFound(err))

	_, err = s.GetItem(ctx, testScope, id)
	assert.NoError(t, err)
	assert.InDelta(t, 4, subTotals(t, s, "sub-1").GrossWeight, ir.Tolerance)

	_, _, err = c.UpdateItem(ctx, testScope, "no-such-item", newItem("sub-1", 1))
	assert.True(t, IsNotFound(err))
}

func TestConcurrentInserts_SameSubCategory(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)

	g, ctx := errgroup.WithContext(context.Background())
	for _, w := range []float64{1.0, 2.0} {
		g.Go(func() error {
			_, _, err := c.InsertItem(ctx, testScope, newItem("sub-1", w))
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.InDelta(t, 3.0, subTotals(t, s, "sub-1").GrossWeight, ir.Tolerance)
	assert.InDelta(t, 3.0, catTotals(t, s, "cat-1").GrossWeight, ir.Tolerance)
}

func TestConcurrentChains_ManyWriters(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(s)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 40; i++ {
		sub := "sub-1"
		if i%2 == 1 {
			sub = "sub-2"
		}
		g.Go(func() error {
			_, id, err := c.InsertItem(ctx, testScope, newItem(sub, 0.5))
			if err != nil {
				return err
			}
			if i%4 == 0 {
				_, err = c.DeleteItem(ctx, testScope, id, "", "")
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	// 20 inserts per subcategory; 10 deletes all hit sub-1.
	assertTotals(t, ir.Totals{Quantity: 10, GrossWeight: 5, FineWeight: 4.58}, subTotals(t, s, "sub-1"))
	assertTotals(t, ir.Totals{Quantity: 20, GrossWeight: 10, FineWeight: 9.16}, subTotals(t, s, "sub-2"))
	assertTotals(t, ir.Totals{Quantity: 30, GrossWeight: 15, FineWeight: 13.74}, catTotals(t, s, "cat-1"))
}

func TestNonAtomicStore_LosesUpdatesWithoutLock(t *testing.T) {
	s := setupStore(t)
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	c := newTestCoordinator(&racyStore{Store: s, claimAtomic: true, barrier: barrier})

	g, ctx := errgroup.WithContext(context.Background())
	for _, w := range []float64{1.0, 2.0} {
		g.Go(func() error {
			_, _, err := c.InsertItem(ctx, testScope, newItem("sub-1", w))
			return err
		})
	}
	require.NoError(t, g.Wait())

	got := subTotals(t, s, "sub-1").GrossWeight
	assert.NotEqual(t, 3.0, got, "read-modify-write without a lock drops one delta")
}

func TestNonAtomicStore_StripedLockPreventsLostUpdate(t *testing.T) {
	s := setupStore(t)
	c := newTestCoordinator(&racyStore{Store: s})
	assert.True(t, c.serialize)

	g, ctx := errgroup.WithContext(context.Background())
	for _, w := range []float64{1.0, 2.0, 0.25, 0.75} {
		g.Go(func() error {
			_, _, err := c.InsertItem(ctx, testScope, newItem("sub-1", w))
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.InDelta(t, 4.0, subTotals(t, s, "sub-1").GrossWeight, ir.Tolerance)
	assert.InDelta(t, 4.0, catTotals(t, s, "cat-1").GrossWeight, ir.Tolerance)
}

func TestMetricsRecordOutcomes(t *testing.T) {
	s := setupStore(t)
	reg := prometheus.NewRegistry()
	c := newTestCoordinator(s, WithMetrics(metrics.New(reg)))
	ctx := context.Background()

	_, id, err := c.InsertItem(ctx, testScope, newItem("sub-1", 1))
	require.NoError(t, err)
	_, err = c.DeleteItem(ctx, testScope, id, "", "")
	require.NoError(t, err)
	_, err = c.DeleteItem(ctx, testScope, id, "", "")
	require.NoError(t, err)

	bad := newItem("sub-1", 1)
	bad.Name = ""
	_, _, err = c.InsertItem(ctx, testScope, bad)
	require.Error(t, err)

	// insert/ok, delete/ok, delete/noop, insert/validation
	count, err := promtestutil.GatherAndCount(reg, "bullion_mutations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestMetricsCountReadFailureAsInternal(t *testing.T) {
	s := setupStore(t)
	reg := prometheus.NewRegistry()
	c := newTestCoordinator(s, WithMetrics(metrics.New(reg)))

	_, id, err := c.InsertItem(context.Background(), testScope, newItem("sub-1", 1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.DeleteItem(ctx, testScope, id, "", "")
	require.Error(t, err)
	assert.Equal(t, ErrCodeInternal, CodeOf(err))
	assert.False(t, IsWriteFailure(err))

	expected := `
# HELP bullion_mutations_total Item mutations by operation and outcome
# TYPE bullion_mutations_total counter
bullion_mutations_total{op="delete",outcome="internal"} 1
bullion_mutations_total{op="insert",outcome="ok"} 1
`
	assert.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "bullion_mutations_total"))
	assert.InDelta(t, 1.0, subTotals(t, s, "sub-1").GrossWeight, ir.Tolerance)
}

func TestSharedGate_BlocksDuringExclusive(t *testing.T) {
	s := setupStore(t)
	gate := NewGate()
	c := newTestCoordinator(s, WithGate(gate))
	assert.Same(t, gate, c.Gate())

	unlock := gate.Exclusive(testScope)
	done := make(chan error, 1)
	go func() {
		_, _, err := c.InsertItem(context.Background(), testScope, newItem("sub-1", 1))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("insert ran while the scope was held exclusively")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	require.NoError(t, <-done)
}
