package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/store"
	"github.com/roach88/bullion/internal/testutil"
)

var testScope = ir.Scope{TenantID: "tenant-1", LocationID: "shop-1"}

var errDiskFull = errors.New("disk full")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupStore opens a store seeded with cat-1/sub-1 and cat-1/sub-2.
func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seed(t, s)
	return s
}

func seed(t testing.TB, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateCategory(ctx, ir.Category{ID: "cat-1", Scope: testScope, Name: "Gold"}))
	require.NoError(t, s.CreateCategory(ctx, ir.Category{ID: "cat-2", Scope: testScope, Name: "Silver"}))
	require.NoError(t, s.CreateSubCategory(ctx, ir.SubCategory{ID: "sub-1", CategoryID: "cat-1", Scope: testScope, Name: "Ring"}))
	require.NoError(t, s.CreateSubCategory(ctx, ir.SubCategory{ID: "sub-2", CategoryID: "cat-1", Scope: testScope, Name: "Chain"}))
	require.NoError(t, s.CreateSubCategory(ctx, ir.SubCategory{ID: "sub-3", CategoryID: "cat-2", Scope: testScope, Name: "Anklet"}))
}

func newTestCoordinator(s Store, opts ...Option) *Coordinator {
	base := []Option{
		WithIDGenerator(testutil.NewSequenceGenerator("item")),
		WithClock(testutil.NewStepClock(time.Time{}, time.Second)),
		WithLogger(quietLogger()),
	}
	return New(s, append(base, opts...)...)
}

func newItem(subID string, gross float64) ir.Item {
	catID := "cat-1"
	if subID == "sub-3" {
		catID = "cat-2"
	}
	return ir.Item{
		CategoryID:    catID,
		SubCategoryID: subID,
		Name:          "Band",
		Quantity:      1,
		GrossWeight:   gross,
		NetWeight:     gross,
		FineWeight:    ir.Round3(gross * 0.916),
		Purity:        ir.Purity22K,
		ChargeType:    ir.ChargePerGram,
		ChargeAmount:  450,
		TaxRate:       3,
		EntryType:     ir.EntryManual,
	}
}

func subTotals(t *testing.T, s *store.Store, id string) ir.Totals {
	t.Helper()
	sub, err := s.GetSubCategory(context.Background(), testScope, id)
	require.NoError(t, err)
	return sub.Totals
}

func catTotals(t *testing.T, s *store.Store, id string) ir.Totals {
	t.Helper()
	cat, err := s.GetCategory(context.Background(), testScope, id)
	require.NoError(t, err)
	return cat.Totals
}

// failingStore injects an error at one stage of a chain.
type failingStore struct {
	*store.Store
	failAt   Stage
	onDelete bool
}

func (f *failingStore) InsertItem(ctx context.Context, it ir.Item) error {
	if f.failAt == StageItem && !f.onDelete {
		return errDiskFull
	}
	return f.Store.InsertItem(ctx, it)
}

func (f *failingStore) DeleteItem(ctx context.Context, scope ir.Scope, id string) (int64, error) {
	if f.failAt == StageItem && f.onDelete {
		return 0, errDiskFull
	}
	return f.Store.DeleteItem(ctx, scope, id)
}

func (f *failingStore) ApplyDeltaToSubCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error) {
	if f.failAt == StageSubCategoryDelta && f.onDelete == (d.Quantity < 0) {
		return ir.Totals{}, errDiskFull
	}
	return f.Store.ApplyDeltaToSubCategory(ctx, scope, id, d)
}

func (f *failingStore) ApplyDeltaToCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error) {
	if f.failAt == StageCategoryDelta && f.onDelete == (d.Quantity < 0) {
		return ir.Totals{}, errDiskFull
	}
	return f.Store.ApplyDeltaToCategory(ctx, scope, id, d)
}

// racyStore applies subcategory deltas as read, compute, write: the
// read-modify-write pattern that loses updates under concurrency.
//
// When barrier is set, every caller waits after its read until all callers
// have read, which forces the lost update deterministically.
type racyStore struct {
	*store.Store
	claimAtomic bool
	barrier     *sync.WaitGroup
}

func (r *racyStore) AtomicDeltas() bool {
	return r.claimAtomic
}

func (r *racyStore) ApplyDeltaToSubCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error) {
	sub, err := r.Store.GetSubCategory(ctx, scope, id)
	if err != nil {
		return ir.Totals{}, err
	}
	if r.barrier != nil {
		r.barrier.Done()
		r.barrier.Wait()
	} else {
		time.Sleep(5 * time.Millisecond)
	}
	next := sub.Totals.Add(d)
	if err := r.Store.WriteRollups(ctx, scope, map[string]ir.Totals{id: next}, nil); err != nil {
		return ir.Totals{}, err
	}
	return next, nil
}

func assertTotals(t *testing.T, want, got ir.Totals) {
	t.Helper()
	assert.True(t, want.ApproxEqual(got), "want %+v, got %+v", want, got)
}
