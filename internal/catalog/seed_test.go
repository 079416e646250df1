package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bullion/internal/coordinator"
	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/store"
	"github.com/roach88/bullion/internal/testutil"
)

var testScope = ir.Scope{TenantID: "tenant-1", LocationID: "shop-1"}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newSeeder(st Store, ids coordinator.IDGenerator) *Seeder {
	return NewSeeder(st,
		WithIDGenerator(ids),
		WithClock(testutil.NewStepClock(testutil.DefaultEpoch, 0)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestSeed_CreatesHierarchy(t *testing.T) {
	st := setupStore(t)
	cat, err := Load(filepath.Join("testdata", "shop"))
	require.NoError(t, err)

	rep, err := newSeeder(st, testutil.NewSequenceGenerator("row")).Seed(context.Background(), testScope, cat)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{CategoriesCreated: 2, SubCategoriesCreated: 5}, rep)

	ctx := context.Background()
	cats, err := st.ListCategories(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, cats, 2)

	silver, err := st.FindCategoryByName(ctx, testScope, "silver")
	require.NoError(t, err)
	chain, err := st.FindSubCategoryByName(ctx, testScope, silver.ID, "Chain")
	require.NoError(t, err)
	assert.Equal(t, silver.ID, chain.CategoryID)
	assert.Equal(t, ir.Totals{}, chain.Totals)
	assert.Equal(t, testutil.DefaultEpoch, chain.CreatedAt)
}

func TestSeed_IsIdempotent(t *testing.T) {
	st := setupStore(t)
	cat, err := Load(filepath.Join("testdata", "shop"))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = newSeeder(st, testutil.NewSequenceGenerator("a")).Seed(ctx, testScope, cat)
	require.NoError(t, err)

	rep, err := newSeeder(st, testutil.NewSequenceGenerator("b")).Seed(ctx, testScope, cat)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{CategoriesExisting: 2, SubCategoriesExisting: 5}, rep)

	subs, err := st.ListSubCategories(ctx, testScope)
	require.NoError(t, err)
	assert.Len(t, subs, 5)
}

func TestSeed_AddsOnlyMissingRows(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	first, err := CompileString(`category: Gold: subcategories: ["Ring"]`)
	require.NoError(t, err)
	_, err = newSeeder(st, testutil.NewSequenceGenerator("a")).Seed(ctx, testScope, first)
	require.NoError(t, err)

	second, err := CompileString(`category: GOLD: subcategories: ["ring", "Chain"]`)
	require.NoError(t, err)
	rep, err := newSeeder(st, testutil.NewSequenceGenerator("b")).Seed(ctx, testScope, second)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{CategoriesExisting: 1, SubCategoriesCreated: 1, SubCategoriesExisting: 1}, rep)

	gold, err := st.FindCategoryByName(ctx, testScope, "Gold")
	require.NoError(t, err)
	assert.Equal(t, "Gold", gold.Name, "existing row keeps its original spelling")
}

func TestSeed_ScopesAreSeparate(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	cat, err := CompileString(`category: Gold: subcategories: ["Ring"]`)
	require.NoError(t, err)

	other := ir.Scope{TenantID: "tenant-1", LocationID: "shop-2"}
	s := newSeeder(st, coordinator.UUIDv7Generator{})
	_, err = s.Seed(ctx, testScope, cat)
	require.NoError(t, err)
	rep, err := s.Seed(ctx, other, cat)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.CategoriesCreated)
}

func TestSeed_InvalidScope(t *testing.T) {
	st := setupStore(t)
	cat, err := CompileString(`category: Gold: {}`)
	require.NoError(t, err)

	_, err = newSeeder(st, coordinator.UUIDv7Generator{}).Seed(context.Background(), ir.Scope{}, cat)
	assert.ErrorContains(t, err, "invalid scope")
}

type brokenStore struct{ Store }

func (brokenStore) FindCategoryByName(context.Context, ir.Scope, string) (ir.Category, error) {
	return ir.Category{}, errors.New("database is locked")
}

func TestSeed_LookupErrorIsNotTreatedAsMissing(t *testing.T) {
	cat, err := CompileString(`category: Gold: {}`)
	require.NoError(t, err)

	_, err = newSeeder(brokenStore{}, coordinator.UUIDv7Generator{}).Seed(context.Background(), testScope, cat)
	assert.ErrorContains(t, err, "database is locked")
}
