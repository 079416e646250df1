package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bullion/internal/ir"
)

func TestGetItem_JoinsNames(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedHierarchy(t, s)

	in := testItem("item-1", 5.5, baseTime)
	in.HUID = "AB12CD"
	in.SourceFirmID = "firm-9"
	require.NoError(t, s.InsertItem(ctx, in))

	got, err := s.GetItem(ctx, testScope, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Gold", got.CategoryName)
	assert.Equal(t, "Ring", got.SubCategoryName)
	assert.Equal(t, "AB12CD", got.HUID)
	assert.Equal(t, "firm-9", got.SourceFirmID)
	assert.Equal(t, ir.Purity22K, got.Purity)
	assert.True(t, baseTime.Equal(got.CreatedAt))
}

func TestGetItem_NotFoundAcrossScopes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedHierarchy(t, s)
	require.NoError(t, s.InsertItem(ctx, testItem("item-1", 5.5, baseTime)))

	_, err := s.GetItem(ctx, ir.Scope{TenantID: "other", LocationID: "shop-1"}, "item-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetCategory(ctx, testScope, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByName_Normalized(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedHierarchy(t, s)

	cat, err := s.FindCategoryByName(ctx, testScope, "  GOLD ")
	require.NoError(t, err)
	assert.Equal(t, "cat-1", cat.ID)

	sub, err := s.FindSubCategoryByName(ctx, testScope, "cat-1", "ring")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)

	_, err = s.FindSubCategoryByName(ctx, testScope, "cat-1", "Chain")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecentItems_OrderedByCreatedDesc(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedHierarchy(t, s)

	require.NoError(t, s.InsertItem(ctx, testItem("a", 1, baseTime)))
	require.NoError(t, s.InsertItem(ctx, testItem("b", 1, baseTime.Add(2*time.Hour))))
	require.NoError(t, s.InsertItem(ctx, testItem("c", 1, baseTime.Add(time.Hour))))

	items, err := s.RecentItems(ctx, testScope, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, itemIDs(items))

	items, err = s.RecentItems(ctx, testScope, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, itemIDs(items))
}

func TestQueryItems_Where(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedHierarchy(t, s)

	require.NoError(t, s.InsertItem(ctx, testItem("light", 1, baseTime)))
	require.NoError(t, s.InsertItem(ctx, testItem("heavy", 9, baseTime)))

	items, err := s.QueryItems(ctx, "i.gross_weight >= ?", []any{5.0}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"heavy"}, itemIDs(items))
}

func TestListItems_EmptySliceNotNil(t *testing.T) {
	s := setupTestStore(t)
	items, err := s.ListItems(context.Background(), testScope)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func itemIDs(items []ir.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
