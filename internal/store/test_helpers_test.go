package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bullion/internal/ir"
)

var testScope = ir.Scope{TenantID: "tenant-1", LocationID: "shop-1"}

var baseTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// setupTestStore opens a fresh file-backed store in a temp dir.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedHierarchy creates category "cat-1" with subcategory "sub-1".
func seedHierarchy(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateCategory(ctx, ir.Category{
		ID: "cat-1", Scope: testScope, Name: "Gold", CreatedAt: baseTime,
	}))
	require.NoError(t, s.CreateSubCategory(ctx, ir.SubCategory{
		ID: "sub-1", CategoryID: "cat-1", Scope: testScope, Name: "Ring", CreatedAt: baseTime,
	}))
}

func testItem(id string, gross float64, created time.Time) ir.Item {
	return ir.Item{
		ID:            id,
		Scope:         testScope,
		CategoryID:    "cat-1",
		SubCategoryID: "sub-1",
		Name:          "Item " + id,
		Quantity:      1,
		GrossWeight:   gross,
		NetWeight:     gross,
		FineWeight:    ir.Round3(gross * 0.916),
		Purity:        ir.Purity22K,
		ChargeType:    ir.ChargePerGram,
		EntryType:     ir.EntryManual,
		CreatedAt:     created,
	}
}
