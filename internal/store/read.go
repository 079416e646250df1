package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/bullion/internal/ir"
)

// GetCategory retrieves a single category by id within scope.
// Returns ErrNotFound if absent.
func (s *Store) GetCategory(ctx context.Context, scope ir.Scope, id string) (ir.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE id = ? AND tenant_id = ? AND location_id = ?
	`, id, scope.TenantID, scope.LocationID)

	c, err := scanCategory(row)
	if err != nil {
		return ir.Category{}, fmt.Errorf("get category %s: %w", id, err)
	}
	return c, nil
}

// FindCategoryByName looks a category up by its normalized, case-insensitive name.
func (s *Store) FindCategoryByName(ctx context.Context, scope ir.Scope, name string) (ir.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE name_key = ? AND tenant_id = ? AND location_id = ?
	`, ir.NameKey(name), scope.TenantID, scope.LocationID)

	c, err := scanCategory(row)
	if err != nil {
		return ir.Category{}, fmt.Errorf("find category %q: %w", name, err)
	}
	return c, nil
}

// GetSubCategory retrieves a single subcategory by id within scope.
// Returns ErrNotFound if absent.
func (s *Store) GetSubCategory(ctx context.Context, scope ir.Scope, id string) (ir.SubCategory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subCategoryColumns+`
		FROM sub_categories
		WHERE id = ? AND tenant_id = ? AND location_id = ?
	`, id, scope.TenantID, scope.LocationID)

	sc, err := scanSubCategory(row)
	if err != nil {
		return ir.SubCategory{}, fmt.Errorf("get subcategory %s: %w", id, err)
	}
	return sc, nil
}

// FindSubCategoryByName looks a subcategory up under categoryID by name.
func (s *Store) FindSubCategoryByName(ctx context.Context, scope ir.Scope, categoryID, name string) (ir.SubCategory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subCategoryColumns+`
		FROM sub_categories
		WHERE category_id = ? AND name_key = ? AND tenant_id = ? AND location_id = ?
	`, categoryID, ir.NameKey(name), scope.TenantID, scope.LocationID)

	sc, err := scanSubCategory(row)
	if err != nil {
		return ir.SubCategory{}, fmt.Errorf("find subcategory %q: %w", name, err)
	}
	return sc, nil
}

// GetItem retrieves a single item by id within scope, with parent names joined.
// Returns ErrNotFound if absent.
func (s *Store) GetItem(ctx context.Context, scope ir.Scope, id string) (ir.Item, error) {
	row := s.db.QueryRowContext(ctx, itemViewSQL+`
		WHERE i.id = ? AND i.tenant_id = ? AND i.location_id = ?
	`, id, scope.TenantID, scope.LocationID)

	it, err := scanItem(row)
	if err != nil {
		return ir.Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return it, nil
}

// ListCategories returns every category in scope ordered by id.
func (s *Store) ListCategories(ctx context.Context, scope ir.Scope) ([]ir.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE tenant_id = ? AND location_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, scope.TenantID, scope.LocationID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := []ir.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// ListSubCategories returns every subcategory in scope ordered by id.
func (s *Store) ListSubCategories(ctx context.Context, scope ir.Scope) ([]ir.SubCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subCategoryColumns+`
		FROM sub_categories
		WHERE tenant_id = ? AND location_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, scope.TenantID, scope.LocationID)
	if err != nil {
		return nil, fmt.Errorf("query subcategories: %w", err)
	}
	defer rows.Close()

	subs := []ir.SubCategory{}
	for rows.Next() {
		sc, err := scanSubCategory(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subcategories: %w", err)
	}
	return subs, nil
}

// ListItems returns every item in scope ordered by id.
func (s *Store) ListItems(ctx context.Context, scope ir.Scope) ([]ir.Item, error) {
	items, err := s.queryItemView(ctx, `
		WHERE i.tenant_id = ? AND i.location_id = ?
		ORDER BY i.id COLLATE BINARY ASC
	`, scope.TenantID, scope.LocationID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// RecentItems returns the newest items in scope, creation date descending.
// A limit <= 0 returns every item.
func (s *Store) RecentItems(ctx context.Context, scope ir.Scope, limit int) ([]ir.Item, error) {
	items, err := s.QueryItems(ctx, "i.tenant_id = ? AND i.location_id = ?",
		[]any{scope.TenantID, scope.LocationID}, limit)
	if err != nil {
		return nil, fmt.Errorf("recent items: %w", err)
	}
	return items, nil
}

// QueryItems runs a compiled filter against the item view.
//
// where is a parameterized boolean expression over the item view columns
// (alias i for items); it is produced by querysql and never built from user
// text. Results are ordered created_at DESC, id ASC. A limit <= 0 means no limit.
func (s *Store) QueryItems(ctx context.Context, where string, args []any, limit int) ([]ir.Item, error) {
	if where == "" {
		where = "1 = 1"
	}
	tail := " WHERE " + where + " ORDER BY i.created_at DESC, i.id COLLATE BINARY ASC"
	if limit > 0 {
		tail += fmt.Sprintf(" LIMIT %d", limit)
	}
	items, err := s.queryItemView(ctx, tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return items, nil
}

func (s *Store) queryItemView(ctx context.Context, tail string, args ...any) ([]ir.Item, error) {
	rows, err := s.db.QueryContext(ctx, itemViewSQL+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ir.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

const categoryColumns = `id, tenant_id, location_id, name, quantity, gross_weight, fine_weight, created_at`

const subCategoryColumns = `id, category_id, tenant_id, location_id, name, quantity, gross_weight, fine_weight, created_at`

// itemViewSQL joins parent names. LEFT JOIN keeps orphaned items visible.
const itemViewSQL = `
	SELECT i.id, i.tenant_id, i.location_id, i.category_id, i.sub_category_id,
	       i.name, i.quantity, i.gross_weight, i.net_weight, i.fine_weight,
	       i.purity, i.charge_type, i.charge_amount, i.tax_rate, i.huid,
	       i.entry_type, i.source_firm_id, i.source_purchase_order_id,
	       i.created_at, COALESCE(c.name, ''), COALESCE(sc.name, '')
	FROM items i
	LEFT JOIN sub_categories sc ON sc.id = i.sub_category_id
	LEFT JOIN categories c ON c.id = i.category_id
`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(r rowScanner) (ir.Category, error) {
	var c ir.Category
	var created int64
	err := r.Scan(
		&c.ID, &c.Scope.TenantID, &c.Scope.LocationID, &c.Name,
		&c.Totals.Quantity, &c.Totals.GrossWeight, &c.Totals.FineWeight, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Category{}, ErrNotFound
	}
	if err != nil {
		return ir.Category{}, fmt.Errorf("scan category: %w", err)
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

func scanSubCategory(r rowScanner) (ir.SubCategory, error) {
	var sc ir.SubCategory
	var created int64
	err := r.Scan(
		&sc.ID, &sc.CategoryID, &sc.Scope.TenantID, &sc.Scope.LocationID, &sc.Name,
		&sc.Totals.Quantity, &sc.Totals.GrossWeight, &sc.Totals.FineWeight, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.SubCategory{}, ErrNotFound
	}
	if err != nil {
		return ir.SubCategory{}, fmt.Errorf("scan subcategory: %w", err)
	}
	sc.CreatedAt = fromMillis(created)
	return sc, nil
}

func scanItem(r rowScanner) (ir.Item, error) {
	var it ir.Item
	var purity, chargeType, entryType string
	var created int64
	err := r.Scan(
		&it.ID, &it.Scope.TenantID, &it.Scope.LocationID, &it.CategoryID, &it.SubCategoryID,
		&it.Name, &it.Quantity, &it.GrossWeight, &it.NetWeight, &it.FineWeight,
		&purity, &chargeType, &it.ChargeAmount, &it.TaxRate, &it.HUID,
		&entryType, &it.SourceFirmID, &it.SourcePurchaseOrderID,
		&created, &it.CategoryName, &it.SubCategoryName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Item{}, ErrNotFound
	}
	if err != nil {
		return ir.Item{}, fmt.Errorf("scan item: %w", err)
	}
	it.Purity = ir.Purity(purity)
	it.ChargeType = ir.ChargeType(chargeType)
	it.EntryType = ir.EntryType(entryType)
	it.CreatedAt = fromMillis(created)
	return it, nil
}

// toMillis stores timestamps as Unix milliseconds so range predicates are
// plain integer comparisons.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func sortedKeys(m map[string]ir.Totals) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
