package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/bullion/internal/ir"
)

// ErrAlreadyExists is returned when a category or subcategory with the same
// normalized name already exists under the same parent in the same scope.
var ErrAlreadyExists = errors.New("store: already exists")

// ErrForeignScope is returned by RestoreItems when an item id is already
// taken by a row in a different scope.
var ErrForeignScope = errors.New("store: id belongs to another scope")

// CreateCategory inserts a new category with zero totals.
// The name is NFC-normalized; a duplicate name (case-insensitive) in the same
// scope returns ErrAlreadyExists.
func (s *Store) CreateCategory(ctx context.Context, c ir.Category) error {
	name := ir.NormalizeName(c.Name)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories
		(id, tenant_id, location_id, name, name_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.Scope.TenantID,
		c.Scope.LocationID,
		name,
		ir.NameKey(name),
		toMillis(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create category %s: %w", c.ID, mapConstraint(err))
	}
	s.feed.notify(c.Scope)
	return nil
}

// CreateSubCategory inserts a new subcategory with zero totals.
// The parent category must exist in the same scope (ErrNotFound otherwise).
func (s *Store) CreateSubCategory(ctx context.Context, sc ir.SubCategory) error {
	name := ir.NormalizeName(sc.Name)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM categories
			WHERE id = ? AND tenant_id = ? AND location_id = ?
		`, sc.CategoryID, sc.Scope.TenantID, sc.Scope.LocationID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check category: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("category %s: %w", sc.CategoryID, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sub_categories
			(id, category_id, tenant_id, location_id, name, name_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			sc.ID,
			sc.CategoryID,
			sc.Scope.TenantID,
			sc.Scope.LocationID,
			name,
			ir.NameKey(name),
			toMillis(sc.CreatedAt),
		)
		return mapConstraint(err)
	})
	if err != nil {
		return fmt.Errorf("create subcategory %s: %w", sc.ID, err)
	}
	s.feed.notify(sc.Scope)
	return nil
}

// InsertItem writes a single item row. It does not touch any rollup; the
// coordinator applies the compensating deltas as separate stages.
func (s *Store) InsertItem(ctx context.Context, it ir.Item) error {
	if _, err := s.db.ExecContext(ctx, "INSERT"+itemInsertSQL, itemArgs(it)...); err != nil {
		return fmt.Errorf("insert item %s: %w", it.ID, mapConstraint(err))
	}
	s.feed.notify(it.Scope)
	return nil
}

// DeleteItem removes an item row and returns the number of rows deleted.
// Deleting a missing item returns (0, nil).
func (s *Store) DeleteItem(ctx context.Context, scope ir.Scope, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE id = ? AND tenant_id = ? AND location_id = ?
	`, id, scope.TenantID, scope.LocationID)
	if err != nil {
		return 0, fmt.Errorf("delete item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete item %s: rows affected: %w", id, err)
	}
	if n > 0 {
		s.feed.notify(scope)
	}
	return n, nil
}

// ApplyDeltaToSubCategory adds d to the subcategory's cached totals as one
// indivisible statement and returns the resulting totals.
// Each field is clamped at zero and weights are rounded to 3 decimals.
// Returns ErrNotFound if no subcategory matched in scope.
func (s *Store) ApplyDeltaToSubCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error) {
	t, err := s.applyDelta(ctx, "sub_categories", scope, id, d)
	if err != nil {
		return ir.Totals{}, fmt.Errorf("apply delta to subcategory %s: %w", id, err)
	}
	return t, nil
}

// ApplyDeltaToCategory adds d to the category's cached totals as one
// indivisible statement and returns the resulting totals.
// Returns ErrNotFound if no category matched in scope.
func (s *Store) ApplyDeltaToCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error) {
	t, err := s.applyDelta(ctx, "categories", scope, id, d)
	if err != nil {
		return ir.Totals{}, fmt.Errorf("apply delta to category %s: %w", id, err)
	}
	return t, nil
}

// applyDelta is the atomic-delta primitive. table is one of the two rollup
// tables and is never caller-controlled.
func (s *Store) applyDelta(ctx context.Context, table string, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET quantity     = MAX(0, quantity + ?),
		    gross_weight = MAX(0, ROUND(gross_weight + ?, 3)),
		    fine_weight  = MAX(0, ROUND(fine_weight + ?, 3))
		WHERE id = ? AND tenant_id = ? AND location_id = ?
		RETURNING quantity, gross_weight, fine_weight
	`, table)

	var t ir.Totals
	err := s.db.QueryRowContext(ctx, query,
		d.Quantity, d.GrossWeight, d.FineWeight,
		id, scope.TenantID, scope.LocationID,
	).Scan(&t.Quantity, &t.GrossWeight, &t.FineWeight)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Totals{}, ErrNotFound
	}
	if err != nil {
		return ir.Totals{}, err
	}
	s.feed.notify(scope)
	return t, nil
}

// WriteRollups overwrites cached totals with recomputed values in a single
// transaction. Ids absent from the maps are left untouched.
func (s *Store) WriteRollups(ctx context.Context, scope ir.Scope, subs, cats map[string]ir.Totals) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := writeTotals(ctx, tx, "sub_categories", scope, subs); err != nil {
			return err
		}
		return writeTotals(ctx, tx, "categories", scope, cats)
	})
	if err != nil {
		return fmt.Errorf("write rollups: %w", err)
	}
	s.feed.notify(scope)
	return nil
}

func writeTotals(ctx context.Context, tx *sql.Tx, table string, scope ir.Scope, totals map[string]ir.Totals) error {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET quantity = ?, gross_weight = ?, fine_weight = ?
		WHERE id = ? AND tenant_id = ? AND location_id = ?
	`, table))
	if err != nil {
		return fmt.Errorf("prepare %s update: %w", table, err)
	}
	defer stmt.Close()

	for _, id := range sortedKeys(totals) {
		t := totals[id]
		if _, err := stmt.ExecContext(ctx,
			t.Quantity, ir.Round3(t.GrossWeight), ir.Round3(t.FineWeight),
			id, scope.TenantID, scope.LocationID,
		); err != nil {
			return fmt.Errorf("update %s %s: %w", table, id, err)
		}
	}
	return nil
}

// RestoreItems writes item rows directly, replacing rows with the same id in
// the same scope. An id held by another scope fails the whole batch with
// ErrForeignScope and writes nothing.
//
// This is the bulk path used by restore/sync: it bypasses the coordinator and
// leaves cached rollups stale. Callers must run a reconciliation afterwards.
func (s *Store) RestoreItems(ctx context.Context, items []ir.Item) error {
	scopes := make(map[ir.Scope]struct{})
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT"+itemInsertSQL+itemRestoreConflictSQL)
		if err != nil {
			return fmt.Errorf("prepare item restore: %w", err)
		}
		defer stmt.Close()

		for _, it := range items {
			res, err := stmt.ExecContext(ctx, itemArgs(it)...)
			if err != nil {
				return fmt.Errorf("restore item %s: %w", it.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("restore item %s: rows affected: %w", it.ID, err)
			}
			if n == 0 {
				return fmt.Errorf("restore item %s into %s: %w", it.ID, it.Scope, ErrForeignScope)
			}
			scopes[it.Scope] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore items: %w", err)
	}
	for scope := range scopes {
		s.feed.notify(scope)
	}
	return nil
}

// itemInsertSQL follows the INSERT verb.
const itemInsertSQL = ` INTO items
	(id, tenant_id, location_id, category_id, sub_category_id, name,
	 quantity, gross_weight, net_weight, fine_weight, purity, charge_type,
	 charge_amount, tax_rate, huid, entry_type, source_firm_id,
	 source_purchase_order_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// itemRestoreConflictSQL updates an existing row only when it is in the same
// scope; otherwise the statement changes nothing.
const itemRestoreConflictSQL = ` ON CONFLICT(id) DO UPDATE SET
	category_id              = excluded.category_id,
	sub_category_id          = excluded.sub_category_id,
	name                     = excluded.name,
	quantity                 = excluded.quantity,
	gross_weight             = excluded.gross_weight,
	net_weight               = excluded.net_weight,
	fine_weight              = excluded.fine_weight,
	purity                   = excluded.purity,
	charge_type              = excluded.charge_type,
	charge_amount            = excluded.charge_amount,
	tax_rate                 = excluded.tax_rate,
	huid                     = excluded.huid,
	entry_type               = excluded.entry_type,
	source_firm_id           = excluded.source_firm_id,
	source_purchase_order_id = excluded.source_purchase_order_id,
	created_at               = excluded.created_at
	WHERE items.tenant_id = excluded.tenant_id AND items.location_id = excluded.location_id
`

func itemArgs(it ir.Item) []any {
	return []any{
		it.ID,
		it.Scope.TenantID,
		it.Scope.LocationID,
		it.CategoryID,
		it.SubCategoryID,
		ir.NormalizeName(it.Name),
		it.Quantity,
		ir.Round3(it.GrossWeight),
		ir.Round3(it.NetWeight),
		ir.Round3(it.FineWeight),
		string(it.Purity),
		string(it.ChargeType),
		it.ChargeAmount,
		it.TaxRate,
		it.HUID,
		string(it.EntryType),
		it.SourceFirmID,
		it.SourcePurchaseOrderID,
		toMillis(it.CreatedAt),
	}
}

// mapConstraint converts a UNIQUE violation into ErrAlreadyExists.
func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}
	return err
}
