package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/metrics"
	"github.com/roach88/bullion/internal/store"
)

const (
	opInsert = "insert"
	opDelete = "delete"
	opUpdate = "update"
)

// InsertItem validates item, stamps it with scope, a new id and the clock's
// time, then runs the insert chain. It returns the stored item and its id.
//
// Validation and parent resolution happen before any write. A
// *WriteFailure past StageItem means the item row exists but one of the
// rollups does not include it yet.
func (c *Coordinator) InsertItem(ctx context.Context, scope ir.Scope, item ir.Item) (ir.Item, string, error) {
	start := time.Now()
	stored, err := c.insert(ctx, scope, item)
	c.metrics.ObserveMutation(opInsert, outcomeOf(err), time.Since(start))
	if err != nil {
		return ir.Item{}, "", err
	}
	return stored, stored.ID, nil
}

func (c *Coordinator) insert(ctx context.Context, scope ir.Scope, item ir.Item) (ir.Item, error) {
	item, err := prepareInsert(opInsert, scope, item)
	if err != nil {
		return ir.Item{}, err
	}

	release := c.gate.Shared(scope)
	defer release()

	sub, cat, err := c.resolveParents(ctx, scope, item.CategoryID, item.SubCategoryID)
	if err != nil {
		return ir.Item{}, err
	}
	return c.insertChain(ctx, item, sub, cat)
}

// insertChain runs the three insert stages. The caller holds the gate.
func (c *Coordinator) insertChain(ctx context.Context, item ir.Item, sub ir.SubCategory, cat ir.Category) (ir.Item, error) {
	unlock := c.lockChain(item.Scope, item.CategoryID, item.SubCategoryID)
	defer unlock()

	item.ID = c.ids.Generate()
	item.CreatedAt = c.clock.Now()

	if err := c.store.InsertItem(ctx, item); err != nil {
		return ir.Item{}, c.fail(opInsert, StageItem, item, err)
	}

	delta := item.Contribution()
	subTotals, err := c.store.ApplyDeltaToSubCategory(ctx, item.Scope, item.SubCategoryID, delta)
	if err != nil {
		return ir.Item{}, c.fail(opInsert, StageSubCategoryDelta, item, err)
	}
	catTotals, err := c.store.ApplyDeltaToCategory(ctx, item.Scope, item.CategoryID, delta)
	if err != nil {
		return ir.Item{}, c.fail(opInsert, StageCategoryDelta, item, err)
	}

	item.CategoryName = cat.Name
	item.SubCategoryName = sub.Name

	c.logger.Info("item inserted",
		"scope", item.Scope.String(),
		"item_id", item.ID,
		"category_id", item.CategoryID,
		"subcategory_id", item.SubCategoryID,
		"gross_weight", delta.GrossWeight,
	)
	c.logger.Debug("rollups after insert",
		"item_id", item.ID,
		"subcategory_gross", subTotals.GrossWeight,
		"category_gross", catTotals.GrossWeight,
	)
	return item, nil
}

// DeleteItem removes an item and subtracts its contribution from both
// rollups, clamping at zero.
//
// A missing item, or one already deleted by a concurrent call, returns
// (0, nil). categoryID and subCategoryID must match the item's stored
// parents when non-empty; empty values are taken from the stored item.
func (c *Coordinator) DeleteItem(ctx context.Context, scope ir.Scope, itemID, categoryID, subCategoryID string) (int64, error) {
	start := time.Now()
	n, err := c.delete(ctx, scope, itemID, categoryID, subCategoryID)

	outcome := outcomeOf(err)
	if err == nil && n == 0 {
		outcome = metrics.OutcomeNoop
	}
	c.metrics.ObserveMutation(opDelete, outcome, time.Since(start))
	return n, err
}

func (c *Coordinator) delete(ctx context.Context, scope ir.Scope, itemID, categoryID, subCategoryID string) (int64, error) {
	var fields []ir.FieldError
	if !scope.Valid() {
		fields = append(fields, ir.FieldError{Field: "scope", Message: "tenant and location are required"})
	}
	if itemID == "" {
		fields = append(fields, ir.FieldError{Field: "id", Message: "is required"})
	}
	if len(fields) > 0 {
		return 0, &ValidationError{Op: opDelete, Fields: fields}
	}

	release := c.gate.Shared(scope)
	defer release()

	return c.deleteChain(ctx, opDelete, scope, itemID, categoryID, subCategoryID)
}

// deleteChain runs the three delete stages. The caller holds the gate.
func (c *Coordinator) deleteChain(ctx context.Context, op string, scope ir.Scope, itemID, categoryID, subCategoryID string) (int64, error) {
	it, err := c.store.GetItem(ctx, scope, itemID)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Debug("delete of missing item is a no-op", "scope", scope.String(), "item_id", itemID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: load item %s: %w", op, itemID, err)
	}

	var mismatch []ir.FieldError
	if categoryID != "" && categoryID != it.CategoryID {
		mismatch = append(mismatch, ir.FieldError{Field: "category_id",
			Message: fmt.Sprintf("item belongs to category %s", it.CategoryID)})
	}
	if subCategoryID != "" && subCategoryID != it.SubCategoryID {
		mismatch = append(mismatch, ir.FieldError{Field: "subcategory_id",
			Message: fmt.Sprintf("item belongs to subcategory %s", it.SubCategoryID)})
	}
	if len(mismatch) > 0 {
		return 0, &ValidationError{Op: op, Fields: mismatch}
	}

	rollupCat, err := c.rollupCategory(ctx, op, scope, it)
	if err != nil {
		return 0, err
	}

	unlock := c.lockChain(scope, rollupCat, it.SubCategoryID)
	defer unlock()

	n, err := c.store.DeleteItem(ctx, scope, itemID)
	if err != nil {
		return 0, c.fail(op, StageItem, it, err)
	}
	if n == 0 {
		// Lost a race with another delete; it owns the compensation.
		c.logger.Debug("item already deleted", "scope", scope.String(), "item_id", itemID)
		return 0, nil
	}

	delta := it.Contribution().Neg()
	if _, err := c.store.ApplyDeltaToSubCategory(ctx, scope, it.SubCategoryID, delta); err != nil {
		return n, c.fail(op, StageSubCategoryDelta, it, err)
	}
	if _, err := c.store.ApplyDeltaToCategory(ctx, scope, rollupCat, delta); err != nil {
		return n, c.fail(op, StageCategoryDelta, it, err)
	}

	c.logger.Info("item deleted",
		"scope", scope.String(),
		"item_id", itemID,
		"category_id", it.CategoryID,
		"subcategory_id", it.SubCategoryID,
		"gross_weight", -delta.GrossWeight,
	)
	return n, nil
}

// rollupCategory returns the category whose rollup holds it: the parent of
// its subcategory, matching reconciliation. A missing subcategory falls back
// to the item's own category id.
func (c *Coordinator) rollupCategory(ctx context.Context, op string, scope ir.Scope, it ir.Item) (string, error) {
	sub, err := c.store.GetSubCategory(ctx, scope, it.SubCategoryID)
	if errors.Is(err, store.ErrNotFound) {
		return it.CategoryID, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: load subcategory %s: %w", op, it.SubCategoryID, err)
	}
	if sub.CategoryID != it.CategoryID {
		c.logger.Warn("misparented item, using subcategory's category",
			"scope", scope.String(),
			"item_id", it.ID,
			"category_id", it.CategoryID,
			"rollup_category_id", sub.CategoryID,
		)
	}
	return sub.CategoryID, nil
}

// UpdateItem replaces an item by deleting it and inserting item in its
// place. The replacement gets a new id and CreatedAt.
//
// The new values and parents are checked before the delete, so a rejected
// update leaves the original item untouched. A missing original is a
// *NotFoundError.
func (c *Coordinator) UpdateItem(ctx context.Context, scope ir.Scope, itemID string, item ir.Item) (ir.Item, string, error) {
	start := time.Now()
	stored, err := c.update(ctx, scope, itemID, item)
	c.metrics.ObserveMutation(opUpdate, outcomeOf(err), time.Since(start))
	if err != nil {
		return ir.Item{}, "", err
	}
	return stored, stored.ID, nil
}

func (c *Coordinator) update(ctx context.Context, scope ir.Scope, itemID string, item ir.Item) (ir.Item, error) {
	item, err := prepareInsert(opUpdate, scope, item)
	if err != nil {
		return ir.Item{}, err
	}
	if itemID == "" {
		return ir.Item{}, &ValidationError{Op: opUpdate, Fields: []ir.FieldError{{Field: "id", Message: "is required"}}}
	}

	release := c.gate.Shared(scope)
	defer release()

	sub, cat, err := c.resolveParents(ctx, scope, item.CategoryID, item.SubCategoryID)
	if err != nil {
		return ir.Item{}, err
	}

	n, err := c.deleteChain(ctx, opUpdate, scope, itemID, "", "")
	if err != nil {
		return ir.Item{}, err
	}
	if n == 0 {
		return ir.Item{}, &NotFoundError{Kind: "item", ID: itemID, Scope: scope}
	}
	return c.insertChain(ctx, item, sub, cat)
}

// prepareInsert normalizes and validates an item for insertion into scope.
func prepareInsert(op string, scope ir.Scope, item ir.Item) (ir.Item, error) {
	item.Scope = scope
	item.Name = ir.NormalizeName(item.Name)
	item.GrossWeight = ir.Round3(item.GrossWeight)
	item.NetWeight = ir.Round3(item.NetWeight)
	item.FineWeight = ir.Round3(item.FineWeight)

	var fields []ir.FieldError
	if !scope.Valid() {
		fields = append(fields, ir.FieldError{Field: "scope", Message: "tenant and location are required"})
	}
	fields = append(fields, item.Validate()...)
	if len(fields) > 0 {
		return ir.Item{}, &ValidationError{Op: op, Fields: fields}
	}
	return item, nil
}

// resolveParents loads the item's subcategory and category from scope and
// checks that the subcategory sits under the category.
func (c *Coordinator) resolveParents(ctx context.Context, scope ir.Scope, categoryID, subCategoryID string) (ir.SubCategory, ir.Category, error) {
	sub, err := c.store.GetSubCategory(ctx, scope, subCategoryID)
	if errors.Is(err, store.ErrNotFound) {
		return ir.SubCategory{}, ir.Category{}, &NotFoundError{Kind: "subcategory", ID: subCategoryID, Scope: scope}
	}
	if err != nil {
		return ir.SubCategory{}, ir.Category{}, fmt.Errorf("resolve subcategory %s: %w", subCategoryID, err)
	}
	if sub.CategoryID != categoryID {
		return ir.SubCategory{}, ir.Category{}, &NotFoundError{
			Kind: "subcategory", ID: subCategoryID, Scope: scope,
			Detail: fmt.Sprintf("not under category %s", categoryID),
		}
	}

	cat, err := c.store.GetCategory(ctx, scope, categoryID)
	if errors.Is(err, store.ErrNotFound) {
		return ir.SubCategory{}, ir.Category{}, &NotFoundError{Kind: "category", ID: categoryID, Scope: scope}
	}
	if err != nil {
		return ir.SubCategory{}, ir.Category{}, fmt.Errorf("resolve category %s: %w", categoryID, err)
	}
	return sub, cat, nil
}
