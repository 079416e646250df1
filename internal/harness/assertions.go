package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/reconcile"
	"github.com/roach88/bullion/internal/store"
)

// AssertionContext gives assertions read access to the final state.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	Scope ir.Scope
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTotals:
		return assertTotals(a, actx)
	case AssertItemCount:
		return assertItemCount(a, actx)
	case AssertConsistent:
		return assertConsistent(actx)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertTotals(a Assertion, actx *AssertionContext) error {
	c, err := actx.Store.FindCategoryByName(actx.Ctx, actx.Scope, a.Category)
	if err != nil {
		return fmt.Errorf("category %q: %w", a.Category, err)
	}
	got, label := c.Totals, "category "+a.Category
	if a.SubCategory != "" {
		sc, err := actx.Store.FindSubCategoryByName(actx.Ctx, actx.Scope, c.ID, a.SubCategory)
		if err != nil {
			return fmt.Errorf("subcategory %q: %w", a.SubCategory, err)
		}
		got, label = sc.Totals, "subcategory "+a.Category+"/"+a.SubCategory
	}

	exp := a.Expect
	var diffs []string
	if exp.Quantity != nil && *exp.Quantity != got.Quantity {
		diffs = append(diffs, fmt.Sprintf("quantity %d != %d", got.Quantity, *exp.Quantity))
	}
	if exp.GrossWeight != nil && !ir.ApproxEqual(got.GrossWeight, *exp.GrossWeight) {
		diffs = append(diffs, fmt.Sprintf("gross_weight %.3f != %.3f", got.GrossWeight, *exp.GrossWeight))
	}
	if exp.FineWeight != nil && !ir.ApproxEqual(got.FineWeight, *exp.FineWeight) {
		diffs = append(diffs, fmt.Sprintf("fine_weight %.3f != %.3f", got.FineWeight, *exp.FineWeight))
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertTotals,
		Expected: fmt.Sprintf("%s totals to match", label),
		Actual:   strings.Join(diffs, ", "),
	}
}

func assertItemCount(a Assertion, actx *AssertionContext) error {
	items, err := actx.Store.ListItems(actx.Ctx, actx.Scope)
	if err != nil {
		return err
	}
	if len(items) != a.Count {
		return &AssertionError{
			Type:     AssertItemCount,
			Expected: fmt.Sprintf("%d items", a.Count),
			Actual:   fmt.Sprintf("%d items", len(items)),
		}
	}
	return nil
}

// assertConsistent recomputes every rollup and compares it with the cache.
func assertConsistent(actx *AssertionContext) error {
	cats, err := actx.Store.ListCategories(actx.Ctx, actx.Scope)
	if err != nil {
		return err
	}
	subs, err := actx.Store.ListSubCategories(actx.Ctx, actx.Scope)
	if err != nil {
		return err
	}
	items, err := actx.Store.ListItems(actx.Ctx, actx.Scope)
	if err != nil {
		return err
	}

	drift := reconcile.Compute(cats, subs, items).Drift(cats, subs)
	if len(drift) == 0 {
		return nil
	}
	rows := make([]string, len(drift))
	for i, d := range drift {
		rows[i] = fmt.Sprintf("%s %s cached=%+v computed=%+v", d.Level, d.Name, d.Cached, d.Computed)
	}
	return &AssertionError{
		Type:     AssertConsistent,
		Expected: "cached totals equal recomputed totals",
		Actual:   strings.Join(rows, "; "),
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == a.Op && (a.Outcome == "" || ev.Outcome == a.Outcome) {
			count++
		}
	}
	if count != a.Count {
		what := a.Op
		if a.Outcome != "" {
			what += " with outcome " + a.Outcome
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s %d times", what, a.Count),
			Actual:   fmt.Sprintf("%d times", count),
		}
	}
	return nil
}
