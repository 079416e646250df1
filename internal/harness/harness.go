package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/bullion/internal/catalog"
	"github.com/roach88/bullion/internal/coordinator"
	"github.com/roach88/bullion/internal/filter"
	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/queryir"
	"github.com/roach88/bullion/internal/reconcile"
	"github.com/roach88/bullion/internal/store"
	"github.com/roach88/bullion/internal/testutil"
)

// filterWait bounds how long a filter step waits for its first snapshot.
const filterWait = 5 * time.Second

// Harness executes scenario steps against one store.
type Harness struct {
	store  *store.Store
	faults *faultyStore
	coord  *coordinator.Coordinator
	runner *reconcile.Runner
	filter *filter.Engine
	scope  ir.Scope
	logger *slog.Logger

	refs  map[string]string // ref -> item id
	names map[string]string // item id -> ref
}

// observed carries step facts checked by expect clauses.
type observed struct {
	items     []string
	drift     int
	anomalies int
}

// Run executes a scenario in a fresh in-memory store and returns the
// result. An error means the scenario could not be run at all (bad catalog,
// failing setup); failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat, err := catalog.CompileString(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	seeder := catalog.NewSeeder(st,
		catalog.WithIDGenerator(testutil.NewSequenceGenerator("row")),
		catalog.WithClock(testutil.NewStepClock(time.Time{}, time.Second)),
		catalog.WithLogger(quiet),
	)
	if _, err := seeder.Seed(ctx, scenario.Scope, cat); err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}

	faults := &faultyStore{Store: st}
	gate := coordinator.NewGate()
	eng := filter.New(st, filter.WithLogger(quiet))
	defer eng.Close()

	h := &Harness{
		store:  st,
		faults: faults,
		coord: coordinator.New(faults,
			coordinator.WithIDGenerator(testutil.NewSequenceGenerator("item")),
			coordinator.WithClock(testutil.NewStepClock(time.Time{}, time.Minute)),
			coordinator.WithGate(gate),
			coordinator.WithLogger(quiet),
		),
		runner: reconcile.NewRunner(st, reconcile.WithGate(gate), reconcile.WithLogger(quiet)),
		filter: eng,
		scope:  scenario.Scope,
		logger: quiet,
		refs:   make(map[string]string),
		names:  make(map[string]string),
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		ev, _, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if ev.Outcome != OutcomeOK && ev.Outcome != OutcomeNoop {
			return nil, fmt.Errorf("setup step %d (%s): outcome %s", i, step.Op, ev.Outcome)
		}
	}

	for i, step := range scenario.Flow {
		ev, obs, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		result.AddTrace(ev)
		if step.Expect != nil {
			for _, msg := range checkExpect(*step.Expect, ev, obs) {
				result.AddError(fmt.Sprintf("flow step %d (%s): %s", i, step.Op, msg))
			}
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Scope: scenario.Scope}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	state, err := h.snapshotState(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot state: %w", err)
	}
	result.State = state
	return result, nil
}

// execute runs one step. Coordinator rejections and write failures are
// outcomes, not errors; an error means the harness itself could not proceed.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, observed, error) {
	ev := TraceEvent{Op: step.Op, Ref: step.Ref, Outcome: OutcomeOK}
	var obs observed

	h.faults.arm(step.FailAt)
	defer h.faults.arm("")

	switch step.Op {
	case OpInsert:
		item := *step.Item
		item.CategoryID, item.SubCategoryID = h.resolveParents(ctx, step.Category, step.SubCategory)
		_, id, err := h.coord.InsertItem(ctx, h.scope, item)
		h.recordMutation(&ev, step.Ref, id, err)
		ev.Detail = h.parentTotals(ctx, item.CategoryID, item.SubCategoryID)

	case OpUpdate:
		oldID := h.lookup(step.Ref)
		item := *step.Item
		item.CategoryID, item.SubCategoryID = h.resolveParents(ctx, step.Category, step.SubCategory)
		_, id, err := h.coord.UpdateItem(ctx, h.scope, oldID, item)
		h.recordMutation(&ev, step.Ref, id, err)
		ev.Detail = h.parentTotals(ctx, item.CategoryID, item.SubCategoryID)

	case OpDelete:
		id := h.lookup(step.Ref)
		ev.ItemID = id
		var catID, subID string
		if step.Category != "" {
			catID, subID = h.resolveParents(ctx, step.Category, step.SubCategory)
		}
		before, _ := h.store.GetItem(ctx, h.scope, id)

		n, err := h.coord.DeleteItem(ctx, h.scope, id, catID, subID)
		h.recordOutcome(&ev, err)
		if err == nil && n == 0 {
			ev.Outcome = OutcomeNoop
		}
		if before.ID != "" {
			ev.Detail = h.parentTotals(ctx, before.CategoryID, before.SubCategoryID)
		}

	case OpRecalc:
		rep, err := h.runner.RecalcAll(ctx, h.scope)
		if err != nil {
			return ev, obs, fmt.Errorf("recalc: %w", err)
		}
		obs.drift, obs.anomalies = len(rep.Drift), len(rep.Anomalies)
		ev.Detail = map[string]any{
			"items":     rep.Items,
			"drift":     obs.drift,
			"anomalies": obs.anomalies,
		}

	case OpFilter:
		items, err := h.runFilter(ctx, step)
		if err != nil {
			ev.Outcome = "failed"
			ev.Detail = map[string]any{"error": err.Error()}
			break
		}
		obs.items = items
		list := make([]any, len(items))
		for i, ref := range items {
			list[i] = ref
		}
		ev.Detail = map[string]any{"items": list}

	case OpCorrupt:
		catID, subID := h.resolveParents(ctx, step.Category, step.SubCategory)
		totals := step.Totals.Totals()
		var err error
		if step.SubCategory != "" {
			err = h.store.WriteRollups(ctx, h.scope, map[string]ir.Totals{subID: totals}, nil)
		} else {
			err = h.store.WriteRollups(ctx, h.scope, nil, map[string]ir.Totals{catID: totals})
		}
		if err != nil {
			return ev, obs, fmt.Errorf("corrupt: %w", err)
		}

	default:
		return ev, obs, fmt.Errorf("unknown op %q", step.Op)
	}

	h.logger.Debug("step executed", "op", step.Op, "ref", step.Ref, "outcome", ev.Outcome)
	return ev, obs, nil
}

// recordMutation sets the outcome and binds ref to the item the step wrote.
// A write failure past the item stage still leaves a row behind.
func (h *Harness) recordMutation(ev *TraceEvent, ref, id string, err error) {
	h.recordOutcome(ev, err)

	var wf *coordinator.WriteFailure
	if errors.As(err, &wf) && wf.Stage != coordinator.StageItem {
		id = wf.ItemID
	}
	if id == "" {
		return
	}
	ev.ItemID = id
	if ref != "" {
		h.refs[ref] = id
		h.names[id] = ref
	}
}

func (h *Harness) recordOutcome(ev *TraceEvent, err error) {
	if err == nil {
		return
	}
	ev.Outcome = string(coordinator.CodeOf(err))
	if stage, ok := coordinator.StageOf(err); ok {
		ev.Stage = string(stage)
	}
}

// lookup maps ref to its bound item id, or returns ref itself.
func (h *Harness) lookup(ref string) string {
	if id, ok := h.refs[ref]; ok {
		return id
	}
	return ref
}

// refOf maps an item id back to its ref, or returns the id itself.
func (h *Harness) refOf(id string) string {
	if ref, ok := h.names[id]; ok {
		return ref
	}
	return id
}

// resolveParents maps category and subcategory names to ids. A name that
// does not resolve is passed through as an id, so scenarios can reference
// missing parents.
func (h *Harness) resolveParents(ctx context.Context, category, subCategory string) (string, string) {
	catID := category
	if c, err := h.store.FindCategoryByName(ctx, h.scope, category); err == nil {
		catID = c.ID
	}
	if subCategory == "" {
		return catID, ""
	}
	subID := subCategory
	if sc, err := h.store.FindSubCategoryByName(ctx, h.scope, catID, subCategory); err == nil {
		subID = sc.ID
	}
	return catID, subID
}

// parentTotals reads the cached totals of both parents after a step.
func (h *Harness) parentTotals(ctx context.Context, categoryID, subCategoryID string) map[string]any {
	detail := make(map[string]any)
	if sc, err := h.store.GetSubCategory(ctx, h.scope, subCategoryID); err == nil {
		detail["subcategory"] = totalsMap(sc.Totals)
	}
	if c, err := h.store.GetCategory(ctx, h.scope, categoryID); err == nil {
		detail["category"] = totalsMap(c.Totals)
	}
	if len(detail) == 0 {
		return nil
	}
	return detail
}

func (h *Harness) runFilter(ctx context.Context, step Step) ([]string, error) {
	var cfg queryir.FilterConfig
	if step.Filter != nil {
		cfg = *step.Filter
	}
	if step.Category != "" {
		catID, subID := h.resolveParents(ctx, step.Category, step.SubCategory)
		cfg.CategoryID = &catID
		if subID != "" {
			cfg.SubCategoryID = &subID
		}
	}

	sub := h.filter.Filter(ctx, "harness", h.scope, cfg)
	defer sub.Cancel()

	select {
	case snap, ok := <-sub.Updates():
		if !ok {
			return nil, errors.New("filter ended without a result")
		}
		if snap.Err != nil {
			return nil, snap.Err
		}
		refs := make([]string, len(snap.Items))
		for i, it := range snap.Items {
			refs[i] = h.refOf(it.ID)
		}
		return refs, nil
	case <-time.After(filterWait):
		return nil, errors.New("filter timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func checkExpect(exp Expect, ev TraceEvent, obs observed) []string {
	var errs []string
	if ev.Outcome != exp.Outcome {
		errs = append(errs, fmt.Sprintf("expected outcome %s, got %s", exp.Outcome, ev.Outcome))
	}
	if exp.Stage != "" && ev.Stage != string(exp.Stage) {
		errs = append(errs, fmt.Sprintf("expected stage %s, got %q", exp.Stage, ev.Stage))
	}
	if exp.Items != nil && !slices.Equal(exp.Items, obs.items) {
		errs = append(errs, fmt.Sprintf("expected items %v, got %v", exp.Items, obs.items))
	}
	if exp.Drift != nil && *exp.Drift != obs.drift {
		errs = append(errs, fmt.Sprintf("expected %d drift rows, got %d", *exp.Drift, obs.drift))
	}
	if exp.Anomalies != nil && *exp.Anomalies != obs.anomalies {
		errs = append(errs, fmt.Sprintf("expected %d anomalies, got %d", *exp.Anomalies, obs.anomalies))
	}
	return errs
}

func totalsMap(t ir.Totals) map[string]any {
	return map[string]any{
		"quantity":     t.Quantity,
		"gross_weight": t.GrossWeight,
		"fine_weight":  t.FineWeight,
	}
}
