package harness

import (
	"context"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bullion/internal/ir"
)

// snapshotState renders the final hierarchy with names and refs in place of
// generated ids, so it reads the same on every run.
func (h *Harness) snapshotState(ctx context.Context) (map[string]any, error) {
	cats, err := h.store.ListCategories(ctx, h.scope)
	if err != nil {
		return nil, err
	}
	subs, err := h.store.ListSubCategories(ctx, h.scope)
	if err != nil {
		return nil, err
	}
	items, err := h.store.ListItems(ctx, h.scope)
	if err != nil {
		return nil, err
	}

	subsByCat := make(map[string][]ir.SubCategory)
	for _, sc := range subs {
		subsByCat[sc.CategoryID] = append(subsByCat[sc.CategoryID], sc)
	}

	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	catList := make([]any, 0, len(cats))
	for _, c := range cats {
		children := subsByCat[c.ID]
		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
		subList := make([]any, 0, len(children))
		for _, sc := range children {
			entry := totalsMap(sc.Totals)
			entry["name"] = sc.Name
			subList = append(subList, entry)
		}
		entry := totalsMap(c.Totals)
		entry["name"] = c.Name
		entry["subcategories"] = subList
		catList = append(catList, entry)
	}

	itemList := make([]any, 0, len(items))
	for _, it := range items {
		itemList = append(itemList, map[string]any{
			"ref":          h.refOf(it.ID),
			"name":         it.Name,
			"category":     it.CategoryName,
			"subcategory":  it.SubCategoryName,
			"quantity":     it.Quantity,
			"gross_weight": it.GrossWeight,
			"fine_weight":  it.FineWeight,
		})
	}
	sort.Slice(itemList, func(i, j int) bool {
		return itemList[i].(map[string]any)["ref"].(string) < itemList[j].(map[string]any)["ref"].(string)
	})

	return map[string]any{
		"categories": catList,
		"items":      itemList,
	}, nil
}

// Snapshot renders result as canonical JSON for golden comparison.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"seq":     ev.Seq,
			"op":      ev.Op,
			"outcome": ev.Outcome,
		}
		if ev.Ref != "" {
			m["ref"] = ev.Ref
		}
		if ev.ItemID != "" {
			m["item_id"] = ev.ItemID
		}
		if ev.Stage != "" {
			m["stage"] = ev.Stage
		}
		if ev.Detail != nil {
			m["detail"] = ev.Detail
		}
		trace[i] = m
	}

	state := result.State
	if state == nil {
		state = map[string]any{}
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"trace":         trace,
		"state":         state,
	})
}

// RunWithGolden executes a scenario and compares its trace and final state
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
