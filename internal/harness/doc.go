// Package harness runs YAML inventory scenarios against the real
// coordinator, reconciler and filter engine.
//
// # Scenario Format
//
//	name: delete_keeps_rollups_exact
//	description: "Deleting one of two items leaves the other's weight"
//	scope: { tenant_id: t1, location_id: shop-1 }
//	catalog: |
//	  category: Gold: subcategories: ["Ring"]
//	flow:
//	  - op: insert
//	    ref: A
//	    category: Gold
//	    subcategory: Ring
//	    item: { name: "Band", quantity: 1, gross_weight: 5.5, ... }
//	  - op: delete
//	    ref: A
//	    expect: { outcome: ok }
//	assertions:
//	  - type: totals
//	    category: Gold
//	    subcategory: Ring
//	    expect: { quantity: 0, gross_weight: 0 }
//
// Step ops are insert, delete, update, recalc, filter and corrupt. A step
// may set fail_at to a chain stage to make that stage's next write fail.
//
// Assertion types:
//
//   - totals: cached totals of a category, or a subcategory when named
//   - item_count: number of items in scope
//   - consistent: cached totals equal a from-scratch recomputation
//   - trace_count: number of steps with the given op (and outcome)
//
// # Determinism
//
// Every run uses a fresh in-memory store, sequential ids and a stepping
// clock, so the trace and final state are identical across runs and can be
// compared against golden files.
package harness
