// Package store provides the SQLite-backed Hierarchy Store for bullion.
//
// The store owns three tables, each row carrying its owning scope
// (tenant_id, location_id):
//   - categories: top level, append-only, caches quantity/gross/fine totals
//   - sub_categories: children of a category, cache the sum of their items
//   - items: leaf inventory records
//
// # Critical Patterns
//
// Atomic deltas:
//   - ApplyDeltaToSubCategory / ApplyDeltaToCategory run a single
//     UPDATE ... SET f = MAX(0, ROUND(f + ?, 3)) statement
//   - Never read-then-write: two concurrent compensation chains against the
//     same row cannot lose each other's update
//   - Results are clamped at zero and rounded to 3 decimals inside SQLite
//
// Scoped access:
//   - Every read filters by (tenant_id, location_id); every write stamps it
//   - A row in another scope is indistinguishable from a missing row
//
// Deterministic reads:
//   - List queries ORDER BY id COLLATE BINARY ASC
//   - Item views ORDER BY created_at DESC, id COLLATE BINARY ASC
//
// Change feed:
//   - Every committed write signals Watch subscribers for the affected scope
//   - Signals coalesce (buffer of 1); subscribers re-read, they do not replay
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: parent references are deliberately NOT declared as
//     foreign keys; restore/sync may write rows out of order and
//     reconciliation must be able to observe orphans
package store
