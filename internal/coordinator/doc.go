// Package coordinator implements the Mutation Coordinator: the only path that
// adds or removes items while keeping the cached subcategory and category
// rollups consistent.
//
// Each mutation is a compensation chain of ordered stages:
//
//	InsertItem: write item -> +delta on subcategory -> +delta on category
//	DeleteItem: delete item -> -delta on subcategory -> -delta on category
//
// Stages are not wrapped in one transaction. Once the item row is committed,
// a failed later stage is reported as a *WriteFailure naming the stage and
// the item row is kept; Reconciliation can always repair the rollups from
// the items. Nothing is retried automatically.
//
// CONCURRENCY:
//
// Deltas are applied by the store as single indivisible statements, so
// concurrent chains against the same subcategory never lose updates and no
// lock is taken. When the store reports AtomicDeltas() == false, each chain
// runs under a striped mutex keyed by (scope, category, subcategory); chains
// on disjoint pairs still run in parallel.
//
// Every chain holds its scope's Gate in shared mode. Reconciliation takes the
// same gate exclusively, so a recalculation never interleaves with a chain
// in the same scope.
package coordinator
