// Package reconcile recomputes cached rollups from source rows.
//
// Compute is a pure function: Items -> SubCategory totals -> Category
// totals. Category totals are derived from the freshly computed subcategory
// totals, never by re-summing items, so an item can only reach a category
// through a subcategory that exists.
//
// Runner.RecalcAll reads a scope, calls Compute, and writes every value back
// in one transaction while holding the scope gate exclusively. Running it
// twice leaves identical state.
package reconcile
