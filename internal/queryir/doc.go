// Package queryir describes item filters.
//
// A FilterConfig is what callers build: independent optional predicates, nil
// meaning "ignore". FilterConfig.Predicate lowers it into a small predicate
// IR that backends compile:
//
//	[FilterConfig] -> [Predicate IR] -> [querysql: SQLite WHERE fragment]
//
// The IR has three node types:
//   - Equals: field = value
//   - Range:  min <= field <= max, either bound optional
//   - And:    all children must hold (empty = always true)
//
// Predicate is a sealed interface using the marker method pattern, so
// backends can switch over every node type exhaustively. There is no OR:
// every predicate a caller supplies narrows the result.
//
// Fields are a closed set (Field constants). A backend maps each one to a
// column through a whitelist, so no caller text ever reaches SQL.
package queryir
