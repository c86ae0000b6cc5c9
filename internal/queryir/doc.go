// Package queryir defines the structure of a data query: selections on
// attribute values, projections of attribute paths, and their
// intersection and union.
//
// Query is a sealed interface using the marker method pattern. Only types
// in this package implement it, so type switches in the query compiler
// are exhaustive:
//
//	switch q := query.(type) {
//	case Select:
//	    // register a selection with the indexer
//	case Project:
//	    // track projection matches
//	case And, Or:
//	    // combine sub-queries
//	}
//
// Paths are dotted attribute paths relative to the data object the query
// is applied to. The empty path is the data object itself. A child's path
// must extend its parent's.
//
// Semantics over a data tree:
//   - Select matches elements at its path whose value matches Values
//   - And matches elements at its path under which every selecting
//     sub-query matches
//   - Or matches elements at its path under which some sub-query matches
//   - Project marks the elements at its path as the query's output,
//     restricted to elements carrying a match of every selection sibling
//     whose path extends the projection path
//
// A query without projections outputs the selected data elements.
package queryir
