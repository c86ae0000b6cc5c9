// Package querycalc is the incremental query propagation graph.
//
// A Graph holds two arenas addressed by integer handles:
//
//   - query calculation nodes (CalcID), one tree per compiled query and
//     data path, shared by every result evaluating that query there
//   - function results (ResultID): data sources, query results,
//     comparison results, ID translations, ordered results and collectors
//
// Results are linked by their data object. A result receives match deltas
// from its data object (AddMatches, RemoveMatches, RemoveAllMatches) and
// forwards its own deltas to its consumers; only structural changes
// (SetDataObj, suspension, comparison changes) recompute a match set from
// scratch.
//
// Ordering flows alongside matches. A CompResult holds a Comparison and is
// the ordering definition for everything composed below it; CompInfo
// chains the comparators of successive CompResults, adding raising and ID
// translation layers where results project or translate, and ends with
// element ID order so the combined comparator is total. A comparison
// change is announced to ordering consumers with RefreshOrdering before
// the next match delta is delivered. A change of compared values names
// the elements it affects; a Repositioner moves just those, other
// ordering consumers are refreshed.
//
// Graphs are single threaded. All propagation runs synchronously inside
// the indexer mutation that caused it.
package querycalc
