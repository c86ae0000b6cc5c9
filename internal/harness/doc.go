// Package harness runs scripted scenarios against the query runtime.
//
// A scenario builds an element tree in an in-memory indexer, attaches
// named queries to it, applies a list of steps and checks assertions
// against the final state. Every step is recorded in a trace, which tests
// compare against golden files.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: cheap_items
//	description: "What this scenario validates"
//	data:
//	  - {label: a, attr: items}
//	  - {label: a.price, parent: a, attr: price, value: 3}
//	queries:
//	  - name: cheap
//	    source: items
//	    query: {path: price, select: [1, 2]}
//	    order: [{path: price, desc: true}]
//	steps:
//	  - set: {label: a.price, value: 1}
//	  - remove: a
//	  - interval: {op: add, id: 1, low: 0, high: 5}
//	  - write: {resource: prices, set: {a: 1}}
//	assertions:
//	  - {type: matches, query: cheap, elements: [b]}
//	  - {type: order, query: cheap, elements: [b]}
//	  - {type: coverings, coverings: ["[0,5]#1"]}
//	  - {type: resource_state, resource: prices, expect: {a: 1}}
//
// Query nodes take exactly one of select, project, and or or. Unknown
// fields are rejected.
//
// # Assertion Types
//
//   - matches: the query's output set, by element label
//   - order: the query's output in comparison order
//   - projection: the union of the query's projection matches
//   - no_redundant: the query never delivered a duplicate add or a
//     removal of an absent element
//   - coverings: the disjoint covering set, as interval strings
//   - resource_state: the elements (and optionally revision) of a
//     resource after all writes
//
// # Deterministic Testing
//
// Element IDs are allocated sequentially, resource writes use a fixed
// client ID, and resources live in an in-memory SQLite database, so the
// same scenario always produces the same trace.
package harness
