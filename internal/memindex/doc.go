// Package memindex is an in-memory indexer of hierarchical data elements.
//
// Every element lives at an attribute path (interned as a PathID) below a
// parent element and may carry a simple value. Query calculation nodes
// register with the index to be told synchronously when elements appear,
// disappear or change value:
//
//   - a selection registration at (path, values) receives the elements at
//     path whose value matches values
//   - a projection registration at path receives every element at path
//   - a value registration at path is told when element values change
//
// Notifications are delivered in registration order. Removing an element
// removes its subtree deepest first, notifying while the removed data is
// still readable, so listeners can raise the removed elements.
package memindex
