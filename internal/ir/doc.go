// Package ir provides the value model shared by the rest of cdlcore.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Values are a closed union (Null, Bool, Number, String, Set) with a total
// order, qualifier matching and intersection, and a canonical JSON form
// used for fingerprints and golden files.
package ir
