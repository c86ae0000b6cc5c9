package querycalc

import (
	"cmp"
	"slices"

	"github.com/roach88/cdlcore/internal/memindex"
)

// CompInfo describes how the matches a consumer receives are ordered.
// It is rebuilt on every request from the results between the consumer
// and the CompResults above it, and should not be kept across updates.
//
// The chain is: the nearest CompResult's own comparison, then on a tie
// the comparison it is itself composed under (dom). Raising maps
// projected elements up to the elements the comparison applies to;
// translations undo merge ID remapping. Both are applied to the
// comparator's inputs before the comparison sees them.
type CompInfo struct {
	result      ResultID
	compare     func(a, b int64) int
	dom         *CompInfo
	elemPath    memindex.PathID
	needToRaise bool
	raise       func(int64) int64

	// translations are applied outermost first when undoing.
	translations []memindex.Translation
}

// Result returns the CompResult defining this ordering.
func (c *CompInfo) Result() ResultID {
	if c == nil {
		return NoResult
	}
	return c.result
}

// Dominating returns the ordering this one falls back to on ties.
func (c *CompInfo) Dominating() *CompInfo {
	if c == nil {
		return nil
	}
	return c.dom
}

// NeedToRaise reports whether compared elements are raised first.
func (c *CompInfo) NeedToRaise() bool {
	return c != nil && c.needToRaise
}

// Translations returns the translations undone before comparing,
// outermost first.
func (c *CompInfo) Translations() []memindex.Translation {
	if c == nil {
		return nil
	}
	return slices.Clone(c.translations)
}

// direct reports whether the ordered elements are the compared elements
// at every level of the chain: nothing is raised or translated.
func (c *CompInfo) direct() bool {
	for ; c != nil; c = c.dom {
		if c.needToRaise || len(c.translations) > 0 {
			return false
		}
	}
	return true
}

// raised returns a copy whose inputs are raised to the compared
// elements' path.
func (c *CompInfo) raised(idx Indexer) *CompInfo {
	if c == nil || c.needToRaise {
		return c
	}
	out := *c
	out.needToRaise = true
	path := c.elemPath
	out.raise = func(id int64) int64 {
		if r := idx.Raise(id, path); r != 0 {
			return r
		}
		return id
	}
	return &out
}

// translated returns a copy whose inputs are first untranslated by tr.
func (c *CompInfo) translated(tr memindex.Translation) *CompInfo {
	if c == nil {
		return nil
	}
	out := *c
	out.translations = append([]memindex.Translation{tr}, c.translations...)
	return &out
}

// PartialCompareFunc returns the comparator without the ID tiebreak:
// distinct elements the chain cannot order compare as 0. A nil CompInfo
// orders nothing.
func (c *CompInfo) PartialCompareFunc() func(a, b int64) int {
	if c == nil {
		return func(int64, int64) int { return 0 }
	}
	f := c.compare
	if f == nil {
		f = func(int64, int64) int { return 0 }
	}
	if c.dom != nil {
		own, dom := f, c.dom.PartialCompareFunc()
		f = func(a, b int64) int {
			if r := own(a, b); r != 0 {
				return r
			}
			return dom(a, b)
		}
	}
	if c.needToRaise {
		inner, raise := f, c.raise
		f = func(a, b int64) int { return inner(raise(a), raise(b)) }
	}
	return untranslating(f, c.translations)
}

// GetCompareFunc returns a total order over element IDs: the chained
// comparison, then ID order.
func (c *CompInfo) GetCompareFunc() func(a, b int64) int {
	partial := c.PartialCompareFunc()
	return func(a, b int64) int {
		if a == b {
			return 0
		}
		if r := partial(a, b); r != 0 {
			return r
		}
		return cmp.Compare(a, b)
	}
}

// untranslating wraps f so it takes IDs translated by trs, outermost
// translation first.
func untranslating(f func(a, b int64) int, trs []memindex.Translation) func(a, b int64) int {
	if len(trs) == 0 {
		return f
	}
	trs = slices.Clone(trs)
	undo := func(id int64) int64 {
		for _, tr := range trs {
			id = tr.Untranslate(id)
		}
		return id
	}
	return func(a, b int64) int { return f(undo(a), undo(b)) }
}
