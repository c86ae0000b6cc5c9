package querycalc

import (
	"github.com/roach88/cdlcore/internal/memindex"
)

// CompResult defines the order of its data object's matches for the
// ordering consumers composed below it. It passes the matches through
// unchanged.
//
// The comparison is only watched for value changes while the result is
// order-active, that is while an OrderedResult depends on it.
type CompResult struct {
	resultBase
	comparison *Comparison
	calc       *CompCalc

	orderActive bool
	activePath  memindex.PathID
	activeCalc  *CompCalc
}

// NewCompResult creates a result ordering by c. A nil comparison leaves
// the order to the results above.
func (g *Graph) NewCompResult(c *Comparison) *CompResult {
	r := &CompResult{resultBase: g.newBase("comp")}
	g.add(r)
	r.install(c)
	return r
}

// Comparison returns the active comparison, or nil.
func (c *CompResult) Comparison() *Comparison { return c.comparison }

// CompCalc returns the compiled comparison, or nil.
func (c *CompResult) CompCalc() *CompCalc { return c.calc }

// IsOrderActive reports whether an ordering consumer depends on c.
func (c *CompResult) IsOrderActive() bool { return c.orderActive }

// IsMatchTransparent implements MatchSource.
func (c *CompResult) IsMatchTransparent() bool { return true }

// Matches implements MatchSource.
func (c *CompResult) Matches() []int64 { return c.dataMatches() }

// MatchPath implements MatchSource.
func (c *CompResult) MatchPath() (memindex.PathID, bool) {
	if src := c.data(); src != nil {
		return src.MatchPath()
	}
	return 0, false
}

// CompInfo implements OrderingSource.
func (c *CompResult) CompInfo() *CompInfo {
	dom := c.dataCompInfo()
	if c.calc == nil {
		return dom
	}
	path, _ := c.MatchPath()
	return &CompInfo{
		result:   c.id,
		compare:  untranslating(c.calc.GetCompareFunc(), c.g.inputTranslations(c.dataObj)),
		dom:      dom,
		elemPath: path,
	}
}

// SetComparison replaces the comparison. Ordering consumers below are
// refreshed before the next match delta is delivered.
func (c *CompResult) SetComparison(cmp *Comparison) {
	c.install(cmp)
	c.g.log.Debug("comparison set", "result", c.name, "comparison", cmp)
	if c.orderActive {
		c.g.requestRefreshBelow(c.id)
	}
}

// ResetCompCalc recompiles the current comparison, e.g. after the
// registry was told the compiled form is stale.
func (c *CompResult) ResetCompCalc() {
	c.install(c.comparison)
	if c.orderActive {
		c.g.requestRefreshBelow(c.id)
	}
}

func (c *CompResult) install(cmp *Comparison) {
	wasActive := c.orderActive
	c.setOrderActive(false)
	if c.calc != nil {
		c.calc.Release()
		c.calc = nil
	}
	c.comparison = nil
	if cmp != nil {
		copied := Comparison{Keys: append([]SortKey(nil), cmp.Keys...)}
		c.comparison = &copied
		c.calc = c.g.comps.Allocate(copied)
	}
	c.setOrderActive(wasActive)
}

// setOrderActive starts or stops watching the comparison's values at
// the current match path.
func (c *CompResult) setOrderActive(active bool) {
	path, ok := c.MatchPath()
	want := active && ok && c.calc != nil
	if c.activeCalc != nil && (!want || c.activeCalc != c.calc || c.activePath != path) {
		c.activeCalc.deactivate(c.activePath, c)
		c.activeCalc = nil
	}
	c.orderActive = active
	if want && c.activeCalc == nil {
		c.calc.activate(path, c)
		c.activeCalc, c.activePath = c.calc, path
	}
}

// valuesChanged is called by the comparison when the values compared
// for the elements ids changed, or with all set when it cannot tell
// which elements are affected. Consumers of translated input receive
// other IDs than the comparison reports, so they are fully refreshed.
func (c *CompResult) valuesChanged(ids []int64, all bool) {
	switch {
	case !c.orderActive:
	case all || len(c.g.inputTranslations(c.dataObj)) > 0:
		c.g.requestRefreshBelow(c.id)
	default:
		c.g.requestRepositionBelow(c.id, ids)
	}
}

// AddMatches implements MatchConsumer.
func (c *CompResult) AddMatches(ids []int64, _ ResultID) {
	c.syncActivation()
	c.forwardAdd(ids)
}

// RemoveMatches implements MatchConsumer.
func (c *CompResult) RemoveMatches(ids []int64, _ ResultID) {
	c.forwardRemove(ids)
}

// RemoveAllMatches implements MatchConsumer.
func (c *CompResult) RemoveAllMatches(_ ResultID) {
	c.forwardClear()
}

func (c *CompResult) syncActivation() {
	if c.orderActive {
		c.setOrderActive(true)
	}
}

func (c *CompResult) dataObjChanged() {
	c.syncActivation()
	c.forwardClear()
	c.forwardAdd(c.dataMatches())
}

func (c *CompResult) release() {
	c.setOrderActive(false)
	if c.calc != nil {
		c.calc.Release()
		c.calc = nil
	}
}
