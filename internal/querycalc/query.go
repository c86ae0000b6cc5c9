package querycalc

import (
	"slices"

	"github.com/roach88/cdlcore/internal/idset"
	"github.com/roach88/cdlcore/internal/memindex"
	"github.com/roach88/cdlcore/internal/queryir"
)

// projState is a result's view of one projection carrying node: a
// projection, or an intersection with projections below it. Its members
// are the node's projection matches for the result.
type projState struct {
	calc     *calcNode
	parent   *projState
	children []*projState

	// explicit states keep their members in set; implicit ones derive
	// them from the indexer on demand.
	explicit bool
	set      *idset.IntStorage
}

// QueryResult applies a query to the matches of its data object.
//
// Without projections its matches are the selected data elements: data
// object matches under which the query's selections hold. With
// projections its matches are the union of the projection matches.
type QueryResult struct {
	resultBase
	query queryir.Query

	root       *rootCalc
	dataPath   memindex.PathID
	active     bool
	restricted bool
	suspended  bool

	inData   idset.IntStorage
	selected idset.IntStorage

	states   map[CalcID]*projState
	top      []*projState
	ordered  []*projState
	projects []*projState
	out      map[int64]int
}

// NewQueryResult creates a result applying q. It has no matches until it
// is given a data object.
func (g *Graph) NewQueryResult(q queryir.Query) (*QueryResult, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return nil, err
	}
	r := &QueryResult{
		resultBase: g.newBase("query " + queryir.Format(q)),
		query:      q,
		out:        make(map[int64]int),
	}
	g.add(r)
	return r, nil
}

// Query returns the applied query.
func (q *QueryResult) Query() queryir.Query { return q.query }

// IsMatchTransparent implements MatchSource.
func (q *QueryResult) IsMatchTransparent() bool { return false }

// Matches implements MatchSource.
func (q *QueryResult) Matches() []int64 {
	switch {
	case !q.active:
		return nil
	case len(q.projects) == 0:
		return idset.SortedIDs(&q.selected)
	case q.suspended:
		return nil
	case len(q.projects) == 1:
		return q.members(q.projects[0])
	default:
		return sortedKeys(q.out)
	}
}

// MatchPath implements MatchSource.
func (q *QueryResult) MatchPath() (memindex.PathID, bool) {
	if !q.active {
		return 0, false
	}
	if len(q.projects) == 0 {
		return q.dataPath, true
	}
	p := q.projects[0].calc.path
	for _, ps := range q.projects[1:] {
		if ps.calc.path != p {
			return 0, false
		}
	}
	return p, true
}

// CompInfo implements OrderingSource. Projected matches are ordered by
// the data elements they lie under.
func (q *QueryResult) CompInfo() *CompInfo {
	info := q.dataCompInfo()
	if info == nil || len(q.projects) == 0 {
		return info
	}
	return info.raised(q.g.idx)
}

// IsRestricted reports whether the data object delivers only some of the
// elements at its path.
func (q *QueryResult) IsRestricted() bool { return q.restricted }

// Selected returns the selected data elements.
func (q *QueryResult) Selected() []int64 { return idset.SortedIDs(&q.selected) }

// ProjectionCalcs returns the projection nodes of the query in query
// order.
func (q *QueryResult) ProjectionCalcs() []CalcID {
	out := make([]CalcID, len(q.projects))
	for i, ps := range q.projects {
		out[i] = ps.calc.id
	}
	return out
}

// GetProjMatches returns the projection matches of node c.
func (q *QueryResult) GetProjMatches(c CalcID) []int64 {
	ps := q.states[c]
	if ps == nil || q.suspended {
		return nil
	}
	return q.members(ps)
}

// HasExplicitProjMatches reports whether the projection matches of node c
// are kept explicitly rather than derived from the indexer.
func (q *QueryResult) HasExplicitProjMatches(c CalcID) bool {
	ps := q.states[c]
	return ps != nil && ps.set != nil
}

// MustGenerateMatches reports whether node c registers with the indexer
// on behalf of this result.
func (q *QueryResult) MustGenerateMatches(c CalcID) bool {
	ps := q.states[c]
	return ps != nil && ps.calc.mustGenerate[q.id]
}

// IsSuspendedProjection reports whether projection matching is suspended.
func (q *QueryResult) IsSuspendedProjection() bool { return q.suspended }

// SuspendProjMatches stops maintaining projection matches. The result
// reports no matches until UnsuspendProjMatches.
func (q *QueryResult) SuspendProjMatches() {
	if q.suspended || len(q.projects) == 0 {
		return
	}
	before := q.Matches()
	q.suspended = true
	q.clearProjections()
	q.refreshProjMustGenerateMatches()
	q.g.log.Debug("projection suspended", "result", q.name)
	q.forwardDiff(before, q.Matches())
}

// UnsuspendProjMatches recomputes the projection matches and resumes
// maintaining them.
func (q *QueryResult) UnsuspendProjMatches() {
	if !q.suspended {
		return
	}
	before := q.Matches()
	q.suspended = false
	q.refreshProjMustGenerateMatches()
	q.recompute()
	q.g.log.Debug("projection resumed", "result", q.name)
	q.forwardDiff(before, q.Matches())
}

func (q *QueryResult) dataObjChanged() {
	before := q.Matches()
	q.teardown()
	q.setup()
	q.recompute()
	q.forwardDiff(before, q.Matches())
}

func (q *QueryResult) setup() {
	src := q.data()
	if src == nil {
		return
	}
	path, ok := src.MatchPath()
	if !ok {
		return
	}
	q.dataPath = path
	q.restricted = !q.g.unrestricted(q.dataObj)
	q.root = q.g.acquireRoot(q.query, path)
	q.root.results = append(q.root.results, q)
	q.active = true

	q.states = make(map[CalcID]*projState)
	for _, id := range q.root.ctxNodes {
		n := q.g.calcs[id]
		ps := &projState{calc: n}
		for p := n.parent; p != NoCalc; p = q.g.calcs[p].parent {
			if parent, ok := q.states[p]; ok {
				ps.parent = parent
				break
			}
		}
		if ps.parent == nil {
			q.top = append(q.top, ps)
		} else {
			ps.parent.children = append(ps.parent.children, ps)
		}
		q.states[id] = ps
		q.ordered = append(q.ordered, ps)
		if n.kind == kindProject {
			q.projects = append(q.projects, ps)
		}
	}
	for _, id := range q.g.idx.FilterDataNodesAtPath(path, src.Matches()) {
		q.inData.Add(id)
	}
	q.refreshProjMustGenerateMatches()
}

func (q *QueryResult) teardown() {
	if q.root == nil {
		return
	}
	q.removeResultProjMatches()
	q.root.results = slices.DeleteFunc(q.root.results, func(r *QueryResult) bool { return r == q })
	q.g.releaseRoot(q.root)
	q.root = nil
	q.active = false
	q.restricted = false
	q.states = nil
	q.top, q.ordered, q.projects = nil, nil, nil
	q.inData.Clear()
	q.selected.Clear()
}

func (q *QueryResult) release() {
	q.teardown()
}

// RefreshMatches recomputes every match of the result and forwards the
// difference to consumers.
func (q *QueryResult) RefreshMatches() {
	before := q.Matches()
	q.recompute()
	q.forwardDiff(before, q.Matches())
}

// recompute rebuilds the selected set and the projection matches from
// the data matches and the shared node state.
func (q *QueryResult) recompute() {
	q.selected.Clear()
	if !q.active {
		return
	}
	topSelecting := q.root.topSelecting()
	q.inData.Each(func(e int64) bool {
		if !topSelecting || q.root.raised[e] > 0 {
			q.selected.Add(e)
		}
		return true
	})
	q.clearProjections()
	if q.suspended {
		return
	}
	for _, ps := range q.ordered {
		if ps.explicit {
			q.materialize(ps)
		}
	}
	if len(q.projects) > 1 {
		for _, ps := range q.projects {
			for _, x := range q.members(ps) {
				q.out[x]++
			}
		}
	}
}

func (q *QueryResult) clearProjections() {
	for _, ps := range q.ordered {
		ps.set = nil
	}
	clear(q.out)
}

// materialize computes the explicit member set of ps from its parent.
func (q *QueryResult) materialize(ps *projState) {
	set := &idset.IntStorage{}
	for _, y := range q.parentMembers(ps) {
		for _, x := range q.g.idx.Descendants(y, ps.calc.path) {
			if ps.calc.accepts(x) {
				set.Add(x)
			}
		}
	}
	ps.set = set
}

func (q *QueryResult) parentMembers(ps *projState) []int64 {
	if ps.parent == nil {
		return idset.SortedIDs(&q.selected)
	}
	return q.members(ps.parent)
}

func (q *QueryResult) members(ps *projState) []int64 {
	if ps.set != nil {
		return idset.SortedIDs(ps.set)
	}
	if q.suspended || !q.active {
		return nil
	}
	return q.g.idx.GetAllMatches(ps.calc.path)
}

func (q *QueryResult) isMember(ps *projState, x int64) bool {
	if ps.set != nil {
		return ps.set.Has(x)
	}
	p, ok := q.g.idx.ElementPath(x)
	return ok && p == ps.calc.path
}

// parentHas reports whether x lies under a member of ps's parent context.
func (q *QueryResult) parentHas(ps *projState, x int64) bool {
	if ps.parent == nil {
		e := q.g.idx.Raise(x, q.dataPath)
		return e != 0 && q.selected.Has(e)
	}
	y := q.g.idx.Raise(x, ps.parent.calc.path)
	return y != 0 && q.isMember(ps.parent, y)
}

// refreshProjMustGenerateMatches re-derives, per projection carrying
// node, whether this result must generate the node's matches and whether
// it keeps them explicitly. Generation changes re-register with the
// indexer; explicit tracking changes materialize or drop member sets.
func (q *QueryResult) refreshProjMustGenerateMatches() {
	for _, ps := range q.ordered {
		n := ps.calc
		generate := q.active && !q.suspended && len(n.dom) == 0 && !(n.kind == kindAnd && n.selecting)
		n.setMustGenerate(q.id, generate)

		explicit := q.restricted || q.selectionAbove(ps) || !generate || n.path == q.contextPath(ps)
		if explicit == ps.explicit {
			continue
		}
		ps.explicit = explicit
		switch {
		case q.suspended || !q.active:
		case explicit:
			q.materialize(ps)
		default:
			ps.set = nil
		}
	}
}

// contextPath returns the path of the elements ps's parent context holds.
func (q *QueryResult) contextPath(ps *projState) memindex.PathID {
	if ps.parent == nil {
		return q.dataPath
	}
	return ps.parent.calc.path
}

func (q *QueryResult) selectionAbove(ps *projState) bool {
	for p := ps.parent; p != nil; p = p.parent {
		if p.calc.selecting {
			return true
		}
	}
	return false
}

// removeResultProjMatches drops the result's projection state and its
// generation registrations.
func (q *QueryResult) removeResultProjMatches() {
	for _, ps := range q.ordered {
		ps.calc.setMustGenerate(q.id, false)
		ps.explicit = false
	}
	q.clearProjections()
}

// AddMatches implements MatchConsumer.
func (q *QueryResult) AddMatches(ids []int64, _ ResultID) {
	if !q.active {
		return
	}
	topSelecting := q.root.topSelecting()
	var added []int64
	for _, e := range q.g.idx.FilterDataNodesAtPath(q.dataPath, ids) {
		if !q.inData.Add(e) {
			continue
		}
		if (!topSelecting || q.root.raised[e] > 0) && q.selected.Add(e) {
			added = append(added, e)
		}
	}
	q.selectedAdded(added)
}

// RemoveMatches implements MatchConsumer.
func (q *QueryResult) RemoveMatches(ids []int64, _ ResultID) {
	if !q.active {
		return
	}
	var removed []int64
	for _, e := range ids {
		if q.inData.Remove(e) && q.selected.Remove(e) {
			removed = append(removed, e)
		}
	}
	q.selectedRemoved(removed)
}

// RemoveAllMatches implements MatchConsumer.
func (q *QueryResult) RemoveAllMatches(_ ResultID) {
	if !q.active {
		return
	}
	before := q.Matches()
	q.inData.Clear()
	q.recompute()
	q.forwardDiff(before, q.Matches())
}

func (q *QueryResult) rootRaisedAdded(es []int64) {
	var added []int64
	for _, e := range es {
		if q.inData.Has(e) && q.selected.Add(e) {
			added = append(added, e)
		}
	}
	q.selectedAdded(added)
}

func (q *QueryResult) rootRaisedRemoved(es []int64) {
	var removed []int64
	for _, e := range es {
		if q.selected.Remove(e) {
			removed = append(removed, e)
		}
	}
	q.selectedRemoved(removed)
}

func (q *QueryResult) selectedAdded(es []int64) {
	if len(es) == 0 {
		return
	}
	if len(q.projects) == 0 {
		q.forwardAdd(sortIDs(es))
		return
	}
	if q.suspended {
		return
	}
	for _, ps := range q.top {
		q.parentAdded(ps, es)
	}
}

func (q *QueryResult) selectedRemoved(es []int64) {
	if len(es) == 0 {
		return
	}
	if len(q.projects) == 0 {
		q.forwardRemove(sortIDs(es))
		return
	}
	if q.suspended {
		return
	}
	for _, ps := range q.top {
		q.parentRemoved(ps, es)
	}
}

// parentAdded extends ps with the accepted elements below new parent
// context members ys.
//
// Implicit states track the indexer directly, so parent changes reach
// them through their own registration.
func (q *QueryResult) parentAdded(ps *projState, ys []int64) {
	if !ps.explicit {
		return
	}
	var xs []int64
	for _, y := range ys {
		for _, x := range q.g.idx.Descendants(y, ps.calc.path) {
			if ps.calc.accepts(x) {
				xs = append(xs, x)
			}
		}
	}
	q.addMembers(ps, xs)
}

// parentRemoved drops the members of ps below removed parent context
// members ys.
func (q *QueryResult) parentRemoved(ps *projState, ys []int64) {
	if !ps.explicit {
		return
	}
	var xs []int64
	for _, y := range ys {
		for _, x := range q.g.idx.Descendants(y, ps.calc.path) {
			if q.isMember(ps, x) {
				xs = append(xs, x)
			}
		}
	}
	q.removeMembers(ps, xs)
}

// candidatesAdded is called by node n when elements at its path may have
// become projection matches: the indexer reported them to a generating
// node, they gained the matches of every dominating sibling, or they
// became matches of a selecting intersection.
func (q *QueryResult) candidatesAdded(n *calcNode, xs []int64) {
	ps := q.states[n.id]
	if ps == nil || q.suspended {
		return
	}
	var ok []int64
	for _, x := range xs {
		if n.accepts(x) && q.parentHas(ps, x) {
			ok = append(ok, x)
		}
	}
	q.addMembers(ps, ok)
}

func (q *QueryResult) candidatesRemoved(n *calcNode, xs []int64) {
	ps := q.states[n.id]
	if ps == nil || q.suspended {
		return
	}
	var gone []int64
	for _, x := range xs {
		if q.isMember(ps, x) {
			gone = append(gone, x)
		}
	}
	q.removeMembers(ps, gone)
}

func (q *QueryResult) addMembers(ps *projState, xs []int64) {
	var added []int64
	for _, x := range xs {
		if ps.set != nil && !ps.set.Add(x) {
			continue
		}
		added = append(added, x)
	}
	if len(added) == 0 {
		return
	}
	if ps.calc.kind == kindProject {
		q.outAdd(added)
		return
	}
	for _, c := range ps.children {
		q.parentAdded(c, added)
	}
}

func (q *QueryResult) removeMembers(ps *projState, xs []int64) {
	var removed []int64
	for _, x := range xs {
		if ps.set != nil && !ps.set.Remove(x) {
			continue
		}
		removed = append(removed, x)
	}
	if len(removed) == 0 {
		return
	}
	if ps.calc.kind == kindProject {
		q.outRemove(removed)
		return
	}
	for _, c := range ps.children {
		q.parentRemoved(c, removed)
	}
}

func (q *QueryResult) outAdd(xs []int64) {
	if len(q.projects) == 1 {
		q.forwardAdd(sortIDs(xs))
		return
	}
	var added []int64
	for _, x := range xs {
		if q.out[x]++; q.out[x] == 1 {
			added = append(added, x)
		}
	}
	if len(added) > 0 {
		q.forwardAdd(sortIDs(added))
	}
}

func (q *QueryResult) outRemove(xs []int64) {
	if len(q.projects) == 1 {
		q.forwardRemove(sortIDs(xs))
		return
	}
	var removed []int64
	for _, x := range xs {
		if q.out[x] == 0 {
			continue
		}
		if q.out[x]--; q.out[x] == 0 {
			delete(q.out, x)
			removed = append(removed, x)
		}
	}
	if len(removed) > 0 {
		q.forwardRemove(sortIDs(removed))
	}
}

func sortIDs(ids []int64) []int64 {
	slices.Sort(ids)
	return ids
}
