package querycalc

import (
	"slices"

	"github.com/roach88/cdlcore/internal/idset"
	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/memindex"
	"github.com/roach88/cdlcore/internal/queryir"
)

// CalcID is the handle of a query calculation node.
type CalcID int32

// NoCalc is the absent calculation node handle.
const NoCalc CalcID = -1

type calcKind int

const (
	kindSelect calcKind = iota
	kindAnd
	kindOr
	kindProject
)

func (k calcKind) String() string {
	switch k {
	case kindSelect:
		return "select"
	case kindAnd:
		return "and"
	case kindOr:
		return "or"
	default:
		return "project"
	}
}

// calcNode is one node of a compiled query. Its match state is shared by
// every result evaluating the query at the same data path; per result
// projection state lives in the QueryResult.
type calcNode struct {
	g        *Graph
	id       CalcID
	kind     calcKind
	root     *rootCalc
	path     memindex.PathID
	pathStr  string
	values   ir.Value
	parent   CalcID
	children []CalcID

	selecting  bool
	projecting bool

	// Matches of a selection, intersection or union.
	matches idset.IntStorage

	// Intersection and union state: per selecting child, how many of its
	// matches raise to each element, and how many children raise to it.
	selIndex  map[CalcID]int
	raised    []map[int64]int
	satisfied map[int64]int

	// Projection state: selection siblings dominating this projection and
	// the projection elements carrying their matches.
	dom       []CalcID
	dominates []CalcID
	domCounts map[int64][]int
	domSat    map[int64]int

	// mustGenerate caches, per result, whether this node registers with
	// the indexer for that result.
	mustGenerate map[ResultID]bool
	genCount     int
}

// AddIndexMatches implements memindex.Listener.
func (n *calcNode) AddIndexMatches(_ memindex.PathID, ids []int64) {
	if n.kind == kindSelect {
		for _, id := range ids {
			n.matches.Add(id)
		}
		n.matchesAdded(ids)
		return
	}
	for _, r := range slices.Clone(n.root.results) {
		if n.mustGenerate[r.id] {
			r.candidatesAdded(n, ids)
		}
	}
}

// RemoveIndexMatches implements memindex.Listener.
func (n *calcNode) RemoveIndexMatches(_ memindex.PathID, ids []int64) {
	if n.kind == kindSelect {
		for _, id := range ids {
			n.matches.Remove(id)
		}
		n.matchesRemoved(ids)
		return
	}
	for _, r := range slices.Clone(n.root.results) {
		if n.mustGenerate[r.id] {
			r.candidatesRemoved(n, ids)
		}
	}
}

func (n *calcNode) matchesAdded(ids []int64) {
	if n.parent == NoCalc {
		n.root.topAdded(ids)
	} else {
		n.g.calcs[n.parent].childAdded(n.id, ids)
	}
	for _, d := range n.dominates {
		n.g.calcs[d].domAdded(n.id, ids)
	}
	if n.kind == kindAnd && n.projecting {
		for _, r := range slices.Clone(n.root.results) {
			r.candidatesAdded(n, ids)
		}
	}
}

func (n *calcNode) matchesRemoved(ids []int64) {
	if n.parent == NoCalc {
		n.root.topRemoved(ids)
	} else {
		n.g.calcs[n.parent].childRemoved(n.id, ids)
	}
	for _, d := range n.dominates {
		n.g.calcs[d].domRemoved(n.id, ids)
	}
	if n.kind == kindAnd && n.projecting {
		for _, r := range slices.Clone(n.root.results) {
			r.candidatesRemoved(n, ids)
		}
	}
}

// childAdded raises new matches of child c to this node's path.
func (n *calcNode) childAdded(c CalcID, ids []int64) {
	i, ok := n.selIndex[c]
	if !ok {
		return
	}
	var added []int64
	for _, id := range ids {
		e := n.g.idx.Raise(id, n.path)
		if e == 0 {
			continue
		}
		n.raised[i][e]++
		if n.raised[i][e] != 1 {
			continue
		}
		n.satisfied[e]++
		if (n.kind == kindAnd && n.satisfied[e] == len(n.raised)) || (n.kind == kindOr && n.satisfied[e] == 1) {
			n.matches.Add(e)
			added = append(added, e)
		}
	}
	if len(added) > 0 {
		n.matchesAdded(added)
	}
}

func (n *calcNode) childRemoved(c CalcID, ids []int64) {
	i, ok := n.selIndex[c]
	if !ok {
		return
	}
	var removed []int64
	for _, id := range ids {
		e := n.g.idx.Raise(id, n.path)
		if e == 0 || n.raised[i][e] == 0 {
			continue
		}
		n.raised[i][e]--
		if n.raised[i][e] > 0 {
			continue
		}
		delete(n.raised[i], e)
		before := n.satisfied[e]
		if n.satisfied[e]--; n.satisfied[e] == 0 {
			delete(n.satisfied, e)
		}
		if (n.kind == kindAnd && before == len(n.raised)) || (n.kind == kindOr && before == 1) {
			n.matches.Remove(e)
			removed = append(removed, e)
		}
	}
	if len(removed) > 0 {
		n.matchesRemoved(removed)
	}
}

func (n *calcNode) domAdded(s CalcID, ids []int64) {
	i := slices.Index(n.dom, s)
	var added []int64
	for _, id := range ids {
		x := n.g.idx.Raise(id, n.path)
		if x == 0 {
			continue
		}
		counts := n.domCounts[x]
		if counts == nil {
			counts = make([]int, len(n.dom))
			n.domCounts[x] = counts
		}
		if counts[i]++; counts[i] != 1 {
			continue
		}
		if n.domSat[x]++; n.domSat[x] == len(n.dom) {
			added = append(added, x)
		}
	}
	if len(added) == 0 {
		return
	}
	for _, r := range slices.Clone(n.root.results) {
		r.candidatesAdded(n, added)
	}
}

func (n *calcNode) domRemoved(s CalcID, ids []int64) {
	i := slices.Index(n.dom, s)
	var removed []int64
	for _, id := range ids {
		x := n.g.idx.Raise(id, n.path)
		counts := n.domCounts[x]
		if x == 0 || counts == nil || counts[i] == 0 {
			continue
		}
		if counts[i]--; counts[i] > 0 {
			continue
		}
		before := n.domSat[x]
		if n.domSat[x]--; n.domSat[x] == 0 {
			delete(n.domSat, x)
			delete(n.domCounts, x)
		}
		if before == len(n.dom) {
			removed = append(removed, x)
		}
	}
	if len(removed) == 0 {
		return
	}
	for _, r := range slices.Clone(n.root.results) {
		r.candidatesRemoved(n, removed)
	}
}

// accepts reports whether element x at this node's path passes the
// node's own condition: carrying a match of every dominating sibling for
// a projection, being a match for a selecting intersection.
func (n *calcNode) accepts(x int64) bool {
	switch n.kind {
	case kindProject:
		return len(n.dom) == 0 || n.domSat[x] == len(n.dom)
	case kindAnd:
		return !n.selecting || n.matches.Has(x)
	default:
		return true
	}
}

// setMustGenerate updates the generation decision for result r,
// registering or unregistering with the indexer when the first result
// starts or the last one stops generating. It reports whether the
// decision changed.
func (n *calcNode) setMustGenerate(r ResultID, v bool) bool {
	if n.mustGenerate[r] == v {
		return false
	}
	if v {
		n.mustGenerate[r] = true
		if n.genCount++; n.genCount == 1 {
			n.g.idx.RegisterProjection(n.path, n)
			n.g.metrics.ProjectionRegistrations.Inc()
			n.g.log.Debug("projection generating", "path", n.pathStr)
		}
	} else {
		delete(n.mustGenerate, r)
		if n.genCount--; n.genCount == 0 {
			n.g.idx.UnregisterProjection(n.path, n)
			n.g.log.Debug("projection generation stopped", "path", n.pathStr)
		}
	}
	return true
}

// rootCalc owns the calculation nodes of one query compiled at one data
// path.
type rootCalc struct {
	g        *Graph
	key      string
	refs     int
	query    queryir.Query
	dataPath memindex.PathID
	top      CalcID
	nodes    []CalcID
	// ctxNodes carry per result projection state, parents first.
	ctxNodes []CalcID
	projects []CalcID

	// raised counts the top node's matches raising to each data element.
	raised  map[int64]int
	results []*QueryResult
}

func rootKey(q queryir.Query, dataPath string) string {
	return queryir.Format(q) + "@" + dataPath
}

// acquireRoot returns the shared calculation nodes for q at dataPath,
// compiling them on first use.
func (g *Graph) acquireRoot(q queryir.Query, dataPath memindex.PathID) *rootCalc {
	key := rootKey(q, g.idx.PathString(dataPath))
	if r, ok := g.roots[key]; ok {
		r.refs++
		return r
	}
	r := &rootCalc{
		g:        g,
		key:      key,
		refs:     1,
		query:    q,
		dataPath: dataPath,
		raised:   make(map[int64]int),
	}
	r.top = r.build(q, NoCalc, g.idx.PathString(dataPath))
	r.linkDominating()
	g.roots[key] = r

	for _, id := range r.nodes {
		n := g.calcs[id]
		if n.kind != kindSelect {
			continue
		}
		if ids := g.idx.RegisterSelection(n.path, n.values, n); len(ids) > 0 {
			n.AddIndexMatches(n.path, ids)
		}
	}
	g.log.Debug("query compiled", "query", key, "nodes", len(r.nodes))
	return r
}

func (r *rootCalc) build(q queryir.Query, parent CalcID, base string) CalcID {
	g := r.g
	pathStr := queryir.JoinPath(base, q.NodePath())
	n := &calcNode{
		g:          g,
		id:         CalcID(len(g.calcs)),
		root:       r,
		path:       g.idx.PathID(pathStr),
		pathStr:    pathStr,
		parent:     parent,
		selecting:  queryir.HasSelection(q),
		projecting: queryir.HasProjection(q),
		domCounts:  make(map[int64][]int),
		domSat:     make(map[int64]int),

		mustGenerate: make(map[ResultID]bool),
	}
	g.calcs = append(g.calcs, n)
	r.nodes = append(r.nodes, n.id)

	switch q := q.(type) {
	case queryir.Select:
		n.kind = kindSelect
		n.values = q.Values
	case queryir.Project:
		n.kind = kindProject
		r.ctxNodes = append(r.ctxNodes, n.id)
		r.projects = append(r.projects, n.id)
	case queryir.And:
		n.kind = kindAnd
		if n.projecting {
			r.ctxNodes = append(r.ctxNodes, n.id)
		}
		r.buildChildren(n, q.Subs, base)
	case queryir.Or:
		n.kind = kindOr
		r.buildChildren(n, q.Subs, base)
	}
	return n.id
}

func (r *rootCalc) buildChildren(n *calcNode, subs []queryir.Query, base string) {
	n.selIndex = make(map[CalcID]int)
	n.satisfied = make(map[int64]int)
	for _, sub := range subs {
		c := r.build(sub, n.id, base)
		n.children = append(n.children, c)
		if r.g.calcs[c].selecting {
			n.selIndex[c] = len(n.raised)
			n.raised = append(n.raised, make(map[int64]int))
		}
	}
}

// linkDominating finds, for every projection, the selecting siblings
// whose path extends the projection's path.
func (r *rootCalc) linkDominating() {
	for _, id := range r.projects {
		p := r.g.calcs[id]
		if p.parent == NoCalc {
			continue
		}
		for _, sid := range r.g.calcs[p.parent].children {
			s := r.g.calcs[sid]
			if sid == id || !s.selecting || !queryir.Extends(s.pathStr, p.pathStr) {
				continue
			}
			p.dom = append(p.dom, sid)
			s.dominates = append(s.dominates, id)
		}
	}
}

func (r *rootCalc) topSelecting() bool {
	return r.g.calcs[r.top].selecting
}

func (r *rootCalc) topAdded(ids []int64) {
	var added []int64
	for _, id := range ids {
		e := r.g.idx.Raise(id, r.dataPath)
		if e == 0 {
			continue
		}
		if r.raised[e]++; r.raised[e] == 1 {
			added = append(added, e)
		}
	}
	if len(added) == 0 {
		return
	}
	for _, res := range slices.Clone(r.results) {
		res.rootRaisedAdded(added)
	}
}

func (r *rootCalc) topRemoved(ids []int64) {
	var removed []int64
	for _, id := range ids {
		e := r.g.idx.Raise(id, r.dataPath)
		if e == 0 || r.raised[e] == 0 {
			continue
		}
		if r.raised[e]--; r.raised[e] == 0 {
			delete(r.raised, e)
			removed = append(removed, e)
		}
	}
	if len(removed) == 0 {
		return
	}
	for _, res := range slices.Clone(r.results) {
		res.rootRaisedRemoved(removed)
	}
}

// releaseRoot drops one reference to r, unregistering its selections when
// the last one goes.
func (g *Graph) releaseRoot(r *rootCalc) {
	if r.refs--; r.refs > 0 {
		return
	}
	for _, id := range r.nodes {
		n := g.calcs[id]
		if n.kind == kindSelect {
			g.idx.UnregisterSelection(n.path, n.values, n)
		}
		if n.genCount > 0 {
			g.idx.UnregisterProjection(n.path, n)
		}
		g.calcs[id] = nil
	}
	delete(g.roots, r.key)
	g.log.Debug("query released", "query", r.key)
}
