package querycalc

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/memindex"
	"github.com/roach88/cdlcore/internal/queryir"
)

// store wraps an index holding items with a price and named tags.
type store struct {
	t *testing.T
	x *memindex.Index
}

func newStore(t *testing.T) *store {
	return &store{t: t, x: memindex.New()}
}

func quietGraph(x *memindex.Index, opts ...Option) *Graph {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewGraph(x, opts...)
}

func (s *store) add(parent int64, attr string, v ir.Value) int64 {
	s.t.Helper()
	id, err := s.x.AddElement(parent, attr, v)
	require.NoError(s.t, err)
	return id
}

// item adds an item with a price and one tag per name.
func (s *store) item(price float64, tags ...string) int64 {
	s.t.Helper()
	it := s.add(0, "items", nil)
	s.add(it, "price", ir.Number(price))
	for _, name := range tags {
		s.tag(it, name)
	}
	return it
}

func (s *store) tag(item int64, name string) int64 {
	s.t.Helper()
	tg := s.add(item, "tags", nil)
	s.add(tg, "name", ir.String(name))
	return tg
}

func (s *store) at(id int64, path string) []int64 {
	return s.x.Descendants(id, s.x.PathID(path))
}

func (s *store) set(id int64, v ir.Value) {
	s.t.Helper()
	require.NoError(s.t, s.x.SetValue(id, v))
}

func (s *store) remove(id int64) {
	s.t.Helper()
	require.NoError(s.t, s.x.RemoveElement(id))
}

func (s *store) all(path string) []int64 {
	return s.x.GetAllMatches(s.x.PathID(path))
}

// refResult evaluates q over data by brute force.
func refResult(x *memindex.Index, q queryir.Query, dataPath string, data []int64) []int64 {
	dp := x.PathID(dataPath)
	var selected []int64
	if queryir.HasSelection(q) {
		top := refMatches(x, q, dataPath)
		for _, e := range data {
			if anyUnder(x, top, e, dp) {
				selected = append(selected, e)
			}
		}
	} else {
		selected = slices.Clone(data)
	}
	if !queryir.HasProjection(q) {
		slices.Sort(selected)
		return selected
	}
	out := map[int64]bool{}
	refProject(x, q, dataPath, setOf(selected), dp, nil, out)
	return sortedSet(out)
}

func refMatches(x *memindex.Index, q queryir.Query, base string) map[int64]bool {
	pid := x.PathID(queryir.JoinPath(base, q.NodePath()))
	out := map[int64]bool{}
	switch n := q.(type) {
	case queryir.Select:
		for _, id := range x.GetAllMatches(pid) {
			v, _ := x.Value(id)
			if ir.Matches(n.Values, v) {
				out[id] = true
			}
		}
	case queryir.And, queryir.Or:
		var sel []map[int64]bool
		for _, sub := range queryir.Subqueries(q) {
			if queryir.HasSelection(sub) {
				sel = append(sel, refMatches(x, sub, base))
			}
		}
		_, isAnd := q.(queryir.And)
		for _, e := range x.GetAllMatches(pid) {
			hit := 0
			for _, m := range sel {
				if anyUnder(x, m, e, pid) {
					hit++
				}
			}
			if (isAnd && hit == len(sel)) || (!isAnd && hit > 0) {
				out[e] = true
			}
		}
	}
	return out
}

func refProject(x *memindex.Index, q queryir.Query, base string, ctx map[int64]bool, ctxPath memindex.PathID, siblings []queryir.Query, out map[int64]bool) {
	path := queryir.JoinPath(base, q.NodePath())
	pid := x.PathID(path)
	accept := func(e int64) bool { return true }
	switch q.(type) {
	case queryir.Project:
		var doms []map[int64]bool
		for _, s := range siblings {
			if s == nil || !queryir.HasSelection(s) || !queryir.Extends(queryir.JoinPath(base, s.NodePath()), path) {
				continue
			}
			doms = append(doms, refMatches(x, s, base))
		}
		accept = func(e int64) bool {
			for _, m := range doms {
				if !anyUnder(x, m, e, pid) {
					return false
				}
			}
			return true
		}
	case queryir.And:
		if queryir.HasSelection(q) {
			own := refMatches(x, q, base)
			accept = func(e int64) bool { return own[e] }
		}
	}
	members := map[int64]bool{}
	for _, e := range x.GetAllMatches(pid) {
		if y := x.Raise(e, ctxPath); y != 0 && ctx[y] && accept(e) {
			members[e] = true
		}
	}
	if _, ok := q.(queryir.Project); ok {
		for e := range members {
			out[e] = true
		}
		return
	}
	subs := queryir.Subqueries(q)
	for i, sub := range subs {
		if !queryir.HasProjection(sub) {
			continue
		}
		others := slices.Clone(subs)
		others[i] = nil
		refProject(x, sub, base, members, pid, others, out)
	}
}

// anyUnder reports whether some member of m lies at or below e.
func anyUnder(x *memindex.Index, m map[int64]bool, e int64, path memindex.PathID) bool {
	for id := range m {
		if x.Raise(id, path) == e {
			return true
		}
	}
	return false
}

func setOf(ids []int64) map[int64]bool {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func sortedSet(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func describe(q queryir.Query, restricted bool) string {
	return fmt.Sprintf("%s restricted=%v", queryir.Format(q), restricted)
}
