package querycalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/memindex"
	"github.com/roach88/cdlcore/internal/queryir"
	"github.com/roach88/cdlcore/internal/testutil"
)

// attach creates a query result over source with a collector below it.
func attach(t *testing.T, g *Graph, source ResultID, q queryir.Query) (*QueryResult, *Collector) {
	t.Helper()
	r, err := g.NewQueryResult(q)
	require.NoError(t, err)
	require.NoError(t, g.SetDataObj(r.ID(), source))
	c := g.NewCollector()
	require.NoError(t, g.SetDataObj(c.ID(), r.ID()))
	return r, c
}

func TestSelectionQuery(t *testing.T) {
	s := newStore(t)
	a := s.item(1)
	b := s.item(2)
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")

	r, c := attach(t, g, ds.ID(), queryir.Select{Path: "price", Values: ir.Number(2)})
	assert.Equal(t, []int64{b}, r.Matches())
	assert.Equal(t, []int64{b}, c.Matches())

	s.set(s.at(a, "items.price")[0], ir.Number(2))
	assert.Equal(t, []int64{a, b}, c.Matches())

	d := s.item(2)
	assert.Equal(t, []int64{a, b, d}, c.Matches())

	s.remove(b)
	assert.Equal(t, []int64{a, d}, c.Matches())
	assert.Equal(t, []int64{a, d}, r.Selected())
	assert.Zero(t, c.Redundant())

	path, ok := r.MatchPath()
	require.True(t, ok)
	assert.Equal(t, "items", s.x.PathString(path))
}

func TestProjectionDominatedBySelection(t *testing.T) {
	s := newStore(t)
	s.item(1, "red", "blue")
	b := s.item(2, "blue")
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")

	q := queryir.And{Subs: []queryir.Query{
		queryir.Project{Path: "tags"},
		queryir.Select{Path: "tags.name", Values: ir.String("red")},
	}}
	r, c := attach(t, g, ds.ID(), q)
	assert.Equal(t, refResult(s.x, q, "items", s.all("items")), c.Matches())
	require.Len(t, c.Matches(), 1)

	blue := s.at(b, "items.tags.name")[0]
	s.set(blue, ir.String("red"))
	assert.Equal(t, refResult(s.x, q, "items", s.all("items")), c.Matches())
	assert.Len(t, c.Matches(), 2)

	proj := r.ProjectionCalcs()
	require.Len(t, proj, 1)
	assert.False(t, r.MustGenerateMatches(proj[0]), "dominated projections follow their selection")
	assert.True(t, r.HasExplicitProjMatches(proj[0]))
	assert.Zero(t, c.Redundant())
}

func TestExplicitAndImplicitProjectionAgree(t *testing.T) {
	s := newStore(t)
	s.item(1, "red")
	s.item(2, "blue", "green")
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")

	// Every item has a price, so the filter passes everything while
	// making its consumers restricted.
	filter, err := g.NewQueryResult(queryir.Select{Path: "price", Values: ir.True})
	require.NoError(t, err)
	require.NoError(t, g.SetDataObj(filter.ID(), ds.ID()))

	q := queryir.Project{Path: "tags.name"}
	open, oc := attach(t, g, ds.ID(), q)
	restricted, rc := attach(t, g, filter.ID(), q)

	proj := open.ProjectionCalcs()[0]
	assert.False(t, open.IsRestricted())
	assert.True(t, restricted.IsRestricted())
	assert.False(t, open.HasExplicitProjMatches(proj))
	assert.True(t, restricted.HasExplicitProjMatches(proj))
	assert.True(t, open.MustGenerateMatches(proj))
	assert.True(t, restricted.MustGenerateMatches(proj))
	assert.Len(t, g.roots, 2, "filter and projection queries")

	it := s.item(3, "red")
	s.tag(it, "blue")
	first := s.all("items")[0]
	s.remove(first)

	assert.Equal(t, oc.Matches(), rc.Matches())
	assert.Equal(t, refResult(s.x, q, "items", s.all("items")), oc.Matches())
	assert.Len(t, oc.Matches(), 4)
	assert.Zero(t, oc.Redundant())
	assert.Zero(t, rc.Redundant())
}

func TestNestedProjectionContext(t *testing.T) {
	s := newStore(t)
	s.item(1, "red", "blue")
	s.item(2, "red")
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")

	q := queryir.And{Subs: []queryir.Query{
		queryir.Select{Path: "price", Values: ir.Number(1)},
		queryir.And{Path: "tags", Subs: []queryir.Query{
			queryir.Select{Path: "tags.name", Values: ir.String("red")},
			queryir.Project{Path: "tags.name"},
		}},
	}}
	r, c := attach(t, g, ds.ID(), q)
	want := refResult(s.x, q, "items", s.all("items"))
	require.Len(t, want, 1)
	assert.Equal(t, want, c.Matches())

	for _, ps := range r.ProjectionCalcs() {
		assert.True(t, r.HasExplicitProjMatches(ps), "selection above the projection")
	}
}

func TestMultipleProjectionsUnion(t *testing.T) {
	s := newStore(t)
	a := s.item(1, "red")
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")

	q := queryir.And{Subs: []queryir.Query{
		queryir.Project{Path: "price"},
		queryir.Project{Path: "tags.name"},
	}}
	r, c := attach(t, g, ds.ID(), q)
	assert.Equal(t, refResult(s.x, q, "items", s.all("items")), c.Matches())
	assert.Len(t, c.Matches(), 2)
	_, ok := r.MatchPath()
	assert.False(t, ok, "projections at different paths")

	s.tag(a, "blue")
	s.remove(a)
	assert.Empty(t, c.Matches())
	assert.Zero(t, c.Redundant())
}

func TestSuspendProjMatches(t *testing.T) {
	s := newStore(t)
	a := s.item(1, "red")
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")

	r, c := attach(t, g, ds.ID(), queryir.Project{Path: "tags"})
	require.Len(t, c.Matches(), 1)
	proj := r.ProjectionCalcs()[0]

	r.SuspendProjMatches()
	assert.True(t, r.IsSuspendedProjection())
	assert.Empty(t, r.Matches())
	assert.Empty(t, c.Matches())
	assert.False(t, r.MustGenerateMatches(proj))
	assert.Empty(t, r.GetProjMatches(proj))

	s.tag(a, "blue")
	s.item(2, "green")
	assert.Empty(t, c.Matches())

	r.UnsuspendProjMatches()
	assert.False(t, r.IsSuspendedProjection())
	assert.Equal(t, s.all("items.tags"), c.Matches())
	assert.Equal(t, s.all("items.tags"), r.GetProjMatches(proj))
	assert.Zero(t, c.Redundant())

	// Suspension has no effect without projections.
	sel, _ := attach(t, g, ds.ID(), queryir.Select{Path: "price", Values: ir.Number(1)})
	sel.SuspendProjMatches()
	assert.False(t, sel.IsSuspendedProjection())
}

func TestSharedRootCalc(t *testing.T) {
	s := newStore(t)
	s.item(1)
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")

	q := queryir.Select{Path: "price", Values: ir.Number(1)}
	r1, _ := attach(t, g, ds.ID(), q)
	r2, _ := attach(t, g, ds.ID(), q)
	require.Len(t, g.roots, 1)
	assert.Equal(t, 2, r1.root.refs)

	require.NoError(t, g.Release(r2.ID()))
	assert.Equal(t, 1, r1.root.refs)
	require.NoError(t, g.Release(r1.ID()))
	assert.Empty(t, g.roots)
}

func TestSetDataObjErrors(t *testing.T) {
	s := newStore(t)
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")
	r, err := g.NewQueryResult(queryir.Project{Path: "tags"})
	require.NoError(t, err)

	err = g.SetDataObj(ds.ID(), r.ID())
	assert.ErrorIs(t, err, ErrNotConsumer)

	err = g.SetDataObj(r.ID(), 99)
	assert.ErrorIs(t, err, ErrUnknownResult)

	c := g.NewCollector()
	err = g.SetDataObj(r.ID(), c.ID())
	assert.ErrorIs(t, err, ErrNotSource)

	tr := g.NewTranslateResult(memindex.Offset(100))
	require.NoError(t, g.SetDataObj(tr.ID(), ds.ID()))
	err = g.SetDataObj(r.ID(), tr.ID())
	assert.ErrorIs(t, err, ErrTranslatedData)

	_, err = g.NewQueryResult(queryir.And{})
	assert.Error(t, err)
}

func TestReleaseDataObject(t *testing.T) {
	s := newStore(t)
	s.item(1, "red")
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")
	r, c := attach(t, g, ds.ID(), queryir.Project{Path: "tags.name"})
	require.NotEmpty(t, c.Matches())

	require.NoError(t, g.Release(ds.ID()))
	assert.Equal(t, NoResult, r.DataObj())
	assert.Empty(t, r.Matches())
	assert.Empty(t, c.Matches())
	assert.ErrorIs(t, g.Release(ds.ID()), ErrUnknownResult)

	_, ok := g.Result(ds.ID())
	assert.False(t, ok)
}

func TestQueryOverProjectedResult(t *testing.T) {
	s := newStore(t)
	a := s.item(1, "red", "blue")
	b := s.item(2, "red")
	c := s.item(3, "red")
	g := quietGraph(s.x)
	ds := g.NewDataSource("items")
	filter, err := g.NewQueryResult(queryir.Select{Path: "price", Values: ir.NewSet(ir.Number(1), ir.Number(2))})
	require.NoError(t, err)
	require.NoError(t, g.SetDataObj(filter.ID(), ds.ID()))
	tags, _ := attach(t, g, filter.ID(), queryir.Project{Path: "tags"})
	red, col := attach(t, g, tags.ID(), queryir.Select{Path: "name", Values: ir.String("red")})

	path, ok := red.MatchPath()
	require.True(t, ok)
	assert.Equal(t, "items.tags", s.x.PathString(path))
	assert.True(t, red.IsRestricted())

	redA, redB := s.at(a, "items.tags")[0], s.at(b, "items.tags")[0]
	assert.Equal(t, []int64{redA, redB}, col.Matches())
	assert.Equal(t, refResult(s.x, red.Query(), "items.tags", tags.Matches()), red.Matches())

	// c enters the filter, a leaves it.
	s.set(s.at(c, "items.price")[0], ir.Number(2))
	s.set(s.at(a, "items.price")[0], ir.Number(5))
	g.Settle()
	redC := s.at(c, "items.tags")[0]
	assert.Equal(t, []int64{redB, redC}, col.Matches())

	s.set(s.at(redB, "items.tags.name")[0], ir.String("green"))
	assert.Equal(t, []int64{redC}, col.Matches())
	assert.Equal(t, refResult(s.x, red.Query(), "items.tags", tags.Matches()), red.Matches())
	assert.Zero(t, col.Redundant())
}

func TestRandomUpdatesMatchReference(t *testing.T) {
	queries := []queryir.Query{
		queryir.Select{Path: "price", Values: ir.Number(1)},
		queryir.Select{Path: "price", Values: ir.NewSet(ir.Number(1), ir.Number(2))},
		queryir.Project{Path: "tags.name"},
		queryir.And{Subs: []queryir.Query{
			queryir.Select{Path: "price", Values: ir.Number(2)},
			queryir.Project{Path: "tags"},
		}},
		queryir.And{Subs: []queryir.Query{
			queryir.Project{Path: "tags"},
			queryir.Select{Path: "tags.name", Values: ir.String("red")},
		}},
		queryir.And{Subs: []queryir.Query{
			queryir.And{Path: "tags", Subs: []queryir.Query{
				queryir.Select{Path: "tags.name", Values: ir.String("red")},
				queryir.Project{Path: "tags.name"},
			}},
		}},
		queryir.Or{Subs: []queryir.Query{
			queryir.Select{Path: "price", Values: ir.Number(0)},
			queryir.Select{Path: "tags.name", Values: ir.String("blue")},
		}},
		queryir.And{Subs: []queryir.Query{
			queryir.Project{Path: "price"},
			queryir.And{Path: "tags", Subs: []queryir.Query{queryir.Project{Path: "tags.name"}}},
		}},
	}
	names := []string{"red", "blue", "green"}

	// Queries over the tags of the restricted items.
	tagQueries := []queryir.Query{
		queryir.Select{Path: "name", Values: ir.String("red")},
		queryir.Project{Path: "name"},
		queryir.And{Subs: []queryir.Query{
			queryir.Project{Path: "name"},
			queryir.Select{Path: "name", Values: ir.NewSet(ir.String("red"), ir.String("green"))},
		}},
	}

	type watched struct {
		r        *QueryResult
		c        *Collector
		source   ResultID
		dataPath string
		data     func() []int64
	}

	for seed := int64(1); seed <= 10; seed++ {
		rnd := testutil.NewRand(seed)
		s := newStore(t)
		g := quietGraph(s.x)
		ds := g.NewDataSource("items")
		filter, err := g.NewQueryResult(queryir.Select{Path: "price", Values: ir.NewSet(ir.Number(1), ir.Number(2))})
		require.NoError(t, err)
		require.NoError(t, g.SetDataObj(filter.ID(), ds.ID()))
		allItems := func() []int64 { return s.all("items") }

		var ws []watched
		for _, q := range queries {
			r, c := attach(t, g, ds.ID(), q)
			ws = append(ws, watched{r: r, c: c, source: ds.ID(), dataPath: "items", data: allItems})
			r, c = attach(t, g, filter.ID(), q)
			ws = append(ws, watched{r: r, c: c, source: filter.ID(), dataPath: "items", data: filter.Matches})
		}
		tags, tagsCol := attach(t, g, filter.ID(), queryir.Project{Path: "tags"})
		ws = append(ws, watched{r: tags, c: tagsCol, source: filter.ID(), dataPath: "items", data: filter.Matches})
		for _, q := range tagQueries {
			r, c := attach(t, g, tags.ID(), q)
			ws = append(ws, watched{r: r, c: c, source: tags.ID(), dataPath: "items.tags", data: tags.Matches})
		}
		excluded := false

		for step := 0; step < 150; step++ {
			switch op := rnd.Intn(10); {
			case op < 3:
				tags := make([]string, rnd.Intn(3))
				for i := range tags {
					tags[i] = names[rnd.Intn(len(names))]
				}
				s.item(rnd.Key(4), tags...)
			case op == 3:
				if it, ok := rnd.Pick(s.all("items")); ok {
					s.tag(it, names[rnd.Intn(len(names))])
				}
			case op == 4:
				if it, ok := rnd.Pick(s.all("items")); ok {
					s.remove(it)
				}
			case op == 5:
				if tg, ok := rnd.Pick(s.all("items.tags")); ok {
					s.remove(tg)
				}
			case op == 6:
				if p, ok := rnd.Pick(s.all("items.price")); ok {
					s.set(p, ir.Number(rnd.Key(4)))
				}
			case op == 7:
				if n, ok := rnd.Pick(s.all("items.tags.name")); ok {
					s.set(n, ir.String(names[rnd.Intn(len(names))]))
				}
			case op == 8:
				w := ws[rnd.Intn(len(ws))]
				if w.r.IsSuspendedProjection() {
					w.r.UnsuspendProjMatches()
				} else {
					w.r.SuspendProjMatches()
				}
			default:
				w := ws[rnd.Intn(len(ws))]
				require.NoError(t, g.SetDataObj(w.r.ID(), NoResult))
				require.NoError(t, g.SetDataObj(w.r.ID(), w.source))
			}
			g.Settle()
			excluded = excluded || len(filter.Matches()) < len(s.all("items"))

			for _, w := range ws {
				q := w.r.Query()
				var want []int64
				if !w.r.IsSuspendedProjection() {
					want = refResult(s.x, q, w.dataPath, w.data())
				}
				desc := describe(q, w.source != ds.ID())
				require.Equal(t, len(want), len(w.r.Matches()), "seed %d step %d %s", seed, step, desc)
				if len(want) > 0 {
					require.Equal(t, want, w.r.Matches(), "seed %d step %d %s", seed, step, desc)
					require.Equal(t, want, w.c.Matches(), "seed %d step %d %s", seed, step, desc)
				} else {
					require.Empty(t, w.c.Matches(), "seed %d step %d %s", seed, step, desc)
				}
				require.Zero(t, w.c.Redundant(), "seed %d step %d %s", seed, step, desc)
			}
		}
		require.True(t, excluded, "seed %d: the price filter never excluded an item", seed)
	}
}
