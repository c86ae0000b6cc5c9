package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/cdlcore/internal/interval"
	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/memindex"
	"github.com/roach88/cdlcore/internal/querycalc"
	"github.com/roach88/cdlcore/internal/queryir"
	"github.com/roach88/cdlcore/internal/resource"
	"github.com/roach88/cdlcore/internal/testutil"
)

// Option configures a scenario run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes the runtime's structural logs to l. Runs are silent
// by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// queryRun is one attached query: a data source, the optional query and
// ordering stages, and a collector at the end of the chain.
type queryRun struct {
	spec      QuerySpec
	source    *querycalc.DataSource
	query     *querycalc.QueryResult
	ordered   *querycalc.OrderedResult
	collector *querycalc.Collector

	matches []int64
	order   []int64
}

// projections returns the query stage as a projection source, or nil
// when the run has no query stage.
func (q *queryRun) projections() querycalc.ProjectionSource {
	if q.query == nil {
		return nil
	}
	return q.query
}

// Harness holds the runtime state of one scenario execution.
type Harness struct {
	idx       *memindex.Index
	graph     *querycalc.Graph
	intervals *interval.PairwiseDisjoint
	store     *resource.Store
	manager   *resource.Manager
	logger    *slog.Logger

	labels  map[string]int64
	names   map[int64]string
	queries map[string]*queryRun
	order   []string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh indexer and in-memory database.
//
// Execution flow:
// 1. Load the element tree
// 2. Attach queries and record the initial output as step 0
// 3. Apply steps, settling the graph and recording a trace event each
// 4. Evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := resource.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	idx := memindex.New()
	h := &Harness{
		idx:   idx,
		graph: querycalc.NewGraph(idx, querycalc.WithLogger(o.logger)),
		store: st,
		manager: resource.NewManager(st,
			resource.WithClientIDGenerator(testutil.NewFixedClientIDs("")),
			resource.WithLogger(o.logger),
		),
		logger:  o.logger,
		labels:  make(map[string]int64),
		names:   make(map[int64]string),
		queries: make(map[string]*queryRun),
	}
	defer h.manager.Close()

	ctx := context.Background()
	result := NewResult()

	for i, e := range scenario.Data {
		if err := h.addElement(e); err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
	}
	for i, q := range scenario.Queries {
		if err := h.attach(q); err != nil {
			return nil, fmt.Errorf("queries[%d]: %w", i, err)
		}
	}
	h.graph.Settle()
	result.Trace = append(result.Trace, h.record(TraceEvent{Step: 0, Op: "load"}))

	for i, step := range scenario.Steps {
		ev, err := h.apply(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		ev.Step = i + 1
		h.graph.Settle()
		result.Trace = append(result.Trace, h.record(ev))
		h.logger.Debug("scenario step applied", "step", ev.Step, "op", ev.Op)
	}

	for _, msg := range EvaluateAssertions(ctx, h, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) addElement(e ElementSpec) error {
	if _, dup := h.labels[e.Label]; dup {
		return fmt.Errorf("label %q is in use", e.Label)
	}
	var parent int64
	if e.Parent != "" {
		var err error
		if parent, err = h.lookup(e.Parent); err != nil {
			return err
		}
	}
	value, err := toValue(e.Value)
	if err != nil {
		return fmt.Errorf("element %q: %w", e.Label, err)
	}
	id, err := h.idx.AddElement(parent, e.Attr, value)
	if err != nil {
		return fmt.Errorf("element %q: %w", e.Label, err)
	}
	h.labels[e.Label] = id
	h.names[id] = e.Label
	return nil
}

func (h *Harness) lookup(label string) (int64, error) {
	id, ok := h.labels[label]
	if !ok {
		return 0, fmt.Errorf("unknown element %q", label)
	}
	return id, nil
}

// attach builds source -> [query] -> [comparison -> ordered] -> collector.
func (h *Harness) attach(spec QuerySpec) error {
	q := &queryRun{spec: spec, source: h.graph.NewDataSource(spec.Source)}
	last := q.source.ID()

	if spec.Query != nil {
		expr, err := buildQuery(spec.Query)
		if err != nil {
			return fmt.Errorf("query %q: %w", spec.Name, err)
		}
		r, err := h.graph.NewQueryResult(expr)
		if err != nil {
			return fmt.Errorf("query %q: %w", spec.Name, err)
		}
		if err := h.graph.SetDataObj(r.ID(), last); err != nil {
			return err
		}
		q.query = r
		last = r.ID()
	}

	if len(spec.Order) > 0 {
		cmp := &querycalc.Comparison{}
		for _, k := range spec.Order {
			cmp.Keys = append(cmp.Keys, querycalc.SortKey{Path: k.Path, Descending: k.Desc})
		}
		comp := h.graph.NewCompResult(cmp)
		if err := h.graph.SetDataObj(comp.ID(), last); err != nil {
			return err
		}
		q.ordered = h.graph.NewOrderedResult()
		if err := h.graph.SetDataObj(q.ordered.ID(), comp.ID()); err != nil {
			return err
		}
		last = q.ordered.ID()
	}

	q.collector = h.graph.NewCollector()
	if err := h.graph.SetDataObj(q.collector.ID(), last); err != nil {
		return err
	}

	h.queries[spec.Name] = q
	h.order = append(h.order, spec.Name)
	return nil
}

func buildQuery(n *QueryNode) (queryir.Query, error) {
	switch {
	case n.Select != nil:
		var raw any
		if err := n.Select.Decode(&raw); err != nil {
			return nil, fmt.Errorf("select %q: %w", n.Path, err)
		}
		v, err := ir.FromGo(raw)
		if err != nil {
			return nil, fmt.Errorf("select %q: %w", n.Path, err)
		}
		return queryir.Select{Path: n.Path, Values: v}, nil
	case n.Project:
		return queryir.Project{Path: n.Path}, nil
	case n.And != nil:
		subs, err := buildSubs(n.And)
		if err != nil {
			return nil, err
		}
		return queryir.And{Path: n.Path, Subs: subs}, nil
	case n.Or != nil:
		subs, err := buildSubs(n.Or)
		if err != nil {
			return nil, err
		}
		return queryir.Or{Path: n.Path, Subs: subs}, nil
	default:
		return nil, fmt.Errorf("empty query node at %q", n.Path)
	}
}

func buildSubs(nodes []QueryNode) ([]queryir.Query, error) {
	subs := make([]queryir.Query, 0, len(nodes))
	for i := range nodes {
		q, err := buildQuery(&nodes[i])
		if err != nil {
			return nil, err
		}
		subs = append(subs, q)
	}
	return subs, nil
}

// toValue converts a YAML value; an absent value stays nil.
func toValue(raw any) (ir.Value, error) {
	if raw == nil {
		return nil, nil
	}
	return ir.FromGo(raw)
}

func (h *Harness) apply(ctx context.Context, step Step) (TraceEvent, error) {
	switch {
	case step.Add != nil:
		return TraceEvent{Op: "add " + step.Add.Label}, h.addElement(*step.Add)

	case step.Set != nil:
		id, err := h.lookup(step.Set.Label)
		if err != nil {
			return TraceEvent{}, err
		}
		v, err := ir.FromGo(step.Set.Value)
		if err != nil {
			return TraceEvent{}, fmt.Errorf("set %q: %w", step.Set.Label, err)
		}
		return TraceEvent{Op: "set " + step.Set.Label}, h.idx.SetValue(id, v)

	case step.Remove != "":
		id, err := h.lookup(step.Remove)
		if err != nil {
			return TraceEvent{}, err
		}
		if err := h.idx.RemoveElement(id); err != nil {
			return TraceEvent{}, err
		}
		h.forgetRemoved()
		return TraceEvent{Op: "remove " + step.Remove}, nil

	case step.Suspend != "":
		r, err := h.queryStage(step.Suspend)
		if err != nil {
			return TraceEvent{}, err
		}
		r.SuspendProjMatches()
		return TraceEvent{Op: "suspend " + step.Suspend}, nil

	case step.Unsuspend != "":
		r, err := h.queryStage(step.Unsuspend)
		if err != nil {
			return TraceEvent{}, err
		}
		r.UnsuspendProjMatches()
		return TraceEvent{Op: "unsuspend " + step.Unsuspend}, nil

	case step.Interval != nil:
		return h.applyInterval(*step.Interval)

	case step.Write != nil:
		return h.applyWrite(ctx, *step.Write)

	default:
		return TraceEvent{}, fmt.Errorf("empty step")
	}
}

// forgetRemoved drops the labels of elements the indexer no longer has.
func (h *Harness) forgetRemoved() {
	for label, id := range h.labels {
		if _, ok := h.idx.ElementPath(id); !ok {
			delete(h.labels, label)
		}
	}
}

func (h *Harness) queryStage(name string) (*querycalc.QueryResult, error) {
	q, err := h.query(name)
	if err != nil {
		return nil, err
	}
	if q.query == nil {
		return nil, fmt.Errorf("query %q has no query stage", name)
	}
	return q.query, nil
}

func (h *Harness) applyInterval(step IntervalStep) (TraceEvent, error) {
	if h.intervals == nil {
		h.intervals = interval.NewPairwiseDisjoint()
	}
	var (
		d   *interval.Delta
		err error
	)
	switch step.Op {
	case IntervalAdd:
		d, err = h.intervals.AddInterval(step.Low, step.LowOpen, step.High, step.HighOpen, step.ID)
	case IntervalRemove:
		d, err = h.intervals.RemoveInterval(step.ID)
	case IntervalModify:
		d, err = h.intervals.ModifyInterval(step.ID, step.Low, step.LowOpen, step.High, step.HighOpen)
	default:
		err = fmt.Errorf("unknown interval op %q", step.Op)
	}
	if err != nil {
		return TraceEvent{}, fmt.Errorf("interval %s %d: %w", step.Op, step.ID, err)
	}
	if err := h.intervals.Validate(); err != nil {
		return TraceEvent{}, fmt.Errorf("interval %s %d: %w", step.Op, step.ID, err)
	}
	return TraceEvent{Op: fmt.Sprintf("interval %s %d", step.Op, step.ID), Delta: formatDelta(d)}, nil
}

func formatDelta(d *interval.Delta) []string {
	if d == nil {
		return nil
	}
	var out []string
	if len(d.RemovedIntervals) > 0 {
		out = append(out, fmt.Sprintf("removed %v", d.RemovedIntervals))
	}
	if d.CoveringInterval != nil {
		out = append(out, "covering "+formatCovering(*d.CoveringInterval))
	}
	for _, c := range d.RestoredIntervals {
		out = append(out, "restored "+formatCovering(c))
	}
	if d.ModifiedInterval != nil {
		out = append(out, "modified "+formatCovering(*d.ModifiedInterval))
	}
	return out
}

func formatCovering(c interval.Covering) string {
	return fmt.Sprintf("%s %v", c.Interval, c.Members)
}

func (h *Harness) applyWrite(ctx context.Context, step WriteStep) (TraceEvent, error) {
	var changes []resource.Element
	for _, ident := range slices.Sorted(maps.Keys(step.Set)) {
		v, err := ir.FromGo(step.Set[ident])
		if err != nil {
			return TraceEvent{}, fmt.Errorf("write %q: element %q: %w", step.Resource, ident, err)
		}
		changes = append(changes, resource.Element{Ident: ident, Value: v})
	}
	for _, ident := range step.Delete {
		changes = append(changes, resource.Element{Ident: ident})
	}

	rev, err := h.manager.Write(ctx, step.Resource, changes).Wait(ctx)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("write %q: %w", step.Resource, err)
	}
	return TraceEvent{Op: "write " + step.Resource, Revision: rev}, nil
}

// record fills ev with the output changes of every query since the last
// recorded event.
func (h *Harness) record(ev TraceEvent) TraceEvent {
	for _, name := range h.order {
		q := h.queries[name]
		matches := q.collector.Matches()
		added, removed := diffIDs(q.matches, matches)
		qt := QueryTrace{Name: name, Added: h.labelsOf(added), Removed: h.labelsOf(removed)}
		q.matches = matches

		if q.ordered != nil {
			order := q.ordered.Elements()
			if !slices.Equal(order, q.order) {
				qt.Order = h.labelsOf(order)
				if qt.Order == nil {
					qt.Order = []string{}
				}
			}
			q.order = order
		}

		if qt.Added != nil || qt.Removed != nil || qt.Order != nil {
			ev.Queries = append(ev.Queries, qt)
		}
	}
	return ev
}

// label names an element by its scenario label, or by ID for elements
// added without one.
func (h *Harness) label(id int64) string {
	if name, ok := h.names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

func (h *Harness) labelsOf(ids []int64) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = h.label(id)
	}
	return out
}

// diffIDs compares two sorted ID lists.
func diffIDs(before, after []int64) (added, removed []int64) {
	i, j := 0, 0
	for i < len(before) || j < len(after) {
		switch {
		case j == len(after) || (i < len(before) && before[i] < after[j]):
			removed = append(removed, before[i])
			i++
		case i == len(before) || after[j] < before[i]:
			added = append(added, after[j])
			j++
		default:
			i++
			j++
		}
	}
	return added, removed
}
