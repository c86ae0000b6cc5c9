package querycalc

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/memindex"
)

// Indexer is the data element store queries are evaluated against.
// memindex.Index implements it.
type Indexer interface {
	PathID(path string) memindex.PathID
	PathString(path memindex.PathID) string
	ElementPath(id int64) (memindex.PathID, bool)
	Value(id int64) (ir.Value, bool)
	Raise(id int64, path memindex.PathID) int64
	Descendants(id int64, path memindex.PathID) []int64
	GetAllMatches(path memindex.PathID) []int64
	FilterDataNodesAtPath(path memindex.PathID, ids []int64) []int64
	RegisterSelection(path memindex.PathID, values ir.Value, l memindex.Listener) []int64
	UnregisterSelection(path memindex.PathID, values ir.Value, l memindex.Listener)
	RegisterProjection(path memindex.PathID, l memindex.Listener) []int64
	UnregisterProjection(path memindex.PathID, l memindex.Listener)
	RegisterValues(path memindex.PathID, l memindex.ValueListener)
	UnregisterValues(path memindex.PathID, l memindex.ValueListener)
}

// ResultID is the handle of a function result.
type ResultID int32

// NoResult is the absent result handle.
const NoResult ResultID = -1

var (
	// ErrUnknownResult is returned for handles that were never allocated
	// or have been released.
	ErrUnknownResult = errors.New("unknown result")

	// ErrNotConsumer is returned when a result cannot take a data object.
	ErrNotConsumer = errors.New("result does not consume matches")

	// ErrNotSource is returned when a result cannot serve as a data object.
	ErrNotSource = errors.New("result does not provide matches")

	// ErrTranslatedData is returned when a query result is given a data
	// object whose element IDs are translated.
	ErrTranslatedData = errors.New("query results need untranslated data")
)

// MatchSource is a result other results can take as their data object.
type MatchSource interface {
	ID() ResultID
	// Matches returns the current matches in ascending ID order.
	Matches() []int64
	// MatchPath returns the path of the matched elements, or false when
	// there are no matches or they lie at different paths.
	MatchPath() (memindex.PathID, bool)
	// IsMatchTransparent reports whether the result forwards its data
	// object's matches unchanged.
	IsMatchTransparent() bool
}

// MatchConsumer receives match deltas from its data object.
type MatchConsumer interface {
	ID() ResultID
	AddMatches(ids []int64, source ResultID)
	RemoveMatches(ids []int64, source ResultID)
	RemoveAllMatches(source ResultID)
}

// ProjectionSource exposes per-projection matches of a query result.
type ProjectionSource interface {
	ProjectionCalcs() []CalcID
	GetProjMatches(c CalcID) []int64
	IsSuspendedProjection() bool
}

// OrderingSource defines the order of a result's matches.
type OrderingSource interface {
	CompInfo() *CompInfo
}

// OrderingConsumer is told when the order of its data changed.
type OrderingConsumer interface {
	RefreshOrdering()
}

// Repositioner is an ordering consumer that can move single elements
// whose compared values changed instead of rebuilding its order.
type Repositioner interface {
	OrderingConsumer
	RepositionElements(ids []int64)
}

// node is the arena entry behind a ResultID.
type node interface {
	ID() ResultID
	base() *resultBase
	// dataObjChanged recomputes the result after its data object was
	// replaced.
	dataObjChanged()
	release()
}

type resultBase struct {
	g         *Graph
	id        ResultID
	name      string
	dataObj   ResultID
	consumers []ResultID
}

func (b *resultBase) ID() ResultID      { return b.id }
func (b *resultBase) base() *resultBase { return b }

// DataObj returns the handle of the data object, or NoResult.
func (b *resultBase) DataObj() ResultID { return b.dataObj }

// Name returns the result's debug name.
func (b *resultBase) Name() string { return b.name }

// data returns the data object as a match source.
func (b *resultBase) data() MatchSource {
	if b.dataObj == NoResult {
		return nil
	}
	src, _ := b.g.results[b.dataObj].(MatchSource)
	return src
}

func (b *resultBase) dataMatches() []int64 {
	if src := b.data(); src != nil {
		return src.Matches()
	}
	return nil
}

func (b *resultBase) dataCompInfo() *CompInfo {
	if os, ok := b.data().(OrderingSource); ok {
		return os.CompInfo()
	}
	return nil
}

func (b *resultBase) forwardAdd(ids []int64) {
	b.g.forward(b.id, "add", func(c MatchConsumer) { c.AddMatches(ids, b.id) }, len(ids))
}

func (b *resultBase) forwardRemove(ids []int64) {
	b.g.forward(b.id, "remove", func(c MatchConsumer) { c.RemoveMatches(ids, b.id) }, len(ids))
}

func (b *resultBase) forwardClear() {
	b.g.forward(b.id, "clear", func(c MatchConsumer) { c.RemoveAllMatches(b.id) }, 1)
}

// forwardDiff forwards the difference between two sorted match lists.
func (b *resultBase) forwardDiff(before, after []int64) {
	removed, added := diffSorted(before, after)
	if len(removed) > 0 {
		b.forwardRemove(removed)
	}
	if len(added) > 0 {
		b.forwardAdd(added)
	}
}

// Option configures a Graph.
type Option func(*Graph)

// WithMetrics registers the graph's metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(g *Graph) {
		g.metrics = NewMetrics(reg)
	}
}

// WithLogger sets the logger for structural events.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		g.log = l
	}
}

// Graph owns the query calculation nodes and function results evaluated
// against one indexer.
type Graph struct {
	idx     Indexer
	results []node
	calcs   []*calcNode
	roots   map[string]*rootCalc
	comps   *CompCalcRegistry

	pendingOrder []ResultID
	pendingMoves map[ResultID][]int64
	moveOrder    []ResultID
	flushing     bool

	metrics *Metrics
	log     *slog.Logger
}

// NewGraph returns an empty graph over idx. Without WithMetrics the
// metrics go to a private registry.
func NewGraph(idx Indexer, opts ...Option) *Graph {
	g := &Graph{
		idx:   idx,
		roots: make(map[string]*rootCalc),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(prometheus.NewRegistry())
	}
	g.comps = NewCompCalcRegistry(idx)
	return g
}

// Indexer returns the graph's indexer.
func (g *Graph) Indexer() Indexer {
	return g.idx
}

// Metrics returns the graph's metrics.
func (g *Graph) Metrics() *Metrics {
	return g.metrics
}

// CompCalcs returns the registry of compiled comparisons.
func (g *Graph) CompCalcs() *CompCalcRegistry {
	return g.comps
}

func (g *Graph) add(n node) {
	n.base().id = ResultID(len(g.results))
	g.results = append(g.results, n)
}

func (g *Graph) newBase(name string) resultBase {
	return resultBase{g: g, name: name, dataObj: NoResult}
}

func (g *Graph) lookup(id ResultID) (node, error) {
	if id < 0 || int(id) >= len(g.results) || g.results[id] == nil {
		return nil, fmt.Errorf("result %d: %w", id, ErrUnknownResult)
	}
	return g.results[id], nil
}

// Result returns the result behind id.
func (g *Graph) Result(id ResultID) (MatchSource, bool) {
	n, err := g.lookup(id)
	if err != nil {
		return nil, false
	}
	src, ok := n.(MatchSource)
	return src, ok
}

// SetDataObj makes source the data object of consumer. NoResult detaches
// the consumer. The consumer recomputes its matches and forwards the
// difference.
func (g *Graph) SetDataObj(consumer, source ResultID) error {
	n, err := g.lookup(consumer)
	if err != nil {
		return err
	}
	if _, ok := n.(MatchConsumer); !ok {
		return fmt.Errorf("result %d: %w", consumer, ErrNotConsumer)
	}
	if source != NoResult {
		s, err := g.lookup(source)
		if err != nil {
			return err
		}
		if _, ok := s.(MatchSource); !ok {
			return fmt.Errorf("result %d: %w", source, ErrNotSource)
		}
		if _, ok := n.(*QueryResult); ok && g.translated(source) {
			return fmt.Errorf("result %d: %w", source, ErrTranslatedData)
		}
	}

	b := n.base()
	if b.dataObj == source {
		return nil
	}
	g.detach(b)
	b.dataObj = source
	if source != NoResult {
		sb := g.results[source].base()
		sb.consumers = append(sb.consumers, consumer)
	}
	g.log.Debug("data object set", "result", b.name, "data", source)
	n.dataObjChanged()
	g.updateOrderActivity()
	for _, c := range b.consumers {
		g.requestRefreshBelow(c)
	}
	return nil
}

func (g *Graph) detach(b *resultBase) {
	if b.dataObj == NoResult {
		return
	}
	if old := g.results[b.dataObj]; old != nil {
		ob := old.base()
		ob.consumers = slices.DeleteFunc(ob.consumers, func(c ResultID) bool { return c == b.id })
	}
	b.dataObj = NoResult
}

// Release detaches id from its data object and consumers and frees its
// registrations. Consumers see their data object disappear.
func (g *Graph) Release(id ResultID) error {
	n, err := g.lookup(id)
	if err != nil {
		return err
	}
	b := n.base()
	for _, c := range slices.Clone(b.consumers) {
		if err := g.SetDataObj(c, NoResult); err != nil {
			return err
		}
	}
	g.detach(b)
	n.release()
	g.results[id] = nil
	g.updateOrderActivity()
	return nil
}

// translated reports whether id's matches are translated element IDs.
func (g *Graph) translated(id ResultID) bool {
	for id != NoResult {
		n := g.results[id]
		if _, ok := n.(*TranslateResult); ok {
			return true
		}
		src, ok := n.(MatchSource)
		if !ok || !src.IsMatchTransparent() {
			return false
		}
		id = n.base().dataObj
	}
	return false
}

// inputTranslations returns the translations applied between the
// indexer and the matches id delivers, outermost first.
func (g *Graph) inputTranslations(id ResultID) []memindex.Translation {
	var out []memindex.Translation
	for id != NoResult {
		n := g.results[id]
		if t, ok := n.(*TranslateResult); ok {
			out = append(out, t.tr)
			id = t.dataObj
			continue
		}
		src, ok := n.(MatchSource)
		if !ok || !src.IsMatchTransparent() {
			break
		}
		id = n.base().dataObj
	}
	return out
}

// unrestricted reports whether id delivers every element at its path.
func (g *Graph) unrestricted(id ResultID) bool {
	for id != NoResult {
		n := g.results[id]
		if _, ok := n.(*DataSource); ok {
			return true
		}
		src, ok := n.(MatchSource)
		if !ok || !src.IsMatchTransparent() {
			return false
		}
		id = n.base().dataObj
	}
	return false
}

func (g *Graph) forward(from ResultID, op string, deliver func(MatchConsumer), n int) {
	if n == 0 {
		return
	}
	g.flushOrdering()
	b := g.results[from].base()
	for _, cid := range slices.Clone(b.consumers) {
		c, ok := g.results[cid].(MatchConsumer)
		if !ok {
			continue
		}
		g.metrics.DeltasForwarded.WithLabelValues(op).Inc()
		deliver(c)
	}
}

// requestRefreshBelow queues an ordering refresh for id and the ordering
// consumers composed below it.
func (g *Graph) requestRefreshBelow(id ResultID) {
	if !slices.Contains(g.pendingOrder, id) {
		g.pendingOrder = append(g.pendingOrder, id)
	}
}

// requestRepositionBelow queues the compared elements ids of id to be
// moved by the ordering consumers below it.
func (g *Graph) requestRepositionBelow(id ResultID, ids []int64) {
	if len(ids) == 0 {
		return
	}
	if g.pendingMoves == nil {
		g.pendingMoves = make(map[ResultID][]int64)
	}
	if _, ok := g.pendingMoves[id]; !ok {
		g.moveOrder = append(g.moveOrder, id)
	}
	g.pendingMoves[id] = append(g.pendingMoves[id], ids...)
}

// flushOrdering delivers queued RefreshOrdering notifications, then the
// queued repositions. A consumer refreshed in a round skips the
// repositions of that round.
func (g *Graph) flushOrdering() {
	if g.flushing || (len(g.pendingOrder) == 0 && len(g.moveOrder) == 0) {
		return
	}
	g.flushing = true
	defer func() { g.flushing = false }()
	for len(g.pendingOrder) > 0 || len(g.moveOrder) > 0 {
		pending, order, moves := g.pendingOrder, g.moveOrder, g.pendingMoves
		g.pendingOrder, g.moveOrder, g.pendingMoves = nil, nil, nil
		notified := make(map[ResultID]bool)
		for _, id := range pending {
			if g.live(id) {
				g.refreshBelow(id, notified)
			}
		}
		for _, id := range order {
			if g.live(id) {
				g.repositionBelow(id, moves[id], notified)
			}
		}
	}
}

func (g *Graph) live(id ResultID) bool {
	return int(id) < len(g.results) && g.results[id] != nil
}

func (g *Graph) repositionBelow(id ResultID, ids []int64, notified map[ResultID]bool) {
	n := g.results[id]
	if !notified[id] {
		switch oc := n.(type) {
		case Repositioner:
			oc.RepositionElements(ids)
		case OrderingConsumer:
			notified[id] = true
			g.metrics.OrderingRefreshes.Inc()
			oc.RefreshOrdering()
		}
	}
	for _, c := range n.base().consumers {
		g.repositionBelow(c, ids, notified)
	}
}

func (g *Graph) refreshBelow(id ResultID, notified map[ResultID]bool) {
	if notified[id] {
		return
	}
	notified[id] = true
	n := g.results[id]
	if oc, ok := n.(OrderingConsumer); ok {
		g.metrics.OrderingRefreshes.Inc()
		oc.RefreshOrdering()
	}
	for _, c := range n.base().consumers {
		g.refreshBelow(c, notified)
	}
}

// Settle delivers pending ordering refreshes. Call it at the end of an
// update cycle.
func (g *Graph) Settle() {
	g.flushOrdering()
}

// hasOrderingConsumer reports whether an ordering consumer is composed
// below id.
func (g *Graph) hasOrderingConsumer(id ResultID) bool {
	for _, c := range g.results[id].base().consumers {
		if _, ok := g.results[c].(OrderingConsumer); ok {
			return true
		}
		if g.hasOrderingConsumer(c) {
			return true
		}
	}
	return false
}

func (g *Graph) updateOrderActivity() {
	for _, n := range g.results {
		if c, ok := n.(*CompResult); ok {
			c.setOrderActive(g.hasOrderingConsumer(c.id))
		}
	}
}

// diffSorted returns the members only in a and only in b.
func diffSorted(a, b []int64) (onlyA, onlyB []int64) {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			onlyA = append(onlyA, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			onlyB = append(onlyB, b[j])
			j++
		default:
			i++
			j++
		}
	}
	return onlyA, onlyB
}

func sortedKeys(m map[int64]int) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.SortFunc(out, cmp.Compare[int64])
	return out
}
