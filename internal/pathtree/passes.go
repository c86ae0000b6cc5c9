package pathtree

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/qualifier"
)

// Domains lists the possible values of qualifier attributes. A domain
// must be complete: an attribute never takes a value outside it.
type Domains map[string][]ir.Value

// OptimizeStats counts what Optimize removed.
type OptimizeStats struct {
	Rounds      int `json:"rounds"`
	Discarded   int `json:"discarded"`
	Redundant   int `json:"redundant"`
	Partitioned int `json:"partitioned"`
}

// Optimize runs constant elimination, redundancy removal and qualifier
// partitioning until none of them changes the tree. Every pass preserves
// what Select returns under environments consistent with ctx.
func (t *Tree) Optimize(ctx *qualifier.ContextStack, domains Domains) OptimizeStats {
	var st OptimizeStats
	for {
		st.Rounds++
		changed := t.EliminateConstantQualifiers(ctx)
		st.Discarded += t.Prune()
		redundant := t.RemoveRedundant()
		st.Redundant += redundant
		partitioned := t.PartitionQualifiers(domains)
		st.Partitioned += partitioned
		if !changed && redundant == 0 && partitioned == 0 {
			break
		}
	}
	slog.Debug("optimized path tree",
		"rounds", st.Rounds, "discarded", st.Discarded,
		"redundant", st.Redundant, "partitioned", st.Partitioned)
	return st
}

// EliminateConstantQualifiers resolves qualifier terms against known
// constants. Terms proven true move to Eliminated; a candidate with a
// term proven false is marked Discarded. Reports whether anything
// changed.
func (t *Tree) EliminateConstantQualifiers(ctx *qualifier.ContextStack) bool {
	changed := false
	for i := range t.nodes {
		infos := t.nodes[i].Infos
		for j := range infos {
			info := &infos[j]
			if info.Discarded {
				continue
			}
			remaining, eliminated, ok := qualifier.EliminateConstantQualifiers(info.Qualifiers, ctx)
			if !ok {
				info.Discarded = true
				changed = true
				continue
			}
			if len(eliminated) == 0 {
				continue
			}
			info.Qualifiers = remaining
			for _, term := range eliminated {
				info.Eliminated, _ = qualifier.AddQualifier(info.Eliminated, term)
			}
			changed = true
		}
	}
	return changed
}

// Prune drops discarded candidates and returns how many there were.
func (t *Tree) Prune() int {
	n := 0
	for i := range t.nodes {
		before := len(t.nodes[i].Infos)
		t.nodes[i].Infos = slices.DeleteFunc(t.nodes[i].Infos, func(info PathInfo) bool {
			return info.Discarded
		})
		n += before - len(t.nodes[i].Infos)
	}
	return n
}

// RemoveRedundant drops every candidate that can never win: one whose
// qualifiers imply those of a higher-priority candidate at the same
// path. Returns the number removed.
func (t *Tree) RemoveRedundant() int {
	removed := 0
	for i := range t.nodes {
		infos := t.nodes[i].Infos
		keep := make([]PathInfo, 0, len(infos))
		for _, low := range infos {
			shadowed := false
			for _, high := range infos {
				if high.Priority > low.Priority && !high.Discarded &&
					qualifier.QInQs(high.Qualifiers, low.Qualifiers) {
					shadowed = true
					break
				}
			}
			if shadowed {
				removed++
				continue
			}
			keep = append(keep, low)
		}
		t.nodes[i].Infos = keep
	}
	return removed
}

// slot identifies a qualifier attribute at one level.
type slot struct {
	attr  string
	level int
}

// PartitionQualifiers drops qualifiers that do not influence which
// candidate wins, node by node, until no more can be dropped. Returns
// the number of qualifier slots dropped.
//
// A slot found not to partition is remembered until the next successful
// drop at the same node, since a drop can change the outcome for other
// slots.
func (t *Tree) PartitionQualifiers(domains Domains) int {
	total := 0
	for i := range t.nodes {
		n := &t.nodes[i]
		nonPartitioning := make(map[slot]bool)
		for {
			progressed := false
			for _, sl := range slotsOf(n.Infos) {
				if nonPartitioning[sl] {
					continue
				}
				rep, ok := PartitionValueQualifiers(n.Infos, sl.attr, sl.level, domains[sl.attr])
				if !ok {
					nonPartitioning[sl] = true
					continue
				}
				n.Infos = rep
				clear(nonPartitioning)
				progressed = true
				total++
				break
			}
			if !progressed {
				break
			}
		}
	}
	return total
}

// PartitionValueQualifiers splits candidates by each possible value of
// attribute@level. If every value leaves the same candidate list once
// the term is removed, the term is redundant and the list for the first
// value is returned with ok true.
func PartitionValueQualifiers(infos []PathInfo, attribute string, level int, domain []ir.Value) ([]PathInfo, bool) {
	if len(domain) == 0 {
		return nil, false
	}
	var first []PathInfo
	var firstKey []string
	for i, v := range domain {
		var part []PathInfo
		for _, info := range infos {
			if info.Discarded {
				continue
			}
			q, ok := qualifier.Restrict(info.Qualifiers, attribute, level, v)
			if !ok {
				continue
			}
			info.Qualifiers = q
			part = append(part, info)
		}
		key := partitionKey(part)
		if i == 0 {
			first, firstKey = part, key
			continue
		}
		if !slices.Equal(key, firstKey) {
			return nil, false
		}
	}
	return first, true
}

// partitionKey identifies a candidate list by the expressions and
// clauses of its members in priority order.
func partitionKey(part []PathInfo) []string {
	sorted := slices.Clone(part)
	slices.SortFunc(sorted, func(a, b PathInfo) int { return a.Priority - b.Priority })
	key := make([]string, len(sorted))
	for i, info := range sorted {
		key[i] = ir.MustFingerprint(ir.DomainClause, map[string]any{
			"expr":       info.Expr.Canonical(),
			"qualifiers": info.Qualifiers.Canonical(),
		})
	}
	return key
}

func slotsOf(infos []PathInfo) []slot {
	seen := make(map[slot]bool)
	var out []slot
	for _, info := range infos {
		for _, term := range info.Qualifiers {
			sl := slot{attr: term.Attribute, level: term.Level}
			if !seen[sl] {
				seen[sl] = true
				out = append(out, sl)
			}
		}
	}
	slices.SortFunc(out, func(a, b slot) int {
		return qualifier.CompareModValue(
			qualifier.Term{Attribute: a.attr, Level: a.level},
			qualifier.Term{Attribute: b.attr, Level: b.level})
	})
	return out
}

// Validate checks that every candidate's clauses are sorted and that no
// eliminated term shares a slot with a pending one.
func (t *Tree) Validate() error {
	for i := range t.nodes {
		for _, info := range t.nodes[i].Infos {
			if info.Expr == nil {
				return fmt.Errorf("node %v: candidate without expression", t.Path(NodeID(i)))
			}
			if err := info.Qualifiers.Validate(); err != nil {
				return fmt.Errorf("node %v: %w", t.Path(NodeID(i)), err)
			}
			if err := info.Eliminated.Validate(); err != nil {
				return fmt.Errorf("node %v: eliminated: %w", t.Path(NodeID(i)), err)
			}
			for _, e := range info.Eliminated {
				if _, found := info.Qualifiers.Search(e); found {
					return fmt.Errorf("node %v: %s both pending and eliminated", t.Path(NodeID(i)), e)
				}
			}
		}
	}
	return nil
}
