package pathtree

import (
	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/qualifier"
)

// Env supplies the runtime value of attribute at level. Undefined
// attributes return ir.Null{}.
type Env func(attribute string, level int) ir.Value

// Satisfied reports whether every term of c holds under env.
func Satisfied(c qualifier.Clause, env Env) bool {
	for _, term := range c {
		if !ir.Matches(term.Value, env(term.Attribute, term.Level)) {
			return false
		}
	}
	return true
}

// Select returns the candidate at id that wins under env: the
// highest-priority live candidate whose pending qualifiers all hold.
// Eliminated terms are known to hold and are not rechecked.
func (t *Tree) Select(id NodeID, env Env) (PathInfo, bool) {
	infos := t.nodes[id].Infos
	best := -1
	for i, info := range infos {
		if info.Discarded || !Satisfied(info.Qualifiers, env) {
			continue
		}
		if best < 0 || info.Priority > infos[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return PathInfo{}, false
	}
	return infos[best], true
}
