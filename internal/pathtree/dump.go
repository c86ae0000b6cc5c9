package pathtree

import (
	"strconv"

	"github.com/roach88/cdlcore/internal/ir"
)

// Dump renders the tree as nested maps for canonical JSON output. Empty
// fields are omitted.
func (t *Tree) Dump() map[string]any {
	return t.dumpNode(t.Root())
}

// DumpJSON returns the canonical JSON form of Dump.
func (t *Tree) DumpJSON() ([]byte, error) {
	return ir.MarshalCanonical(t.Dump())
}

func (t *Tree) dumpNode(id NodeID) map[string]any {
	n := &t.nodes[id]
	out := map[string]any{}
	if len(n.Infos) > 0 {
		infos := make([]any, 0, len(n.Infos))
		for _, info := range n.Infos {
			infos = append(infos, dumpInfo(info))
		}
		out["infos"] = infos
	}
	if len(n.Children) > 0 {
		children := make(map[string]any, len(n.Children))
		for attr, c := range n.Children {
			children[attr] = t.dumpNode(c)
		}
		out["children"] = children
	}
	return out
}

func dumpInfo(info PathInfo) map[string]any {
	m := map[string]any{
		"expr":     info.Expr.Canonical(),
		"priority": info.Priority,
	}
	if len(info.Qualifiers) > 0 {
		m["qualifiers"] = info.Qualifiers.Canonical()
	}
	if len(info.Eliminated) > 0 {
		m["eliminated"] = info.Eliminated.Canonical()
	}
	if info.Writable {
		m["writable"] = true
	}
	if len(info.Inheritance) > 0 {
		steps := make([]string, len(info.Inheritance))
		for i, s := range info.Inheritance {
			steps[i] = s.Class + "/" + strconv.Itoa(s.Variant)
		}
		m["inherit"] = steps
	}
	if info.Discarded {
		m["discarded"] = true
	}
	return m
}
