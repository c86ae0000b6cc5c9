package pathtree

import (
	"log/slog"
	"slices"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/qualifier"
)

// Content is a nested object of path values. A leaf carries an Expr; an
// inner node carries Children.
type Content struct {
	Expr     Expr
	Writable bool
	Children map[string]*Content
	Pos      token.Pos
}

// Variant is one qualifier-guarded alternative of a class.
type Variant struct {
	Qualifiers []qualifier.Term
	Inherit    []string
	Content    *Content
	Pos        token.Pos
}

// Class is a named list of variants. Later variants, and a variant's own
// content over what it inherits, take priority.
type Class struct {
	Name     string
	Variants []Variant
	Pos      token.Pos
}

// Report summarizes a finished compilation session.
type Report struct {
	Errors     []*CompileError `json:"errors"`
	ClassUsage map[string]int  `json:"class_usage"`
	Discarded  int             `json:"discarded"`
}

// Session holds the state of one compilation: the class table, the
// inheritance graph, class usage and the error channel. Create one per
// compilation and Finalize it at the end.
type Session struct {
	classes  map[string]*Class
	variants map[string][]variantState
	usage    map[string]int
	cyclic   map[string]bool
	analyzed bool

	reporter  *ErrorReporter
	discarded int
}

// NewSession starts a compilation session.
func NewSession() *Session {
	return &Session{
		classes:  make(map[string]*Class),
		variants: make(map[string][]variantState),
		usage:    make(map[string]int),
		reporter: newErrorReporter(),
	}
}

// Errors returns the session's error channel.
func (s *Session) Errors() *ErrorReporter {
	return s.reporter
}

// Class returns a registered class.
func (s *Session) Class(name string) (*Class, bool) {
	c, ok := s.classes[name]
	return c, ok
}

// ClassNames returns the registered class names in order.
func (s *Session) ClassNames() []string {
	return sortedKeys(s.classes)
}

// AddClass registers a class. A second class with the same name is
// reported and ignored. Variants whose qualifiers contradict each other
// are dropped; a variant whose clause repeats an earlier variant's is
// reported and dropped.
func (s *Session) AddClass(c *Class) bool {
	if _, ok := s.classes[c.Name]; ok {
		s.reporter.Reportf(KindDuplicateClass, c.Name, c.Pos, "class %q defined twice", c.Name)
		return false
	}
	s.classes[c.Name] = c
	s.analyzed = false

	states := make([]variantState, len(c.Variants))
	seen := make(map[string]int)
	for i, v := range c.Variants {
		clause, ok := qualifier.NewClause(v.Qualifiers...)
		if !ok {
			s.reporter.Reportf(KindUnsatisfiable, c.Name, v.Pos, "variant %d can never apply", i)
			s.discarded++
			continue
		}
		fp := ir.MustFingerprint(ir.DomainClause, clause.Canonical())
		if prev, dup := seen[fp]; dup {
			s.reporter.Reportf(KindDuplicateVariant, c.Name, v.Pos,
				"variant %d repeats the qualifier of variant %d", i, prev)
			continue
		}
		seen[fp] = i
		states[i] = variantState{clause: clause, live: true}
	}
	s.variants[c.Name] = states
	return true
}

// variantState is a variant's sorted clause, and whether the variant
// survived registration.
type variantState struct {
	clause qualifier.Clause
	live   bool
}

// analyze finds classes on inheritance cycles and reports each cycle.
func (s *Session) analyze() {
	if s.analyzed {
		return
	}
	s.analyzed = true
	s.cyclic = make(map[string]bool)

	graph := make(inheritanceGraph, len(s.classes))
	for name, c := range s.classes {
		graph[name] = []string{}
		for _, v := range c.Variants {
			for _, parent := range v.Inherit {
				if _, ok := s.classes[parent]; ok {
					graph[name] = append(graph[name], parent)
				}
			}
		}
	}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		slices.Sort(scc)
		for _, name := range scc {
			s.cyclic[name] = true
		}
		path := reconstructCyclePath(scc, graph)
		s.reporter.Reportf(KindCyclicInheritance, scc[0], s.classes[scc[0]].Pos,
			"inheritance cycle: %s", strings.Join(path, " -> "))
	}
}

// Compile expands the root class, with everything it inherits, into a
// path tree.
func (s *Session) Compile(root string) *Tree {
	s.analyze()
	t := NewTree()
	if _, ok := s.classes[root]; !ok {
		s.reporter.Reportf(KindUnknownClass, root, token.NoPos, "unknown root class %q", root)
		return t
	}
	if s.cyclic[root] {
		return t
	}
	priority := 0
	s.expand(t, root, nil, nil, &priority)
	slog.Debug("compiled class", "class", root, "nodes", t.Len(), "infos", t.InfoCount())
	return t
}

func (s *Session) expand(t *Tree, name string, guard qualifier.Clause, chain []InheritStep, priority *int) {
	c := s.classes[name]
	s.usage[name]++
	for vi, v := range c.Variants {
		st := s.variants[name][vi]
		if !st.live {
			continue
		}
		clause, ok := conjoin(guard, st.clause)
		if !ok {
			s.discarded++
			continue
		}
		steps := append(slices.Clone(chain), InheritStep{Class: name, Variant: vi})
		for _, parent := range v.Inherit {
			switch _, known := s.classes[parent]; {
			case !known:
				s.reporter.Reportf(KindUnknownClass, name, v.Pos, "inherits unknown class %q", parent)
			case s.cyclic[parent]:
				// reported once by analyze
			default:
				s.expand(t, parent, clause, steps, priority)
			}
		}
		if v.Content != nil {
			s.place(t, name, nil, v.Content, clause, steps, priority)
		}
	}
}

func (s *Session) place(t *Tree, class string, path []string, c *Content, clause qualifier.Clause, steps []InheritStep, priority *int) {
	if c.Expr != nil {
		if ref, ok := c.Expr.(ClassRef); ok {
			if _, known := s.classes[ref.Class]; !known {
				s.reporter.Report(&CompileError{
					Kind: KindUnknownClass, Class: class, Path: slices.Clone(path), Pos: c.Pos,
					Message: "reference to unknown class " + ref.Class,
				})
				return
			}
			s.usage[ref.Class]++
		}
		*priority++
		t.AddInfo(t.Ensure(path), PathInfo{
			Expr:        c.Expr,
			Qualifiers:  clause.Clone(),
			Writable:    c.Writable,
			Inheritance: steps,
			Priority:    *priority,
		})
		return
	}
	for _, attr := range sortedKeys(c.Children) {
		s.place(t, class, append(slices.Clone(path), attr), c.Children[attr], clause, steps, priority)
	}
}

// Finalize ends the session and returns its report.
func (s *Session) Finalize() *Report {
	s.analyze()
	usage := make(map[string]int, len(s.usage))
	for k, v := range s.usage {
		usage[k] = v
	}
	return &Report{
		Errors:     slices.Clone(s.reporter.Errors()),
		ClassUsage: usage,
		Discarded:  s.discarded,
	}
}

// conjoin merges a guard with a variant clause. ok is false when the two
// cannot hold together.
func conjoin(guard, own qualifier.Clause) (qualifier.Clause, bool) {
	out := guard.Clone()
	for _, term := range own {
		var ok bool
		if out, ok = qualifier.AddQualifier(out, term); !ok {
			return nil, false
		}
	}
	return out, true
}
