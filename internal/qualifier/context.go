package qualifier

import (
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cdlcore/internal/ir"
)

// ContextStack holds the attribute values known to be constant at each
// nesting level. Level 0 is the innermost (most recently pushed) frame.
type ContextStack struct {
	frames []map[string]ir.Value
}

// Push adds a frame of known constants.
func (s *ContextStack) Push(consts map[string]ir.Value) {
	frame := make(map[string]ir.Value, len(consts))
	for k, v := range consts {
		frame[norm.NFC.String(k)] = v
	}
	s.frames = append(s.frames, frame)
}

// Pop removes the innermost frame.
func (s *ContextStack) Pop() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Depth returns the number of frames.
func (s *ContextStack) Depth() int {
	return len(s.frames)
}

// Lookup returns the constant value of attribute at level, if known.
func (s *ContextStack) Lookup(attribute string, level int) (ir.Value, bool) {
	i := len(s.frames) - 1 - level
	if level < 0 || i < 0 {
		return nil, false
	}
	v, ok := s.frames[i][attribute]
	return v, ok
}

// EliminateConstantQualifiers matches each term against the known
// constants. Terms proven true move to eliminated; a term proven false
// makes the whole clause unsatisfiable (ok is false); the rest stay
// pending in remaining. Verdicts are cached on the terms of c.
func EliminateConstantQualifiers(c Clause, ctx *ContextStack) (remaining, eliminated Clause, ok bool) {
	remaining = make(Clause, 0, len(c))
	for i := range c {
		t := &c[i]
		if !t.Tested {
			v, known := ctx.Lookup(t.Attribute, t.Level)
			if !known {
				remaining = append(remaining, *t)
				continue
			}
			t.Tested = true
			t.Result = False
			if ir.Matches(t.Value, v) {
				t.Result = True
			}
		}
		switch t.Result {
		case True:
			eliminated = append(eliminated, *t)
		case False:
			return nil, nil, false
		default:
			remaining = append(remaining, *t)
		}
	}
	return remaining, eliminated, true
}
