package interval

// DefaultDegree is the btree degree used when none is configured.
const DefaultDegree = 8

type options struct {
	degree       int
	compactAfter int
}

// Option configures a Tree, PairwiseDisjoint or DegenerateTree. Options
// that do not apply to a structure are ignored by it.
type Option func(*options)

// WithDegree sets the degree of the underlying btree. Tree is not
// btree-backed and ignores it.
func WithDegree(degree int) Option {
	return func(o *options) {
		if degree >= 2 {
			o.degree = degree
		}
	}
}

// WithCompactAfter makes a Tree call Compact after every n removals, so
// endpoint keys of removed intervals do not accumulate. Zero disables it.
func WithCompactAfter(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.compactAfter = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{degree: DefaultDegree}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
