package testutil

import "math/rand"

// Rand is a seeded source for property-style tests. Values are drawn from
// small ranges so collisions and shared endpoints are frequent.
type Rand struct {
	*rand.Rand
}

// NewRand returns a Rand seeded with seed.
func NewRand(seed int64) *Rand {
	return &Rand{Rand: rand.New(rand.NewSource(seed))}
}

// Key returns an integral float in [0, n).
func (r *Rand) Key(n int) float64 {
	return float64(r.Intn(n))
}

// Bool returns a fair coin flip.
func (r *Rand) Bool() bool {
	return r.Intn(2) == 0
}

// Pick returns a random element of ids, or false when ids is empty.
func (r *Rand) Pick(ids []int64) (int64, bool) {
	if len(ids) == 0 {
		return 0, false
	}
	return ids[r.Intn(len(ids))], true
}
