package interval

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/testutil"
)

func bruteIDs(ivs map[int64]Interval, keep func(Interval) bool) []int64 {
	var out []int64
	for _, iv := range ivs {
		if keep(iv) {
			out = append(out, iv.ID)
		}
	}
	slices.Sort(out)
	return out
}

func TestTreeBasic(t *testing.T) {
	tr := NewTree()
	require.NoError(t, tr.InsertInterval(Interval{Low: 0, High: 10, ID: 1}))
	require.NoError(t, tr.InsertInterval(Interval{Low: 5, High: 15, HighOpen: true, ID: 2}))
	require.NoError(t, tr.InsertInterval(Point(15, 3)))
	require.NoError(t, tr.Validate())

	assert.Equal(t, []int64{1, 2}, tr.Find(7))
	assert.Equal(t, []int64{3}, tr.Find(15))
	assert.Nil(t, tr.Find(16))
	assert.Equal(t, []int64{2, 3}, tr.FindIntersections(Interval{Low: 12, High: 20}))
	assert.Equal(t, []int64{1}, tr.FindContained(Interval{Low: 0, High: 12}))
	assert.Equal(t, []int64{1}, tr.FindWithUpperBound(Interval{Low: 6, High: 8}, 12, false))
	assert.Equal(t, []int64{2, 3}, tr.FindWithLowerBound(Interval{Low: 0, High: 20}, 5, false))

	assert.ErrorIs(t, tr.InsertInterval(Point(1, 1)), ErrDuplicateID)
	assert.ErrorIs(t, tr.InsertInterval(Interval{Low: 2, High: 1, ID: 9}), ErrInvalidInterval)

	assert.True(t, tr.RemoveInterval(2))
	assert.False(t, tr.RemoveInterval(2))
	require.NoError(t, tr.Validate())
	assert.Equal(t, []int64{1}, tr.Find(7))
}

func TestTreeAscendingInsertsRotate(t *testing.T) {
	tr := NewTree()
	for i := int64(0); i < 64; i++ {
		require.NoError(t, tr.InsertInterval(Interval{Low: float64(i), High: float64(i + 3), ID: i}))
		require.NoError(t, tr.Validate(), "after %d", i)
	}
	st := tr.Stats()
	assert.Equal(t, 67, st.Keys)
	// red-black height bound
	assert.LessOrEqual(t, st.Height, 2*int(math.Ceil(math.Log2(float64(st.Keys+1)))))
	assert.Equal(t, 64, st.LowEnd+st.HighEnd+st.End+st.DontEnd+st.Degenerate)
	assert.Equal(t, []int64{7, 8, 9, 10}, tr.Find(10))
}

func TestTreeCompact(t *testing.T) {
	tr := NewTree()
	for i := int64(0); i < 10; i++ {
		require.NoError(t, tr.InsertInterval(Interval{Low: float64(i * 10), High: float64(i*10 + 5), ID: i}))
	}
	for i := int64(0); i < 8; i++ {
		tr.RemoveInterval(i)
	}
	assert.Equal(t, 20, tr.Keys())
	tr.Compact()
	require.NoError(t, tr.Validate())
	assert.Equal(t, 4, tr.Keys())
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, []int64{8}, tr.Find(82))
}

func TestTreeStatsClassification(t *testing.T) {
	tr := NewTree()
	// keys 5, 0, 10, 2, 8, 3 give root 5 over 2(0, 3) and 10(8)
	for _, iv := range []Interval{
		Point(5, 1),
		Point(0, 2),
		Point(10, 3),
		{Low: 2, High: 8, ID: 4},
		{Low: 3, High: 10, ID: 5},
		{Low: 0, High: 3, ID: 6},
	} {
		require.NoError(t, tr.InsertInterval(iv))
	}
	require.NoError(t, tr.Validate())

	assert.Equal(t, Stats{Keys: 6, Height: 3, Degenerate: 3, End: 2, DontEnd: 1}, tr.Stats())
	assert.Equal(t, Stats{}, NewTree().Stats())
}

func TestTreeCompactAfter(t *testing.T) {
	tr := NewTree(WithCompactAfter(4), WithDegree(3))
	for i := int64(0); i < 10; i++ {
		require.NoError(t, tr.InsertInterval(Interval{Low: float64(i * 10), High: float64(i*10 + 5), ID: i}))
	}

	for i := int64(0); i < 3; i++ {
		tr.RemoveInterval(i)
	}
	assert.Equal(t, 20, tr.Keys())
	tr.RemoveInterval(3)
	assert.Equal(t, 12, tr.Keys())

	for i := int64(4); i < 7; i++ {
		tr.RemoveInterval(i)
	}
	assert.Equal(t, 12, tr.Keys())
	tr.RemoveInterval(7)
	require.NoError(t, tr.Validate())
	assert.Equal(t, 4, tr.Keys())
	assert.Equal(t, []int64{9}, tr.Find(92))

	// missing IDs do not count
	assert.False(t, tr.RemoveInterval(3))
	assert.Equal(t, 4, tr.Keys())
}

func TestTreeMatchesReference(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		r := testutil.NewRand(seed)
		tr := NewTree()
		live := map[int64]Interval{}
		var nextID int64

		for step := 0; step < 300; step++ {
			ids := make([]int64, 0, len(live))
			for id := range live {
				ids = append(ids, id)
			}
			slices.Sort(ids)

			if r.Intn(3) > 0 || len(ids) == 0 {
				iv := randomInterval(r, nextID)
				nextID++
				require.NoError(t, tr.InsertInterval(iv))
				live[iv.ID] = iv
			} else {
				id, _ := r.Pick(ids)
				require.True(t, tr.RemoveInterval(id))
				delete(live, id)
			}
			if step%25 == 0 {
				tr.Compact()
			}
			require.NoError(t, tr.Validate(), "seed %d step %d", seed, step)

			p := r.Key(26) + 0.5*float64(r.Intn(2))
			require.Equal(t, bruteIDs(live, func(iv Interval) bool { return ContainsPoint(iv, p) }), tr.Find(p),
				"find %v seed %d step %d", p, seed, step)

			rng := randomInterval(r, -1)
			assert.Equal(t, bruteIDs(live, func(iv Interval) bool { return Overlaps(iv, rng) }), tr.FindIntersections(rng))
			assert.Equal(t, bruteIDs(live, func(iv Interval) bool { return Contains(rng, iv) }), tr.FindContained(rng))

			bound := randomInterval(r, -1)
			assert.Equal(t,
				bruteIDs(live, func(iv Interval) bool { return Overlaps(iv, rng) && CompareHigh(iv, bound) <= 0 }),
				tr.FindWithUpperBound(rng, bound.High, bound.HighOpen))
			assert.Equal(t,
				bruteIDs(live, func(iv Interval) bool { return Overlaps(iv, rng) && CompareLow(iv, bound) >= 0 }),
				tr.FindWithLowerBound(rng, bound.Low, bound.LowOpen))
		}
		assert.Len(t, tr.Intervals(), len(live))
	}
}
