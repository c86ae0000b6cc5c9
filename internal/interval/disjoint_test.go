package interval

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cdlcore/internal/testutil"
)

func add(t *testing.T, s *PairwiseDisjoint, low, high float64, id int64) *Delta {
	t.Helper()
	d, err := s.AddInterval(low, false, high, false, id)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return d
}

func TestPairwiseDisjointScenario(t *testing.T) {
	s := NewPairwiseDisjoint()

	assert.Nil(t, add(t, s, 0, 10, 1))
	d := add(t, s, 5, 15, 2)
	require.NotNil(t, d)
	assert.Equal(t, []int64{1}, d.RemovedIntervals)
	require.NotNil(t, d.CoveringInterval)
	assert.Equal(t, []int64{1, 2}, d.CoveringInterval.Members)
	assert.Negative(t, d.CoveringInterval.ID)
	assert.Nil(t, add(t, s, 20, 30, 3))
	assert.False(t, s.IsDisjoint())

	cov := s.Coverings()
	require.Len(t, cov, 2)
	assert.Equal(t, float64(0), cov[0].Low)
	assert.Equal(t, float64(15), cov[0].High)
	assert.Equal(t, []int64{1, 2}, cov[0].Members)
	assert.Equal(t, Interval{Low: 20, High: 30, ID: 3}, cov[1].Interval)

	d, err := s.RemoveInterval(2)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	assert.Equal(t, []int64{cov[0].ID}, d.RemovedIntervals)
	require.NotNil(t, d.CoveringInterval)
	assert.Equal(t, Interval{Low: 0, High: 10, ID: 1}, d.CoveringInterval.Interval)
	assert.True(t, s.IsDisjoint())

	cov = s.Coverings()
	require.Len(t, cov, 2)
	assert.Equal(t, []int64{1}, cov[0].Members)
	assert.Equal(t, []int64{3}, cov[1].Members)
}

func TestPairwiseDisjointTouchingStaysSeparate(t *testing.T) {
	s := NewPairwiseDisjoint()
	_, err := s.AddInterval(0, false, 5, true, 1)
	require.NoError(t, err)
	d, err := s.AddInterval(5, false, 9, false, 2)
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.True(t, s.IsDisjoint())
	assert.Len(t, s.Coverings(), 2)
}

func TestPairwiseDisjointSplitRestores(t *testing.T) {
	s := NewPairwiseDisjoint()
	add(t, s, 0, 4, 1)
	add(t, s, 6, 9, 2)
	d := add(t, s, 3, 7, 3)
	require.NotNil(t, d)
	assert.ElementsMatch(t, []int64{1, 2}, d.RemovedIntervals)
	merged := d.CoveringInterval.ID

	d, err := s.RemoveInterval(3)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	assert.Equal(t, []int64{merged}, d.RemovedIntervals)
	assert.Nil(t, d.CoveringInterval)
	require.Len(t, d.RestoredIntervals, 2)
	assert.Equal(t, int64(1), d.RestoredIntervals[0].ID)
	assert.Equal(t, int64(2), d.RestoredIntervals[1].ID)
}

func TestPairwiseDisjointModify(t *testing.T) {
	s := NewPairwiseDisjoint()
	add(t, s, 0, 10, 1)
	first := add(t, s, 5, 15, 2).CoveringInterval.ID
	add(t, s, 20, 30, 3)

	// pull 2 out of the merged covering
	d, err := s.ModifyInterval(2, 16, false, 18, false)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	assert.Equal(t, []int64{first}, d.RemovedIntervals)
	require.NotNil(t, d.ModifiedInterval)
	assert.Equal(t, Interval{Low: 16, High: 18, ID: 2}, d.ModifiedInterval.Interval)
	require.Len(t, d.RestoredIntervals, 1)
	assert.Equal(t, int64(1), d.RestoredIntervals[0].ID)
	assert.Nil(t, d.CoveringInterval)

	// 1 now bridges 2 and 3
	d, err = s.ModifyInterval(1, 18, false, 25, false)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	assert.Equal(t, []int64{1, 2, 3}, d.RemovedIntervals)
	require.NotNil(t, d.CoveringInterval)
	assert.Equal(t, []int64{1, 2, 3}, d.CoveringInterval.Members)
	assert.Equal(t, float64(16), d.CoveringInterval.Low)
	assert.Equal(t, float64(30), d.CoveringInterval.High)
}

func TestPairwiseDisjointModifyInPlace(t *testing.T) {
	s := NewPairwiseDisjoint()
	add(t, s, 0, 5, 1)
	d, err := s.ModifyInterval(1, 1, false, 2, false)
	require.NoError(t, err)
	assert.Empty(t, d.RemovedIntervals)
	require.NotNil(t, d.ModifiedInterval)
	assert.Equal(t, Interval{Low: 1, High: 2, ID: 1}, d.ModifiedInterval.Interval)
}

func TestPairwiseDisjointErrors(t *testing.T) {
	s := NewPairwiseDisjoint()
	_, err := s.AddInterval(0, false, 1, false, -1)
	assert.ErrorIs(t, err, ErrNegativeID)
	add(t, s, 0, 1, 1)
	_, err = s.AddInterval(0, false, 1, false, 1)
	assert.ErrorIs(t, err, ErrDuplicateID)
	_, err = s.AddInterval(2, false, 1, false, 2)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = s.RemoveInterval(9)
	assert.ErrorIs(t, err, ErrUnknownID)
	_, err = s.ModifyInterval(9, 0, false, 1, false)
	assert.ErrorIs(t, err, ErrUnknownID)
	_, err = s.ModifyInterval(1, 1, true, 1, false)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestPairwiseDisjointQueries(t *testing.T) {
	s := NewPairwiseDisjoint()
	add(t, s, 0, 5, 1)
	add(t, s, 10, 15, 2)
	add(t, s, 20, 30, 3)

	assert.True(t, s.IsDisjointRange(6, false, 9, false))
	assert.True(t, s.IsDisjointRange(5, true, 10, true))
	assert.False(t, s.IsDisjointRange(5, false, 6, false))

	id, ok := s.GetCoveringIntervalID(12, false, 22, false)
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	id, ok = s.GetCoveringIntervalID(-5, false, 1, false)
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok = s.GetCoveringIntervalID(6, false, 9, false)
	assert.False(t, ok)

	c, ok := s.CoveringAt(25)
	require.True(t, ok)
	assert.Equal(t, int64(3), c.ID)
	_, ok = s.CoveringAt(7)
	assert.False(t, ok)
}

func TestPairwiseDisjointUnbounded(t *testing.T) {
	s := NewPairwiseDisjoint()
	_, err := s.AddInterval(math.Inf(-1), true, 0, false, 1)
	require.NoError(t, err)
	d, err := s.AddInterval(-3, false, math.Inf(1), false, 2)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, math.IsInf(d.CoveringInterval.Low, -1))
	assert.True(t, math.IsInf(d.CoveringInterval.High, 1))
	require.NoError(t, s.Validate())
}

func randomInterval(r *testutil.Rand, id int64) Interval {
	low := r.Key(20)
	iv := Interval{Low: low, High: low + r.Key(6), LowOpen: r.Bool(), HighOpen: r.Bool(), ID: id}
	if iv.Low == iv.High {
		iv.LowOpen, iv.HighOpen = false, false
	}
	switch r.Intn(15) {
	case 0:
		iv.Low = math.Inf(-1)
	case 1:
		iv.High = math.Inf(1)
	}
	return iv
}

// expectedCoverings computes the covering set from scratch.
func expectedCoverings(inputs map[int64]Interval) [][]int64 {
	ivs := make([]Interval, 0, len(inputs))
	for _, iv := range inputs {
		ivs = append(ivs, iv)
	}
	slices.SortFunc(ivs, byLowThenID)
	var groups [][]int64
	var hull Interval
	for i, iv := range ivs {
		if i > 0 && Overlaps(hull, iv) {
			hull = Hull(hull, iv)
			groups[len(groups)-1] = append(groups[len(groups)-1], iv.ID)
			continue
		}
		hull = iv
		groups = append(groups, []int64{iv.ID})
	}
	for _, g := range groups {
		slices.Sort(g)
	}
	return groups
}

func applyDelta(t *testing.T, shadow *testutil.Shadow, d *Delta) {
	t.Helper()
	require.NoError(t, shadow.Remove(d.RemovedIntervals))
	if d.CoveringInterval != nil {
		require.NoError(t, shadow.Add([]int64{d.CoveringInterval.ID}))
	}
	for _, c := range d.RestoredIntervals {
		require.NoError(t, shadow.Add([]int64{c.ID}))
	}
	if d.ModifiedInterval != nil && !shadow.Has(d.ModifiedInterval.ID) {
		require.NoError(t, shadow.Add([]int64{d.ModifiedInterval.ID}))
	}
}

func TestPairwiseDisjointMatchesReference(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		r := testutil.NewRand(seed)
		s := NewPairwiseDisjoint(WithDegree(3))
		inputs := map[int64]Interval{}
		shadow := testutil.NewShadow()
		var nextID int64

		for step := 0; step < 200; step++ {
			ids := make([]int64, 0, len(inputs))
			for id := range inputs {
				ids = append(ids, id)
			}
			slices.Sort(ids)

			switch op := r.Intn(3); {
			case op == 0 || len(ids) == 0:
				iv := randomInterval(r, nextID)
				nextID++
				d, err := s.AddInterval(iv.Low, iv.LowOpen, iv.High, iv.HighOpen, iv.ID)
				require.NoError(t, err)
				inputs[iv.ID] = iv
				if d == nil {
					require.NoError(t, shadow.Add([]int64{iv.ID}))
				} else {
					applyDelta(t, shadow, d)
				}
			case op == 1:
				id, _ := r.Pick(ids)
				d, err := s.RemoveInterval(id)
				require.NoError(t, err)
				delete(inputs, id)
				applyDelta(t, shadow, d)
			default:
				id, _ := r.Pick(ids)
				iv := randomInterval(r, id)
				d, err := s.ModifyInterval(id, iv.Low, iv.LowOpen, iv.High, iv.HighOpen)
				require.NoError(t, err)
				inputs[id] = iv
				applyDelta(t, shadow, d)
			}

			require.NoError(t, s.Validate(), "seed %d step %d", seed, step)

			want := expectedCoverings(inputs)
			got := s.Coverings()
			require.Len(t, got, len(want), "seed %d step %d", seed, step)
			gotIDs := make([]int64, 0, len(got))
			disjoint := true
			for i, c := range got {
				assert.Equal(t, want[i], c.Members)
				if len(c.Members) == 1 {
					assert.Equal(t, c.Members[0], c.ID)
				} else {
					assert.Negative(t, c.ID)
					disjoint = false
				}
				gotIDs = append(gotIDs, c.ID)
			}
			slices.Sort(gotIDs)
			require.Equal(t, gotIDs, shadow.Sorted(), "delta stream diverged at seed %d step %d", seed, step)
			assert.Equal(t, disjoint, s.IsDisjoint())
		}
	}
}
