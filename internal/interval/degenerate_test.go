package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDegenerateTree(t *testing.T) {
	d := NewDegenerateTree(WithDegree(2))
	require.NoError(t, d.Insert(3, 1))
	require.NoError(t, d.Insert(3, 2))
	require.NoError(t, d.Insert(7, 3))
	require.NoError(t, d.Insert(-1, 4))
	assert.ErrorIs(t, d.Insert(9, 1), ErrDuplicateID)

	assert.Equal(t, 4, d.Len())
	assert.Equal(t, []int64{1, 2}, d.Find(3))
	assert.Nil(t, d.Find(4))
	assert.Equal(t, []float64{-1, 3, 7}, d.Points())

	assert.Equal(t, []int64{1, 2, 3}, d.FindIntersections(Interval{Low: 3, High: 7}))
	assert.Equal(t, []int64{3}, d.FindIntersections(Interval{Low: 3, LowOpen: true, High: 7}))
	assert.Equal(t, []int64{1, 2}, d.FindIntersections(Interval{Low: 0, High: 7, HighOpen: true}))

	assert.True(t, d.Remove(1))
	assert.False(t, d.Remove(1))
	assert.True(t, d.Remove(2))
	assert.Equal(t, []float64{-1, 7}, d.Points())
}

func TestImportFromDegenerateTree(t *testing.T) {
	d := NewDegenerateTree()
	for id, p := range []float64{4, 1, 4, 9} {
		require.NoError(t, d.Insert(p, int64(id)))
	}
	tr := ImportFromDegenerateTree(d)
	require.NoError(t, tr.Validate())
	assert.Equal(t, 4, tr.Len())
	assert.Equal(t, []int64{0, 2}, tr.Find(4))

	// ranged intervals mix in after conversion
	require.NoError(t, tr.InsertInterval(Interval{Low: 0, High: 5, ID: 10}))
	assert.Equal(t, []int64{0, 2, 10}, tr.Find(4))
	assert.Equal(t, 4, tr.Stats().Degenerate)
}
