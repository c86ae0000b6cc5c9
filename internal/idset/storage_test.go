package idset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageSmall(t *testing.T) {
	var s IntStorage
	assert.True(t, s.Add(3))
	assert.True(t, s.Add(1))
	assert.False(t, s.Add(3))
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.IsHashed())
	assert.True(t, s.Has(1))
	assert.False(t, s.Has(2))

	assert.True(t, s.Remove(3))
	assert.False(t, s.Remove(3))
	assert.Equal(t, []int64{1}, SortedIDs(&s))
}

func TestStorageUpgradesPastThreshold(t *testing.T) {
	var s IntStorage
	for i := int64(0); i < Threshold; i++ {
		require.True(t, s.Add(i))
	}
	assert.False(t, s.IsHashed())

	require.True(t, s.Add(Threshold))
	assert.True(t, s.IsHashed())
	assert.Equal(t, Threshold+1, s.Len())

	// never downgrades on removal
	for i := int64(0); i < Threshold; i++ {
		require.True(t, s.Remove(i))
	}
	assert.True(t, s.IsHashed())
	assert.Equal(t, []int64{Threshold}, SortedIDs(&s))

	s.Clear()
	assert.False(t, s.IsHashed())
	assert.Zero(t, s.Len())
}

func TestStorageEachStopsEarly(t *testing.T) {
	var s Storage[string]
	for _, id := range []string{"a", "b", "c"} {
		s.Add(id)
	}
	seen := 0
	s.Each(func(string) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, s.IDs())
}
