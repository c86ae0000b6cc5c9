package heap

import (
	"cmp"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkHeapProperty verifies every parent is no greater than its children.
func checkHeapProperty[T any](t *testing.T, h *Heap[T]) {
	t.Helper()
	data := h.Items()
	for i := 1; i < len(data); i++ {
		parent := (i - 1) / 2
		require.LessOrEqual(t, h.items.cmp(data[parent], data[i]), 0, "index %d", i)
	}
}

func TestHeapPopOrder(t *testing.T) {
	h := New(cmp.Compare[int])
	for _, x := range []int{5, 3, 8, 1, 9, 2} {
		h.Add(x)
	}
	checkHeapProperty(t, h)

	top, ok := h.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, top)

	var got []int
	for h.Len() > 0 {
		x, _ := h.Pop()
		got = append(got, x)
	}
	assert.Equal(t, []int{1, 2, 3, 5, 8, 9}, got)

	_, ok = h.Pop()
	assert.False(t, ok)
	_, ok = h.Peek()
	assert.False(t, ok)
}

func TestHeapAddMulti(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		h := New(cmp.Compare[int])
		var all []int
		for batch := 0; batch < 4; batch++ {
			n := r.Intn(20)
			xs := make([]int, n)
			for i := range xs {
				xs[i] = r.Intn(100)
			}
			h.AddMulti(xs...)
			all = append(all, xs...)
			checkHeapProperty(t, h)
		}
		if len(all) == 0 {
			assert.Zero(t, h.Len())
			continue
		}
		slices.Sort(all)
		assert.Equal(t, all, h.Sorted())
		top, _ := h.Peek()
		assert.Equal(t, all[0], top)
	}
}

func TestHeapRemove(t *testing.T) {
	h := New(cmp.Compare[int])
	h.AddMulti(4, 7, 1, 9, 3)

	assert.True(t, h.Remove(func(x int) bool { return x == 1 }))
	assert.False(t, h.Remove(func(x int) bool { return x == 42 }))
	checkHeapProperty(t, h)
	assert.Equal(t, []int{3, 4, 7, 9}, h.Sorted())

	h.Clear()
	assert.Zero(t, h.Len())
}

type tagged struct {
	key int
	id  int64
}

func TestHeapCustomComparator(t *testing.T) {
	h := New(func(a, b tagged) int {
		if c := cmp.Compare(a.key, b.key); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	h.AddMulti(tagged{2, 5}, tagged{1, 9}, tagged{1, 3})

	first, _ := h.Pop()
	second, _ := h.Pop()
	assert.Equal(t, tagged{1, 3}, first)
	assert.Equal(t, tagged{1, 9}, second)
}

