package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEnqueueDequeue(t *testing.T) {
	r := NewRing[int](3)
	require.True(t, r.IsEmpty())

	require.NoError(t, r.Enqueue(1))
	require.NoError(t, r.Enqueue(2))
	require.NoError(t, r.Enqueue(3))
	require.True(t, r.IsFull())
	require.ErrorIs(t, r.Enqueue(4), ErrQueueFull)

	v, err := r.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for _, want := range []int{1, 2, 3} {
		got, err := r.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = r.Dequeue()
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingPushOverwritesOldest(t *testing.T) {
	r := NewRing[float64](3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.Push(v)
	}
	require.Equal(t, 3, r.Len())

	var got []float64
	r.Each(func(_ int, v float64) { got = append(got, v) })
	assert.Equal(t, []float64{3, 4, 5}, got)
	assert.Equal(t, 5.0, r.Max(func(a, b float64) bool { return a < b }))
}

func TestRingMaxEmpty(t *testing.T) {
	r := NewRing[int](0)
	assert.Equal(t, 1, r.Cap())
	assert.Equal(t, 0, r.Max(func(a, b int) bool { return a < b }))
}
