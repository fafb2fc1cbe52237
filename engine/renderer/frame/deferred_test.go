package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredQueueDrainsInOrderOnce(t *testing.T) {
	observed := []bool{true, true}
	q := NewDeferredQueue(2, func(slot FrameIndex) bool { return observed[slot] })

	var got []int
	for i := 0; i < 3; i++ {
		i := i
		q.Defer(0, func() { got = append(got, i) })
	}
	q.Defer(1, func() { got = append(got, 100) })
	q.Defer(0, nil)
	assert.Equal(t, 3, q.Len(0))

	assert.Equal(t, 3, q.Drain(0))
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Zero(t, q.Drain(0))
	assert.Equal(t, []int{0, 1, 2}, got)

	assert.Equal(t, 1, q.DrainAll())
	assert.Equal(t, []int{0, 1, 2, 100}, got)
}

func TestDeferredQueueRequiresObservedFence(t *testing.T) {
	observed := false
	q := NewDeferredQueue(1, func(FrameIndex) bool { return observed })
	ran := 0
	q.Defer(0, func() { ran++ })

	requireInvariant(t, func() { q.Drain(0) })
	assert.Zero(t, ran)
	assert.Equal(t, 1, q.Len(0))

	observed = true
	q.Drain(0)
	assert.Equal(t, 1, ran)
}

func TestDeferredQueueReentrantDefer(t *testing.T) {
	q := NewDeferredQueue(1, nil)
	ran := 0
	q.Defer(0, func() {
		ran++
		q.Defer(0, func() { ran++ })
	})
	require.Equal(t, 1, q.Drain(0))
	assert.Equal(t, 1, ran)
	require.Equal(t, 1, q.Drain(0))
	assert.Equal(t, 2, ran)
}
