package frame

import (
	"sync"

	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// DeferredQueue holds destructors per slot until the GPU can no longer
// reference what they free. Drain for a slot is only legal once that slot's
// fence has been observed signaled.
type DeferredQueue struct {
	mu     sync.Mutex
	queues [][]func()
	gate   func(FrameIndex) bool
}

// NewDeferredQueue creates n per-slot queues; gate reports whether a slot's
// fence was observed signaled since its last submission.
func NewDeferredQueue(n int, gate func(FrameIndex) bool) *DeferredQueue {
	return &DeferredQueue{
		queues: make([][]func(), n),
		gate:   gate,
	}
}

// Defer appends fn to the queue of slot.
func (q *DeferredQueue) Defer(slot FrameIndex, fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[slot] = append(q.queues[slot], fn)
}

// Drain runs and clears the queue of slot in insertion order and returns how
// many closures ran. Closures deferred while draining run on the next drain.
func (q *DeferredQueue) Drain(slot FrameIndex) int {
	if q.gate != nil && !q.gate(slot) {
		gpu.Invariant("DeferredQueue.Drain", "slot %d drained before its fence was observed signaled", slot)
	}
	q.mu.Lock()
	fns := q.queues[slot]
	q.queues[slot] = nil
	q.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// DrainAll drains every slot, in slot order.
func (q *DeferredQueue) DrainAll() int {
	n := 0
	for i := range q.queues {
		n += q.Drain(FrameIndex(i))
	}
	return n
}

func (q *DeferredQueue) Len(slot FrameIndex) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[slot])
}
