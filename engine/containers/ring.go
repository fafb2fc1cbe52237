package containers

import "errors"

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
)

// Ring is a fixed size FIFO queue. Push overwrites the oldest element
// once the ring is full; Enqueue refuses instead.
type Ring[T any] struct {
	data       []T
	size       int
	readIndex  int
	writeIndex int
	count      int
}

// Create a new Ring able to hold size elements
func NewRing[T any](size int) *Ring[T] {
	if size < 1 {
		size = 1
	}
	return &Ring[T]{
		data: make([]T, size),
		size: size,
	}
}

// Enqueue adds an element to the queue
func (r *Ring[T]) Enqueue(value T) error {
	if r.IsFull() {
		return ErrQueueFull
	}
	r.data[r.writeIndex] = value
	r.writeIndex = (r.writeIndex + 1) % r.size
	r.count++
	return nil
}

// Push adds an element, dropping the oldest one if the queue is full
func (r *Ring[T]) Push(value T) {
	if r.IsFull() {
		r.readIndex = (r.readIndex + 1) % r.size
		r.count--
	}
	_ = r.Enqueue(value)
}

// Dequeue removes and returns the front element in the queue
func (r *Ring[T]) Dequeue() (T, error) {
	var zero T
	if r.IsEmpty() {
		return zero, ErrQueueEmpty
	}
	value := r.data[r.readIndex]
	r.data[r.readIndex] = zero
	r.readIndex = (r.readIndex + 1) % r.size
	r.count--
	return value, nil
}

// Peek returns the front element without removing it
func (r *Ring[T]) Peek() (T, error) {
	if r.IsEmpty() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return r.data[r.readIndex], nil
}

// Each visits the elements from oldest to newest.
func (r *Ring[T]) Each(fn func(i int, value T)) {
	for i := 0; i < r.count; i++ {
		fn(i, r.data[(r.readIndex+i)%r.size])
	}
}

// Max returns the largest element according to less, or the zero value.
func (r *Ring[T]) Max(less func(a, b T) bool) T {
	var best T
	r.Each(func(i int, v T) {
		if i == 0 || less(best, v) {
			best = v
		}
	})
	return best
}

func (r *Ring[T]) Len() int { return r.count }

func (r *Ring[T]) Cap() int { return r.size }

// IsEmpty checks if the queue is empty
func (r *Ring[T]) IsEmpty() bool {
	return r.count == 0
}

// IsFull checks if the queue is full
func (r *Ring[T]) IsFull() bool {
	return r.count == r.size
}
