package gpu

// Arena stores driver objects behind generational handles. A removed slot
// is recycled with a bumped generation so stale handles never resolve to a
// newer object.
type Arena[T any] struct {
	entries []arenaEntry[T]
	free    []uint32
	live    int
}

type arenaEntry[T any] struct {
	generation uint32
	alive      bool
	value      T
}

func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

func pack(index, generation uint32) uint64 {
	return uint64(generation)<<32 | uint64(index+1)
}

func unpack(handle uint64) (index, generation uint32, ok bool) {
	lo := uint32(handle)
	if lo == 0 {
		return 0, 0, false
	}
	return lo - 1, uint32(handle >> 32), true
}

// Insert stores value and returns its handle. Handles are never zero.
func (a *Arena[T]) Insert(value T) uint64 {
	a.live++
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		e := &a.entries[index]
		e.alive = true
		e.value = value
		return pack(index, e.generation)
	}
	a.entries = append(a.entries, arenaEntry[T]{generation: 1, alive: true, value: value})
	return pack(uint32(len(a.entries)-1), 1)
}

func (a *Arena[T]) Get(handle uint64) (T, bool) {
	var zero T
	index, generation, ok := unpack(handle)
	if !ok || int(index) >= len(a.entries) {
		return zero, false
	}
	e := a.entries[index]
	if !e.alive || e.generation != generation {
		return zero, false
	}
	return e.value, true
}

// Remove releases handle. It reports false when the handle is null, stale
// or already removed.
func (a *Arena[T]) Remove(handle uint64) (T, bool) {
	var zero T
	index, generation, ok := unpack(handle)
	if !ok || int(index) >= len(a.entries) {
		return zero, false
	}
	e := &a.entries[index]
	if !e.alive || e.generation != generation {
		return zero, false
	}
	value := e.value
	e.alive = false
	e.value = zero
	e.generation++
	a.free = append(a.free, index)
	a.live--
	return value, true
}

// Each visits live entries in slot order.
func (a *Arena[T]) Each(fn func(handle uint64, value T)) {
	for i, e := range a.entries {
		if e.alive {
			fn(pack(uint32(i), e.generation), e.value)
		}
	}
}

func (a *Arena[T]) Len() int {
	return a.live
}
