package gpu

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaGenerations(t *testing.T) {
	a := NewArena[string]()
	h1 := a.Insert("one")
	require.NotZero(t, h1)

	v, ok := a.Get(h1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	_, ok = a.Remove(h1)
	require.True(t, ok)
	_, ok = a.Remove(h1)
	assert.False(t, ok, "double remove must be detected")

	h2 := a.Insert("two")
	assert.NotEqual(t, h1, h2, "recycled slot gets a new generation")
	_, ok = a.Get(h1)
	assert.False(t, ok)
	assert.Equal(t, 1, a.Len())

	_, ok = a.Get(0)
	assert.False(t, ok)
}

func TestArenaEach(t *testing.T) {
	a := NewArena[int]()
	var handles []uint64
	for i := 0; i < 4; i++ {
		handles = append(handles, a.Insert(i))
	}
	a.Remove(handles[1])

	var seen []int
	a.Each(func(_ uint64, v int) { seen = append(seen, v) })
	assert.Equal(t, []int{0, 2, 3}, seen)
}

func TestCheckClassifiesResults(t *testing.T) {
	assert.NoError(t, Check("op", Success))

	err := Check("acquire", ErrorOutOfDate)
	assert.True(t, IsStale(err))
	assert.True(t, errors.Is(err, ErrOutOfDate))

	err = Check("present", Suboptimal)
	assert.True(t, errors.Is(err, ErrSuboptimal))
	assert.True(t, IsStale(err))

	err = Check("submit", ErrorDeviceLost)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindFatal, kind)
	assert.True(t, errors.Is(err, ErrDeviceLost))

	wrapped := fmt.Errorf("frame: %w", Check("alloc", ErrorOutOfDeviceMemory))
	kind, ok = KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindFatal, kind)
	assert.False(t, IsStale(wrapped))
	assert.Contains(t, wrapped.Error(), "ERROR_OUT_OF_DEVICE_MEMORY")
}

func TestInvariantPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*Error)
		require.True(t, ok)
		assert.Equal(t, KindInvariant, err.Kind)
		assert.Contains(t, err.Error(), "fence 7")
	}()
	Invariant("drain", "fence %d not observed", 7)
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat("b8g8r8a8_srgb")
	require.True(t, ok)
	assert.Equal(t, FormatB8G8R8A8Srgb, f)

	_, ok = ParseFormat("UNDEFINED")
	assert.False(t, ok)
	_, ok = ParseFormat("D32")
	assert.False(t, ok)
}

func TestColorFromSlice(t *testing.T) {
	assert.Equal(t, Color{R: 0.1, G: 0.2, B: 0.3, A: 1}, ColorFromSlice([]float32{0.1, 0.2, 0.3, 1}))
	assert.Equal(t, Color{R: 1}, ColorFromSlice([]float32{1}))
}
