package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusFireInRegistrationOrder(t *testing.T) {
	bus := NewEventBus()
	var calls []string
	a, b := &struct{ n int }{1}, &struct{ n int }{2}

	require.True(t, bus.Register(EVENT_CODE_RESIZED, a, func(ctx EventContext) bool {
		calls = append(calls, "a")
		return false
	}))
	require.True(t, bus.Register(EVENT_CODE_RESIZED, b, func(ctx EventContext) bool {
		ev := ctx.Data.(*SystemEvent)
		assert.Equal(t, uint32(640), ev.WindowWidth)
		calls = append(calls, "b")
		return true
	}))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, a, func(EventContext) bool { return false }))

	handled := bus.Fire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 640, WindowHeight: 480}})
	assert.True(t, handled)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus()
	listener := &struct{ n int }{}
	fired := 0
	bus.Register(EVENT_CODE_APPLICATION_QUIT, listener, func(EventContext) bool {
		fired++
		return true
	})
	assert.True(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, listener))
	assert.False(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, listener))
	assert.False(t, bus.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
	assert.Equal(t, 0, fired)
}

func TestEventBusShutdown(t *testing.T) {
	bus := NewEventBus()
	bus.Register(EVENT_CODE_KEY_PRESSED, t, func(EventContext) bool { return true })
	bus.Shutdown()
	assert.False(t, bus.Fire(EventContext{Type: EVENT_CODE_KEY_PRESSED, Data: &KeyEvent{KeyCode: KEY_ESCAPE}}))
}
