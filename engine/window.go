package engine

import (
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/frame"
	"github.com/spaghettifunk/karma/engine/renderer/headless"
)

// Window is the platform side of the engine: it feeds events into the bus
// on PumpMessages and is the surface source of the renderer.
type Window interface {
	frame.BackendWindow
	PumpMessages() bool
	Shutdown() error
}

// offscreenWindow drives the headless backend. Resizes go through the bus
// like the GLFW framebuffer callback does.
type offscreenWindow struct {
	*headless.Window
	events *core.EventBus
	closed bool
}

func newOffscreenWindow(events *core.EventBus, width, height uint32) *offscreenWindow {
	return &offscreenWindow{
		Window: headless.NewWindow(int(width), int(height)),
		events: events,
	}
}

func (w *offscreenWindow) Resize(width, height uint32) {
	w.Window.Resize(int(width), int(height))
	w.events.Fire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: width, WindowHeight: height},
	})
}

func (w *offscreenWindow) PumpMessages() bool {
	return !w.closed
}

func (w *offscreenWindow) Shutdown() error {
	w.closed = true
	return nil
}
