package headless

import (
	"sync"
	"unsafe"
)

// Window is an off screen framebuffer size source. It satisfies
// gpu.SurfaceSource so the headless instance can build surfaces from it.
type Window struct {
	mu     sync.Mutex
	width  int
	height int
}

func NewWindow(width, height int) *Window {
	return &Window{width: width, height: height}
}

// Resize changes the size reported to surfaces. Zero minimizes.
func (w *Window) Resize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
}

func (w *Window) GetFramebufferSize() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *Window) CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error) {
	return uintptr(unsafe.Pointer(w)), nil
}
