package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
	Headless
)

func (t RendererType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	case Headless:
		return "headless"
	default:
		return fmt.Sprintf("RendererType(%d)", uint8(t))
	}
}

// RenderPacket is everything drawn in one frame.
type RenderPacket struct {
	DeltaTime float64
	Drawables []Drawable
}

type Renderer struct {
	backend Backend
	skipped uint64
	drawn   uint64
}

func New(backend Backend) *Renderer {
	return &Renderer{backend: backend}
}

func (r *Renderer) Initialize(appName string, width, height uint32) error {
	return r.backend.Initialize(appName, width, height)
}

func (r *Renderer) Shutdown() error {
	return r.backend.Shutdown()
}

func (r *Renderer) OnResize(width, height uint32) error {
	return r.backend.Resized(width, height)
}

// DrawFrame renders one packet. A frame skipped while the swapchain is being
// rebuilt is not an error.
func (r *Renderer) DrawFrame(packet *RenderPacket) error {
	if err := r.backend.BeginFrame(packet.DeltaTime); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			r.skipped++
			return nil
		}
		core.LogError("BeginFrame failed: %s", err)
		return err
	}
	for _, d := range packet.Drawables {
		if err := r.backend.SubmitDrawable(d); err != nil {
			core.LogError("drawable failed: %s", err)
			return err
		}
	}
	if err := r.backend.EndFrame(packet.DeltaTime); err != nil {
		core.LogError("EndFrame failed. Application shutting down...")
		return err
	}
	r.drawn++
	return nil
}

// Stats returns the number of presented and skipped frames.
func (r *Renderer) Stats() (drawn, skipped uint64) {
	return r.drawn, r.skipped
}

// ClearRect fills a rectangle with a solid color.
type ClearRect struct {
	Rect  gpu.Rect
	Color gpu.Color
}

func (c ClearRect) Draw(rec gpu.Recorder) error {
	rec.ClearRects(c.Color, c.Rect)
	return nil
}
