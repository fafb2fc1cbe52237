package frame

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// Overlay draws on top of the frame inside the main render pass. Overlays
// borrow the swapchain objects; they only own what they create themselves.
type Overlay interface {
	Name() string
	Attach(ctx OverlayContext) error
	SwapchainRecreated(ctx OverlayContext)
	Record(frame *OverlayFrame) error
	// Detach releases the overlay's own resources, typically through
	// OverlayContext.Defer.
	Detach(ctx OverlayContext)
}

// OverlayContext describes the shared render target. It is a snapshot; the
// handles change whenever the swapchain is rebuilt.
type OverlayContext struct {
	Device         gpu.Device
	FramesInFlight int
	RenderPass     gpu.RenderPass
	Format         gpu.Format
	Extent         gpu.Extent2D
	ImageCount     int

	queue *DeferredQueue
}

// Defer destroys something once slot's last use of it has completed.
func (c OverlayContext) Defer(slot FrameIndex, fn func()) {
	c.queue.Defer(slot, fn)
}

// OverlayFrame is what an overlay sees while the frame is recorded.
type OverlayFrame struct {
	Device      gpu.Device
	RenderPass  gpu.RenderPass
	Framebuffer gpu.Framebuffer
	Extent      gpu.Extent2D
	FrameIndex  FrameIndex
	ImageIndex  ImageIndex
	// Records into the slot's command buffer, reset with the slot pool.
	Recorder gpu.Recorder

	queue *DeferredQueue
}

// Defer queues fn on the current slot.
func (f *OverlayFrame) Defer(fn func()) {
	f.queue.Defer(f.FrameIndex, fn)
}

type attachedOverlay struct {
	id      uuid.UUID
	overlay Overlay
}

func (l *Loop) overlayContext() OverlayContext {
	ctx := OverlayContext{
		Device:         l.ctx.Device,
		FramesInFlight: len(l.slots),
		queue:          l.deferred,
	}
	if sc := l.swapchain; sc != nil {
		ctx.RenderPass = sc.RenderPass
		ctx.Format = sc.Format.Format
		ctx.Extent = sc.Extent
		ctx.ImageCount = sc.ImageCount()
	}
	return ctx
}

// AttachOverlay registers o; overlays record in attach order.
func (l *Loop) AttachOverlay(o Overlay) (uuid.UUID, error) {
	l.requireIdle("Loop.AttachOverlay")
	if err := o.Attach(l.overlayContext()); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	l.overlays = append(l.overlays, &attachedOverlay{id: id, overlay: o})
	core.LogDebug("overlay '%s' attached as %s", o.Name(), id)
	return id, nil
}

// DetachOverlay removes the overlay with id. It reports false if none matched.
func (l *Loop) DetachOverlay(id uuid.UUID) bool {
	l.requireIdle("Loop.DetachOverlay")
	for i, a := range l.overlays {
		if a.id == id {
			a.overlay.Detach(l.overlayContext())
			l.overlays = append(l.overlays[:i], l.overlays[i+1:]...)
			core.LogDebug("overlay '%s' detached", a.overlay.Name())
			return true
		}
	}
	return false
}

func (l *Loop) recordOverlays() error {
	if len(l.overlays) == 0 {
		return nil
	}
	frame := &OverlayFrame{
		Device:      l.ctx.Device,
		RenderPass:  l.swapchain.RenderPass,
		Framebuffer: l.swapchain.Framebuffer(l.imageIndex),
		Extent:      l.swapchain.Extent,
		FrameIndex:  l.frameIndex,
		ImageIndex:  l.imageIndex,
		Recorder:    l.recorder,
		queue:       l.deferred,
	}
	for _, a := range l.overlays {
		if err := a.overlay.Record(frame); err != nil {
			return err
		}
	}
	return nil
}
