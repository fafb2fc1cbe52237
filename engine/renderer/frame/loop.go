package frame

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateWaiting
	StateRecording
	StateSubmitted
	StatePresenting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateWaiting:
		return "waiting"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StatePresenting:
		return "presenting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Window reports the current drawable size in pixels.
type Window interface {
	GetFramebufferSize() (int, int)
}

type LoopConfig struct {
	FramesInFlight int
	Swapchain      SwapchainConfig
	ClearColor     gpu.Color
}

// Loop drives acquire, wait, record, submit and present for one surface. It
// must only be used from a single goroutine.
type Loop struct {
	ctx        *DeviceContext
	window     Window
	swapchains *SwapchainManager
	swapchain  *Swapchain
	slots      []*Slot
	deferred   *DeferredQueue
	overlays   []*attachedOverlay

	// Fence of the slot that last rendered into each swapchain image.
	imagesInFlight []gpu.Fence

	frameIndex    FrameIndex
	lastSubmitted FrameIndex
	imageIndex    ImageIndex
	state         State
	pending       bool
	clearColor    gpu.Color
	recorder      *commandRecorder
	frameNumber   uint64
}

// NewLoop creates the frame slots and the first swapchain. A window that
// starts minimized leaves the loop pending until it gets an area.
func NewLoop(ctx *DeviceContext, window Window, cfg LoopConfig) (*Loop, error) {
	slots, err := CreateFrameSlots(ctx, cfg.FramesInFlight)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		ctx:        ctx,
		window:     window,
		swapchains: NewSwapchainManager(ctx, cfg.Swapchain),
		slots:      slots,
		clearColor: cfg.ClearColor,
	}
	l.deferred = NewDeferredQueue(len(slots), l.fenceObserved)

	idle, err := ctx.WaitIdle()
	if err != nil {
		l.destroySlots()
		return nil, err
	}
	sc, err := l.swapchains.CreateOrResize(idle, l.windowExtent())
	switch {
	case errors.Is(err, ErrZeroExtent):
		core.LogInfo("Window has no area, swapchain creation postponed.")
		l.pending = true
	case err != nil:
		l.destroySlots()
		return nil, err
	default:
		l.useSwapchain(sc)
	}
	core.LogInfo("Frame loop ready: %d frame(s) in flight.", len(slots))
	return l, nil
}

func (l *Loop) fenceObserved(slot FrameIndex) bool {
	return l.slots[slot].fenceObserved
}

func (l *Loop) windowExtent() gpu.Extent2D {
	w, h := l.window.GetFramebufferSize()
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return gpu.Extent2D{Width: uint32(w), Height: uint32(h)}
}

func (l *Loop) useSwapchain(sc *Swapchain) {
	l.swapchain = sc
	l.imagesInFlight = make([]gpu.Fence, sc.ImageCount())
	l.frameIndex = 0
}

func (l *Loop) FrameIndex() FrameIndex { return l.frameIndex }
func (l *Loop) ImageIndex() ImageIndex { return l.imageIndex }
func (l *Loop) State() State { return l.state }
func (l *Loop) Pending() bool { return l.pending }
func (l *Loop) Swapchain() *Swapchain { return l.swapchain }
func (l *Loop) Slots() []*Slot { return l.slots }
func (l *Loop) Deferred() *DeferredQueue { return l.deferred }
func (l *Loop) FramesInFlight() int { return len(l.slots) }
func (l *Loop) FrameNumber() uint64 { return l.frameNumber }

func (l *Loop) SetClearColor(c gpu.Color) {
	l.clearColor = c
}

// Defer queues fn until the GPU is done with the frame that uses it. While
// recording that is the current slot. Between frames it is the slot that was
// submitted last, since the current index already points at the next frame.
func (l *Loop) Defer(fn func()) {
	switch l.state {
	case StateRecording:
		l.deferred.Defer(l.frameIndex, fn)
	case StateIdle:
		l.deferred.Defer(l.lastSubmitted, fn)
	default:
		gpu.Invariant("Loop.Defer", "called while a frame is %s", l.state)
	}
}

// Uncapped reports whether the swapchain prefers mailbox presentation.
func (l *Loop) Uncapped() bool { return l.swapchains.Uncapped() }

// SetUncapped switches the present mode and rebuilds the swapchain.
func (l *Loop) SetUncapped(uncapped bool) error {
	if l.swapchains.Uncapped() == uncapped {
		return nil
	}
	l.requireIdle("Loop.SetUncapped")
	l.swapchains.SetUncapped(uncapped)
	core.LogInfo("Present mode uncapped=%t, rebuilding swapchain.", uncapped)
	return l.HandleStale(l.windowExtent())
}

func (l *Loop) requireIdle(op string) {
	if l.state != StateIdle {
		gpu.Invariant(op, "called while a frame is %s", l.state)
	}
}

func (l *Loop) fail(err error) error {
	l.state = StateIdle
	return err
}

// BeginFrame acquires an image, waits for the slot to be free, drains its
// deferred queue and opens the render pass. core.ErrSwapchainBooting means
// no frame was started this tick.
func (l *Loop) BeginFrame() (gpu.Recorder, error) {
	l.requireIdle("Loop.BeginFrame")
	dev := l.ctx.Device

	if l.pending {
		extent := l.windowExtent()
		if extent.IsZero() {
			return nil, core.ErrSwapchainBooting
		}
		if err := l.HandleStale(extent); err != nil {
			return nil, err
		}
		return nil, core.ErrSwapchainBooting
	}

	slot := l.slots[l.frameIndex]

	l.state = StateAcquiring
	idx, err := dev.AcquireNextImage(l.swapchain.Handle, gpu.Infinite, slot.ImageAcquired)
	if err != nil {
		l.state = StateIdle
		if !gpu.IsStale(err) {
			return nil, err
		}
		if errors.Is(err, gpu.ErrSuboptimal) {
			slot.acquireSignaled = true
		}
		core.LogDebug("acquire reported %s, rebuilding swapchain", err)
		if err := l.HandleStale(l.windowExtent()); err != nil {
			return nil, err
		}
		return nil, core.ErrSwapchainBooting
	}
	image := ImageIndex(idx)

	l.state = StateWaiting
	if err := dev.WaitFence(slot.Fence, gpu.Infinite); err != nil {
		return nil, l.fail(err)
	}
	slot.fenceObserved = true

	// Make sure a previous frame is not still rendering into this image.
	if prev := l.imagesInFlight[image]; prev != 0 && prev != slot.Fence {
		if err := dev.WaitFence(prev, gpu.Infinite); err != nil {
			return nil, l.fail(err)
		}
		for _, s := range l.slots {
			if s.Fence == prev {
				s.fenceObserved = true
			}
		}
	}
	l.imagesInFlight[image] = slot.Fence

	l.deferred.Drain(l.frameIndex)

	l.state = StateRecording
	if err := dev.ResetCommandPool(slot.Pool); err != nil {
		return nil, l.fail(err)
	}
	if err := dev.BeginCommandBuffer(slot.CommandBuffer); err != nil {
		return nil, l.fail(err)
	}
	extent := l.swapchain.Extent
	dev.CmdBeginRenderPass(slot.CommandBuffer, gpu.RenderPassBegin{
		RenderPass:  l.swapchain.RenderPass,
		Framebuffer: l.swapchain.Framebuffer(image),
		Area:        gpu.Rect{Width: extent.Width, Height: extent.Height},
		Clear:       l.clearColor,
	})
	l.imageIndex = image
	l.recorder = &commandRecorder{device: dev, cb: slot.CommandBuffer, extent: extent}
	l.recorder.SetViewport(gpu.Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1})
	l.recorder.SetScissor(gpu.Rect{Width: extent.Width, Height: extent.Height})
	return l.recorder, nil
}

// Recorder returns the recorder of the frame being recorded, or nil.
func (l *Loop) Recorder() gpu.Recorder {
	if l.state != StateRecording {
		return nil
	}
	return l.recorder
}

// EndFrame records the overlays, closes the render pass, submits the slot and
// presents the image.
func (l *Loop) EndFrame() error {
	if l.state != StateRecording {
		gpu.Invariant("Loop.EndFrame", "no frame is being recorded (state %s)", l.state)
	}
	dev := l.ctx.Device
	slot := l.slots[l.frameIndex]

	if err := l.recordOverlays(); err != nil {
		return l.fail(err)
	}

	dev.CmdEndRenderPass(slot.CommandBuffer)
	if err := dev.EndCommandBuffer(slot.CommandBuffer); err != nil {
		return l.fail(err)
	}
	l.recorder = nil

	l.state = StateSubmitted
	if err := dev.ResetFence(slot.Fence); err != nil {
		return l.fail(err)
	}
	slot.fenceObserved = false
	err := l.ctx.Submit(gpu.SubmitInfo{
		CommandBuffer: slot.CommandBuffer,
		Wait:          slot.ImageAcquired,
		WaitStage:     gpu.StageColorAttachmentOutput,
		Signal:        slot.RenderComplete,
		Fence:         slot.Fence,
	})
	if err != nil {
		return l.fail(fmt.Errorf("queue submit failed: %w", err))
	}
	slot.acquireSignaled = false
	l.lastSubmitted = l.frameIndex

	l.state = StatePresenting
	err = l.ctx.Present(l.swapchain.Handle, l.imageIndex, slot.RenderComplete)

	l.frameIndex = (l.frameIndex + 1) % FrameIndex(len(l.slots))
	l.frameNumber++
	l.state = StateIdle

	if err != nil {
		if !gpu.IsStale(err) {
			return err
		}
		core.LogDebug("present reported %s, rebuilding swapchain", err)
		return l.HandleStale(l.windowExtent())
	}
	return nil
}

// Tick runs one full frame. It returns core.ErrSwapchainBooting when the
// frame was skipped.
func (l *Loop) Tick(record func(gpu.Recorder) error) error {
	rec, err := l.BeginFrame()
	if err != nil {
		return err
	}
	if record != nil {
		if err := record(rec); err != nil {
			l.abandon()
			return err
		}
	}
	return l.EndFrame()
}

// abandon closes a frame whose recording failed. The acquired image is left
// to the next rebuild.
func (l *Loop) abandon() {
	dev := l.ctx.Device
	slot := l.slots[l.frameIndex]
	dev.CmdEndRenderPass(slot.CommandBuffer)
	if err := dev.EndCommandBuffer(slot.CommandBuffer); err != nil {
		core.LogWarn("Abandoned frame %d: end command buffer failed: %s", l.frameNumber, err)
	}
	slot.acquireSignaled = true
	l.recorder = nil
	l.state = StateIdle
	l.pending = true
}

// Shutdown waits for the device, runs every deferred destructor once and
// destroys the slots and the swapchain. The device context stays alive.
func (l *Loop) Shutdown() error {
	idle, err := l.ctx.WaitIdle()
	if err != nil {
		return fmt.Errorf("final device wait failed: %w", err)
	}
	l.state = StateIdle
	for _, s := range l.slots {
		s.fenceObserved = true
	}

	for i := len(l.overlays) - 1; i >= 0; i-- {
		l.overlays[i].overlay.Detach(l.overlayContext())
	}
	l.overlays = nil

	n := l.deferred.DrainAll()
	core.LogDebug("%d deferred destructor(s) ran on shutdown", n)

	l.destroySlots()
	l.swapchains.Destroy(idle)
	l.swapchain = nil
	l.imagesInFlight = nil
	return nil
}

func (l *Loop) destroySlots() {
	for _, s := range l.slots {
		s.destroy(l.ctx.Device)
	}
	l.slots = nil
}
