package frame

import (
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// BackendWindow is what the backend needs from the platform window.
type BackendWindow interface {
	gpu.SurfaceSource
	Window
}

type BackendConfig struct {
	Requirements Requirements
	Loop         LoopConfig
}

// Backend implements renderer.Backend on top of a gpu driver. It takes
// ownership of the instance. All methods are safe to call from several
// goroutines; frame calls are serialized.
type Backend struct {
	mu       sync.Mutex
	instance gpu.Instance
	window   BackendWindow
	cfg      BackendConfig

	ctx  *DeviceContext
	loop *Loop

	resizeGeneration  uint64
	appliedGeneration uint64
	resizeExtent      gpu.Extent2D

	uncapped   *bool
	clearColor *gpu.Color

	initialized bool
	shutdown    bool
}

var _ renderer.Backend = (*Backend)(nil)

func NewBackend(instance gpu.Instance, window BackendWindow, cfg BackendConfig) *Backend {
	return &Backend{
		instance: instance,
		window:   window,
		cfg:      cfg,
	}
}

func (b *Backend) Initialize(appName string, width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return core.ErrAlreadyShutdown
	}
	if b.initialized {
		return nil
	}

	ctx, err := CreateDevice(b.instance, b.window, b.cfg.Requirements)
	if err != nil {
		return err
	}
	loop, err := NewLoop(ctx, b.window, b.cfg.Loop)
	if err != nil {
		ctx.Destroy()
		return err
	}
	b.ctx = ctx
	b.loop = loop
	b.initialized = true
	core.LogInfo("%s: renderer initialized on %s (%dx%d requested).", appName, ctx, width, height)
	return nil
}

// Shutdown waits for the device and releases everything in reverse creation
// order. Calling it again is a no-op.
func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return nil
	}
	b.shutdown = true
	if !b.initialized {
		b.instance.Destroy()
		return nil
	}
	if err := b.loop.Shutdown(); err != nil {
		return err
	}
	b.ctx.Destroy()
	b.instance.Destroy()
	core.LogInfo("Renderer shut down.")
	return nil
}

// Resized records a window resize. It is applied at the start of the next
// frame, which is skipped.
func (b *Backend) Resized(width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resizeGeneration++
	b.resizeExtent = gpu.Extent2D{Width: width, Height: height}
	return nil
}

// SetUncapped requests a present mode change for the next frame.
func (b *Backend) SetUncapped(uncapped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uncapped = &uncapped
}

func (b *Backend) SetClearColor(c gpu.Color) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearColor = &c
}

func (b *Backend) ready() error {
	if b.shutdown {
		return core.ErrAlreadyShutdown
	}
	if !b.initialized {
		return core.ErrNotInitialized
	}
	return nil
}

func (b *Backend) BeginFrame(deltaTime float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return err
	}
	if b.clearColor != nil {
		b.loop.SetClearColor(*b.clearColor)
		b.clearColor = nil
	}
	rebuilt := false
	if b.uncapped != nil {
		uncapped := *b.uncapped
		b.uncapped = nil
		if b.loop.Uncapped() != uncapped {
			if err := b.loop.SetUncapped(uncapped); err != nil {
				return err
			}
			rebuilt = true
		}
	}
	if b.appliedGeneration != b.resizeGeneration {
		b.appliedGeneration = b.resizeGeneration
		if err := b.loop.HandleStale(b.resizeExtent); err != nil {
			return err
		}
		rebuilt = true
	}
	if rebuilt {
		return core.ErrSwapchainBooting
	}
	_, err := b.loop.BeginFrame()
	return err
}

// SubmitDrawable records d into the current frame. A failing drawable
// abandons the frame.
func (b *Backend) SubmitDrawable(d renderer.Drawable) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return err
	}
	rec := b.loop.Recorder()
	if rec == nil {
		gpu.Invariant("Backend.SubmitDrawable", "no frame is being recorded")
	}
	if err := d.Draw(rec); err != nil {
		b.loop.abandon()
		return err
	}
	return nil
}

func (b *Backend) EndFrame(deltaTime float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return err
	}
	return b.loop.EndFrame()
}

// AttachOverlay attaches o to the frame loop.
func (b *Backend) AttachOverlay(o Overlay) (uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return uuid.Nil, err
	}
	return b.loop.AttachOverlay(o)
}

func (b *Backend) DetachOverlay(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready() != nil {
		return false
	}
	return b.loop.DetachOverlay(id)
}

// Loop exposes the frame loop, nil before Initialize.
func (b *Backend) Loop() *Loop {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loop
}
