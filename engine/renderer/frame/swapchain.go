package frame

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/karma/engine/core"
	kmath "github.com/spaghettifunk/karma/engine/math"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// ErrZeroExtent is returned when the surface currently has no area, for
// example while the window is minimized. Nothing is destroyed in that case.
var ErrZeroExtent = errors.New("surface has a zero extent")

type SwapchainConfig struct {
	// Priority list; the first supported entry wins.
	PreferredFormats []gpu.Format
	// Prefer MAILBOX, then IMMEDIATE, over FIFO.
	Uncapped bool
	// Requested image count. The surface minimum + 1 is used when larger.
	ImageCount uint32
}

// Swapchain is one generation of presentable images and everything derived
// from them. It is rebuilt as a whole, never patched.
type Swapchain struct {
	ID           uuid.UUID
	Generation   uint64
	Handle       gpu.Swapchain
	Format       gpu.SurfaceFormat
	PresentMode  gpu.PresentMode
	Extent       gpu.Extent2D
	Images       []gpu.Image
	Views        []gpu.ImageView
	RenderPass   gpu.RenderPass
	Framebuffers []gpu.Framebuffer
}

func (s *Swapchain) ImageCount() int {
	return len(s.Images)
}

// Framebuffer selects the render target of an acquired image.
func (s *Swapchain) Framebuffer(image ImageIndex) gpu.Framebuffer {
	return s.Framebuffers[image]
}

// destroy tears down in dependency order and tolerates a partial build.
func (s *Swapchain) destroy(device gpu.Device) {
	for i := len(s.Framebuffers) - 1; i >= 0; i-- {
		device.DestroyFramebuffer(s.Framebuffers[i])
	}
	s.Framebuffers = nil
	if s.RenderPass != 0 {
		device.DestroyRenderPass(s.RenderPass)
		s.RenderPass = 0
	}
	for i := len(s.Views) - 1; i >= 0; i-- {
		device.DestroyImageView(s.Views[i])
	}
	s.Views = nil
	if s.Handle != 0 {
		device.DestroySwapchain(s.Handle)
		s.Handle = 0
	}
	s.Images = nil
}

// SwapchainManager is the only owner of swapchain objects.
type SwapchainManager struct {
	ctx        *DeviceContext
	cfg        SwapchainConfig
	current    *Swapchain
	generation uint64
}

func NewSwapchainManager(ctx *DeviceContext, cfg SwapchainConfig) *SwapchainManager {
	return &SwapchainManager{ctx: ctx, cfg: cfg}
}

func (m *SwapchainManager) Current() *Swapchain {
	return m.current
}

func (m *SwapchainManager) SetUncapped(uncapped bool) {
	m.cfg.Uncapped = uncapped
}

func (m *SwapchainManager) Uncapped() bool {
	return m.cfg.Uncapped
}

// CreateOrResize replaces the current swapchain with one sized for desired.
// The idle token must come from DeviceContext.WaitIdle with no submission
// since; anything else is a caller bug.
func (m *SwapchainManager) CreateOrResize(idle IdleToken, desired gpu.Extent2D) (*Swapchain, error) {
	m.ctx.assertIdle("SwapchainManager.CreateOrResize", idle)

	support, err := m.ctx.QuerySupport()
	if err != nil {
		return nil, err
	}
	extent := chooseExtent(support.Capabilities, desired)
	if extent.IsZero() {
		return nil, ErrZeroExtent
	}

	if m.current != nil {
		core.LogDebug("destroying swapchain %s (generation %d)", m.current.ID, m.current.Generation)
		m.current.destroy(m.ctx.Device)
		m.current = nil
	}

	sc, err := m.build(support, extent)
	if err != nil {
		core.LogError("failed to create swapchain: %s", err)
		return nil, err
	}
	m.current = sc
	core.LogInfo("Swapchain %s created: generation %d, %s, %d images, %s, %s.",
		sc.ID, sc.Generation, sc.Extent, len(sc.Images), sc.Format.Format, sc.PresentMode)
	return sc, nil
}

func (m *SwapchainManager) build(support gpu.SurfaceSupport, extent gpu.Extent2D) (_ *Swapchain, err error) {
	dev := m.ctx.Device
	m.generation++
	sc := &Swapchain{
		ID:          uuid.New(),
		Generation:  m.generation,
		Format:      chooseSurfaceFormat(m.cfg.PreferredFormats, support.Formats),
		PresentMode: choosePresentMode(m.cfg.Uncapped, support.PresentModes),
		Extent:      extent,
	}
	defer func() {
		if err != nil {
			sc.destroy(dev)
		}
	}()

	desc := gpu.SwapchainDesc{
		Surface:     m.ctx.Surface,
		Format:      sc.Format,
		PresentMode: sc.PresentMode,
		Extent:      extent,
		ImageCount:  chooseImageCount(support.Capabilities, m.cfg.ImageCount),
		Transform:   support.Capabilities.CurrentTransform,
	}
	if m.ctx.GraphicsFamily != m.ctx.PresentFamily {
		desc.QueueFamilies = []uint32{m.ctx.GraphicsFamily, m.ctx.PresentFamily}
	}

	if sc.Handle, err = dev.CreateSwapchain(desc); err != nil {
		return nil, err
	}
	if sc.Images, err = dev.SwapchainImages(sc.Handle); err != nil {
		return nil, err
	}
	for _, img := range sc.Images {
		view, err := dev.CreateImageView(img, sc.Format.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to create image view: %w", err)
		}
		sc.Views = append(sc.Views, view)
	}
	if sc.RenderPass, err = dev.CreateRenderPass(gpu.RenderPassDesc{ColorFormat: sc.Format.Format}); err != nil {
		return nil, err
	}
	for _, view := range sc.Views {
		fb, err := dev.CreateFramebuffer(gpu.FramebufferDesc{
			RenderPass: sc.RenderPass,
			Attachment: view,
			Extent:     extent,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create framebuffer: %w", err)
		}
		sc.Framebuffers = append(sc.Framebuffers, fb)
	}

	if len(sc.Framebuffers) != len(sc.Images) || len(sc.Views) != len(sc.Images) {
		gpu.Invariant("SwapchainManager.build", "framebuffers=%d views=%d images=%d", len(sc.Framebuffers), len(sc.Views), len(sc.Images))
	}
	return sc, nil
}

// Destroy releases the current swapchain. Same idle precondition as
// CreateOrResize.
func (m *SwapchainManager) Destroy(idle IdleToken) {
	m.ctx.assertIdle("SwapchainManager.Destroy", idle)
	if m.current == nil {
		return
	}
	m.current.destroy(m.ctx.Device)
	m.current = nil
}

func chooseSurfaceFormat(preferred []gpu.Format, formats []gpu.SurfaceFormat) gpu.SurfaceFormat {
	for _, want := range preferred {
		for _, f := range formats {
			if f.Format == want && f.ColorSpace == gpu.ColorSpaceSrgbNonlinear {
				return f
			}
		}
	}
	return formats[0]
}

func choosePresentMode(uncapped bool, modes []gpu.PresentMode) gpu.PresentMode {
	if !uncapped {
		return gpu.PresentModeFifo
	}
	for _, want := range []gpu.PresentMode{gpu.PresentModeMailbox, gpu.PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return gpu.PresentModeFifo
}

func chooseImageCount(caps gpu.SurfaceCapabilities, requested uint32) uint32 {
	count := caps.MinImageCount + 1
	if requested > count {
		count = requested
	}
	if caps.MaxImageCount > 0 {
		count = kmath.Clamp(count, caps.MinImageCount, caps.MaxImageCount)
	}
	return count
}

func chooseExtent(caps gpu.SurfaceCapabilities, desired gpu.Extent2D) gpu.Extent2D {
	if caps.CurrentExtent.Width != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	return gpu.Extent2D{
		Width:  kmath.Clamp(desired.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: kmath.Clamp(desired.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}
