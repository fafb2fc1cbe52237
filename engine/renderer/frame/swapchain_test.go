package frame

import (
	"testing"

	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"github.com/spaghettifunk/karma/engine/renderer/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseSurfaceFormat(t *testing.T) {
	available := []gpu.SurfaceFormat{
		{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
		{Format: gpu.FormatR8G8B8A8Srgb, ColorSpace: gpu.ColorSpaceExtendedSrgbLinear},
		{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
	}
	tests := []struct {
		name      string
		preferred []gpu.Format
		want      gpu.Format
	}{
		{"first preferred wins", []gpu.Format{gpu.FormatB8G8R8A8Srgb, gpu.FormatB8G8R8A8Unorm}, gpu.FormatB8G8R8A8Srgb},
		{"skips missing", []gpu.Format{gpu.FormatA2B10G10R10Unorm, gpu.FormatB8G8R8A8Unorm}, gpu.FormatB8G8R8A8Unorm},
		{"requires srgb nonlinear", []gpu.Format{gpu.FormatR8G8B8A8Srgb}, gpu.FormatB8G8R8A8Unorm},
		{"falls back to first", nil, gpu.FormatB8G8R8A8Unorm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chooseSurfaceFormat(tt.preferred, available).Format)
		})
	}
}

func TestChoosePresentMode(t *testing.T) {
	all := []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeImmediate, gpu.PresentModeMailbox}
	assert.Equal(t, gpu.PresentModeFifo, choosePresentMode(false, all))
	assert.Equal(t, gpu.PresentModeMailbox, choosePresentMode(true, all))
	assert.Equal(t, gpu.PresentModeImmediate, choosePresentMode(true, []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeImmediate}))
	assert.Equal(t, gpu.PresentModeFifo, choosePresentMode(true, []gpu.PresentMode{gpu.PresentModeFifo}))
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		name      string
		min, max  uint32
		requested uint32
		want      uint32
	}{
		{"one above minimum", 2, 8, 0, 3},
		{"requested wins", 2, 8, 5, 5},
		{"clamped to maximum", 2, 3, 6, 3},
		{"minimum at maximum", 3, 3, 0, 3},
		{"no maximum", 2, 0, 9, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := gpu.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
			assert.Equal(t, tt.want, chooseImageCount(caps, tt.requested))
		})
	}
}

func TestChooseExtent(t *testing.T) {
	caps := gpu.SurfaceCapabilities{
		CurrentExtent:  gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
		MinImageExtent: gpu.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: gpu.Extent2D{Width: 4096, Height: 2048},
	}
	assert.Equal(t, gpu.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, gpu.Extent2D{Width: 800, Height: 600}))
	assert.Equal(t, gpu.Extent2D{Width: 4096, Height: 16}, chooseExtent(caps, gpu.Extent2D{Width: 9000, Height: 1}))

	caps.CurrentExtent = gpu.Extent2D{Width: 1280, Height: 720}
	assert.Equal(t, caps.CurrentExtent, chooseExtent(caps, gpu.Extent2D{Width: 800, Height: 600}))
}

func newManager(t *testing.T, window *headless.Window) (*headless.Instance, *DeviceContext, *SwapchainManager) {
	t.Helper()
	inst := headless.NewInstance()
	ctx, err := CreateDevice(inst, window, Requirements{})
	require.NoError(t, err)
	return inst, ctx, NewSwapchainManager(ctx, SwapchainConfig{})
}

func TestCreateOrResizeReplacesEverything(t *testing.T) {
	window := headless.NewWindow(300, 200)
	inst, ctx, m := newManager(t, window)
	dev := inst.Device()

	idle, err := ctx.WaitIdle()
	require.NoError(t, err)
	first, err := m.CreateOrResize(idle, gpu.Extent2D{Width: 300, Height: 200})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Generation)
	assert.Len(t, first.Framebuffers, first.ImageCount())
	assert.Len(t, first.Views, first.ImageCount())
	images := first.ImageCount()

	window.Resize(600, 400)
	second, err := m.CreateOrResize(idle, gpu.Extent2D{Width: 600, Height: 400})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Generation)
	assert.Same(t, second, m.Current())
	assert.Equal(t, 1, dev.Live()["swapchain"])
	assert.Equal(t, second.ImageCount(), dev.Live()["framebuffer"])

	destroys := dev.EventsOf(headless.OpDestroyFramebuffer)
	views := dev.EventsOf(headless.OpDestroyImageView)
	require.Len(t, destroys, images)
	require.Len(t, views, images)
	assert.Zero(t, first.ImageCount(), "replaced swapchain releases its images")

	// Framebuffers, render pass, views, swapchain.
	var order []headless.Op
	for _, e := range dev.Events() {
		switch e.Op {
		case headless.OpDestroyFramebuffer, headless.OpDestroyRenderPass, headless.OpDestroyImageView, headless.OpDestroySwapchain:
			if len(order) == 0 || order[len(order)-1] != e.Op {
				order = append(order, e.Op)
			}
		}
	}
	assert.Equal(t, []headless.Op{headless.OpDestroyFramebuffer, headless.OpDestroyRenderPass, headless.OpDestroyImageView, headless.OpDestroySwapchain}, order)

	m.Destroy(idle)
	ctx.Destroy()
	inst.Destroy()
}

func TestCreateOrResizeZeroExtentKeepsSwapchain(t *testing.T) {
	window := headless.NewWindow(300, 200)
	inst, ctx, m := newManager(t, window)

	idle, err := ctx.WaitIdle()
	require.NoError(t, err)
	sc, err := m.CreateOrResize(idle, gpu.Extent2D{Width: 300, Height: 200})
	require.NoError(t, err)

	window.Resize(0, 0)
	_, err = m.CreateOrResize(idle, gpu.Extent2D{})
	require.ErrorIs(t, err, ErrZeroExtent)
	assert.Same(t, sc, m.Current())

	m.Destroy(idle)
	m.Destroy(idle)
	ctx.Destroy()
	inst.Destroy()
}

func TestCreateOrResizeRequiresIdleDevice(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)

	requireInvariant(t, func() { h.loop.swapchains.CreateOrResize(IdleToken{}, gpu.Extent2D{Width: 10, Height: 10}) })

	idle, err := h.ctx.WaitIdle()
	require.NoError(t, err)
	h.tick(t)
	requireInvariant(t, func() { h.loop.swapchains.CreateOrResize(idle, gpu.Extent2D{Width: 10, Height: 10}) })
}

func TestFailedBuildLeavesNothing(t *testing.T) {
	window := headless.NewWindow(300, 200)
	inst, ctx, m := newManager(t, window)
	dev := inst.Device()

	idle, err := ctx.WaitIdle()
	require.NoError(t, err)
	dev.FailNext(headless.OpCreateFramebuffer, gpu.ErrorOutOfDeviceMemory)
	_, err = m.CreateOrResize(idle, gpu.Extent2D{Width: 300, Height: 200})
	require.Error(t, err)
	kind, ok := gpu.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, gpu.KindFatal, kind)
	assert.Nil(t, m.Current())
	for kind, n := range dev.Live() {
		assert.Zero(t, n, kind)
	}

	ctx.Destroy()
	inst.Destroy()
}
