package headless

import (
	"testing"

	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	inst    *Instance
	window  *Window
	surface gpu.Surface
	dev     *Device
	queue   gpu.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	inst := NewInstance()
	window := NewWindow(320, 240)
	surface, err := inst.CreateSurface(window)
	require.NoError(t, err)
	adapters, err := inst.Adapters()
	require.NoError(t, err)
	dev, err := inst.CreateDevice(adapters[0], gpu.DeviceDesc{Extensions: []string{gpu.ExtensionSwapchain}})
	require.NoError(t, err)
	return &fixture{inst: inst, window: window, surface: surface, dev: dev.(*Device), queue: dev.Queue(0)}
}

func requireInvariant(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected an invariant violation")
		err, ok := r.(*gpu.Error)
		require.True(t, ok, "unexpected panic %v", r)
		assert.Equal(t, gpu.KindInvariant, err.Kind)
	}()
	fn()
}

// recorded returns an executable command buffer from a fresh pool.
func (f *fixture) recorded(t *testing.T) (gpu.CommandPool, gpu.CommandBuffer) {
	t.Helper()
	pool, err := f.dev.CreateCommandPool(0)
	require.NoError(t, err)
	cb, err := f.dev.AllocateCommandBuffer(pool)
	require.NoError(t, err)
	require.NoError(t, f.dev.BeginCommandBuffer(cb))
	require.NoError(t, f.dev.EndCommandBuffer(cb))
	return pool, cb
}

func TestFenceWaitRetiresPendingWork(t *testing.T) {
	f := newFixture(t)
	_, cb := f.recorded(t)
	fence, err := f.dev.CreateFence(false)
	require.NoError(t, err)

	require.NoError(t, f.dev.Submit(f.queue, gpu.SubmitInfo{CommandBuffer: cb, Fence: fence}))
	assert.False(t, f.dev.FenceSignaled(fence))
	assert.Equal(t, 1, f.dev.InFlight())

	require.NoError(t, f.dev.WaitFence(fence, gpu.Infinite))
	assert.True(t, f.dev.FenceSignaled(fence))
	assert.Zero(t, f.dev.InFlight())
	assert.Len(t, f.dev.EventsOf(OpFenceBlocked), 1)
}

func TestWaitOnUnsubmittedFenceDeadlocks(t *testing.T) {
	f := newFixture(t)
	fence, err := f.dev.CreateFence(false)
	require.NoError(t, err)
	requireInvariant(t, func() { f.dev.WaitFence(fence, gpu.Infinite) })

	err = f.dev.WaitFence(fence, 10)
	assert.Error(t, err)
}

func TestPoolResetWhileInFlight(t *testing.T) {
	f := newFixture(t)
	pool, cb := f.recorded(t)
	require.NoError(t, f.dev.Submit(f.queue, gpu.SubmitInfo{CommandBuffer: cb}))

	requireInvariant(t, func() { f.dev.ResetCommandPool(pool) })
	require.NoError(t, f.dev.WaitIdle())
	require.NoError(t, f.dev.ResetCommandPool(pool))
}

func TestBeginRequiresReset(t *testing.T) {
	f := newFixture(t)
	_, cb := f.recorded(t)
	requireInvariant(t, func() { f.dev.BeginCommandBuffer(cb) })
}

func TestDoubleDestroyDetected(t *testing.T) {
	f := newFixture(t)
	sem, err := f.dev.CreateSemaphore()
	require.NoError(t, err)
	f.dev.DestroySemaphore(sem)
	requireInvariant(t, func() { f.dev.DestroySemaphore(sem) })
}

func TestAcquireWithSignaledSemaphore(t *testing.T) {
	f := newFixture(t)
	sc, err := f.dev.CreateSwapchain(gpu.SwapchainDesc{
		Surface:     f.surface,
		Format:      DefaultAdapter().Formats[0],
		PresentMode: gpu.PresentModeFifo,
		Extent:      gpu.Extent2D{Width: 320, Height: 240},
		ImageCount:  3,
	})
	require.NoError(t, err)
	sem, err := f.dev.CreateSemaphore()
	require.NoError(t, err)

	f.dev.ScriptAcquire(gpu.Suboptimal)
	idx, err := f.dev.AcquireNextImage(sc, gpu.Infinite, sem)
	assert.ErrorIs(t, err, gpu.ErrSuboptimal)
	assert.Equal(t, uint32(0), idx)

	requireInvariant(t, func() { f.dev.AcquireNextImage(sc, gpu.Infinite, sem) })
}

func TestScriptedImageOrder(t *testing.T) {
	f := newFixture(t)
	sc, err := f.dev.CreateSwapchain(gpu.SwapchainDesc{
		Surface:     f.surface,
		Format:      DefaultAdapter().Formats[0],
		PresentMode: gpu.PresentModeFifo,
		Extent:      gpu.Extent2D{Width: 320, Height: 240},
		ImageCount:  3,
	})
	require.NoError(t, err)
	first, err := f.dev.CreateSemaphore()
	require.NoError(t, err)
	second, err := f.dev.CreateSemaphore()
	require.NoError(t, err)

	f.dev.ScriptImages(2, 2)
	idx, err := f.dev.AcquireNextImage(sc, gpu.Infinite, first)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx)

	// Image 2 is still held by the application.
	requireInvariant(t, func() { f.dev.AcquireNextImage(sc, gpu.Infinite, second) })
}

func TestOutOfDateFollowsWindow(t *testing.T) {
	f := newFixture(t)
	sc, err := f.dev.CreateSwapchain(gpu.SwapchainDesc{
		Surface:     f.surface,
		Format:      DefaultAdapter().Formats[0],
		PresentMode: gpu.PresentModeFifo,
		Extent:      gpu.Extent2D{Width: 320, Height: 240},
		ImageCount:  2,
	})
	require.NoError(t, err)
	sem, err := f.dev.CreateSemaphore()
	require.NoError(t, err)

	f.window.Resize(640, 480)
	_, err = f.dev.AcquireNextImage(sc, gpu.Infinite, sem)
	assert.ErrorIs(t, err, gpu.ErrOutOfDate)

	support, err := f.inst.SurfaceSupport(1, f.surface)
	require.NoError(t, err)
	assert.Equal(t, gpu.Extent2D{Width: 640, Height: 480}, support.Capabilities.CurrentExtent)
}

func TestTeardownOrder(t *testing.T) {
	f := newFixture(t)
	sc, err := f.dev.CreateSwapchain(gpu.SwapchainDesc{
		Surface:     f.surface,
		Format:      DefaultAdapter().Formats[0],
		PresentMode: gpu.PresentModeFifo,
		Extent:      gpu.Extent2D{Width: 320, Height: 240},
		ImageCount:  2,
	})
	require.NoError(t, err)
	images, err := f.dev.SwapchainImages(sc)
	require.NoError(t, err)
	view, err := f.dev.CreateImageView(images[0], gpu.FormatB8G8R8A8Unorm)
	require.NoError(t, err)
	rp, err := f.dev.CreateRenderPass(gpu.RenderPassDesc{ColorFormat: gpu.FormatB8G8R8A8Unorm})
	require.NoError(t, err)
	fb, err := f.dev.CreateFramebuffer(gpu.FramebufferDesc{RenderPass: rp, Attachment: view, Extent: gpu.Extent2D{Width: 320, Height: 240}})
	require.NoError(t, err)

	requireInvariant(t, func() { f.dev.DestroyRenderPass(rp) })
	requireInvariant(t, func() { f.dev.DestroyImageView(view) })
	requireInvariant(t, func() { f.dev.DestroySwapchain(sc) })

	f.dev.DestroyFramebuffer(fb)
	f.dev.DestroyRenderPass(rp)
	f.dev.DestroyImageView(view)
	f.dev.DestroySwapchain(sc)
	f.dev.Destroy()
	f.inst.DestroySurface(f.surface)
	f.inst.Destroy()
	assert.True(t, f.inst.Destroyed())
}

func TestSecondSwapchainOnSurfaceRejected(t *testing.T) {
	f := newFixture(t)
	desc := gpu.SwapchainDesc{
		Surface:     f.surface,
		Format:      DefaultAdapter().Formats[0],
		PresentMode: gpu.PresentModeFifo,
		Extent:      gpu.Extent2D{Width: 320, Height: 240},
		ImageCount:  2,
	}
	_, err := f.dev.CreateSwapchain(desc)
	require.NoError(t, err)
	requireInvariant(t, func() { f.dev.CreateSwapchain(desc) })
}

func TestDeviceDestroyReportsLeaks(t *testing.T) {
	f := newFixture(t)
	_, err := f.dev.CreateFence(true)
	require.NoError(t, err)
	requireInvariant(t, func() { f.dev.Destroy() })
}

func TestBufferWriteWhileInFlight(t *testing.T) {
	f := newFixture(t)
	buf, err := f.dev.CreateBuffer(gpu.BufferDesc{Size: 16, Usage: gpu.BufferUsageVertex})
	require.NoError(t, err)
	require.NoError(t, f.dev.WriteBuffer(buf, 0, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2, 3, 4}, f.dev.BufferData(buf)[:4])
	assert.Error(t, f.dev.WriteBuffer(buf, 14, []byte{1, 2, 3}))

	pool, err := f.dev.CreateCommandPool(0)
	require.NoError(t, err)
	cb, err := f.dev.AllocateCommandBuffer(pool)
	require.NoError(t, err)
	require.NoError(t, f.dev.BeginCommandBuffer(cb))
	f.dev.CmdBindVertexBuffer(cb, buf, 0)
	require.NoError(t, f.dev.EndCommandBuffer(cb))
	require.NoError(t, f.dev.Submit(f.queue, gpu.SubmitInfo{CommandBuffer: cb}))

	requireInvariant(t, func() { f.dev.WriteBuffer(buf, 0, []byte{9}) })
	requireInvariant(t, func() { f.dev.DestroyBuffer(buf) })
	require.NoError(t, f.dev.WaitIdle())
	f.dev.DestroyBuffer(buf)
}
