package gpu

import "unsafe"

// SurfaceSource creates a presentable surface for an instance. The
// signature matches glfw.Window.CreateWindowSurface.
type SurfaceSource interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// Instance is the entry point of a driver.
type Instance interface {
	// Native returns the driver handle passed to SurfaceSource.
	Native() interface{}
	Adapters() ([]Adapter, error)
	AdapterInfo(adapter Adapter) AdapterInfo
	QueueFamilies(adapter Adapter, surface Surface) ([]QueueFamily, error)
	DeviceExtensions(adapter Adapter) ([]string, error)
	SurfaceSupport(adapter Adapter, surface Surface) (SurfaceSupport, error)

	CreateSurface(src SurfaceSource) (Surface, error)
	DestroySurface(surface Surface)
	CreateDevice(adapter Adapter, desc DeviceDesc) (Device, error)
	Destroy()
}

// Device is a logical device. Destroy calls panic with a KindInvariant
// error on a stale or already destroyed handle.
type Device interface {
	Queue(family uint32) Queue
	WaitIdle() error
	Destroy()

	CreateFence(signaled bool) (Fence, error)
	WaitFence(fence Fence, timeout uint64) error
	ResetFence(fence Fence) error
	DestroyFence(fence Fence)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)

	CreateCommandPool(family uint32) (CommandPool, error)
	ResetCommandPool(pool CommandPool) error
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)

	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error
	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(cb CommandBuffer)
	CmdSetViewport(cb CommandBuffer, viewport Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect)
	CmdClearRects(cb CommandBuffer, color Color, rects []Rect)
	CmdBindVertexBuffer(cb CommandBuffer, buffer Buffer, offset uint64)

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	SwapchainImages(swapchain Swapchain) ([]Image, error)
	DestroySwapchain(swapchain Swapchain)
	CreateImageView(image Image, format Format) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	DestroyRenderPass(pass RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreateBuffer(desc BufferDesc) (Buffer, error)
	WriteBuffer(buffer Buffer, offset uint64, data []byte) error
	DestroyBuffer(buffer Buffer)

	// AcquireNextImage signals semaphore once the returned image is ready.
	// A suboptimal swapchain returns a valid index together with an error
	// matching ErrSuboptimal; the semaphore is signaled in that case too.
	AcquireNextImage(swapchain Swapchain, timeout uint64, semaphore Semaphore) (uint32, error)
	Submit(queue Queue, info SubmitInfo) error
	Present(queue Queue, swapchain Swapchain, imageIndex uint32, wait Semaphore) error
}

// Recorder records commands into the command buffer of the current frame.
type Recorder interface {
	Extent() Extent2D
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect)
	ClearRects(color Color, rects ...Rect)
	BindVertexBuffer(buffer Buffer, offset uint64)
}
