package gpu

// Handles are opaque driver owned identifiers. Zero is the null handle of
// every kind.
type (
	Adapter       uint64
	Surface       uint64
	Queue         uint64
	Fence         uint64
	Semaphore     uint64
	CommandPool   uint64
	CommandBuffer uint64
	Swapchain     uint64
	Image         uint64
	ImageView     uint64
	RenderPass    uint64
	Framebuffer   uint64
	Buffer        uint64
)

const (
	NullFence     Fence     = 0
	NullSemaphore Semaphore = 0
)
