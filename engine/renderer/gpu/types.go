package gpu

import (
	"fmt"
	"strings"
)

const (
	// Timeout value that waits forever.
	Infinite = ^uint64(0)

	// Surface extent sentinel meaning "the swapchain decides".
	UndefinedExtent = ^uint32(0)

	ExtensionSwapchain = "VK_KHR_swapchain"
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

type Format uint32

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatA2B10G10R10Unorm
	FormatR16G16B16A16Sfloat
)

var formatNames = map[Format]string{
	FormatUndefined:          "UNDEFINED",
	FormatB8G8R8A8Unorm:      "B8G8R8A8_UNORM",
	FormatB8G8R8A8Srgb:       "B8G8R8A8_SRGB",
	FormatR8G8B8A8Unorm:      "R8G8B8A8_UNORM",
	FormatR8G8B8A8Srgb:       "R8G8B8A8_SRGB",
	FormatA2B10G10R10Unorm:   "A2B10G10R10_UNORM",
	FormatR16G16B16A16Sfloat: "R16G16B16A16_SFLOAT",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

// ParseFormat accepts the names printed by Format.String, case insensitive.
func ParseFormat(name string) (Format, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for f, n := range formatNames {
		if n == name && f != FormatUndefined {
			return f, true
		}
	}
	return FormatUndefined, false
}

type ColorSpace uint32

const (
	ColorSpaceSrgbNonlinear ColorSpace = iota
	ColorSpaceExtendedSrgbLinear
)

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "IMMEDIATE"
	case PresentModeMailbox:
		return "MAILBOX"
	case PresentModeFifo:
		return "FIFO"
	case PresentModeFifoRelaxed:
		return "FIFO_RELAXED"
	default:
		return fmt.Sprintf("PresentMode(%d)", uint32(m))
	}
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// Zero means no limit.
	MaxImageCount uint32
	// Width == UndefinedExtent when the surface size follows the swapchain.
	CurrentExtent    Extent2D
	MinImageExtent   Extent2D
	MaxImageExtent   Extent2D
	CurrentTransform uint32
}

type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

func (s SurfaceSupport) SupportsPresentMode(mode PresentMode) bool {
	for _, m := range s.PresentModes {
		if m == mode {
			return true
		}
	}
	return false
}

type QueueFamily struct {
	Index    uint32
	Count    uint32
	Graphics bool
	Compute  bool
	Transfer bool
	Present  bool
}

type AdapterType uint32

const (
	AdapterTypeOther AdapterType = iota
	AdapterTypeIntegrated
	AdapterTypeDiscrete
	AdapterTypeVirtual
	AdapterTypeCPU
)

func (t AdapterType) String() string {
	switch t {
	case AdapterTypeIntegrated:
		return "Integrated"
	case AdapterTypeDiscrete:
		return "Discrete"
	case AdapterTypeVirtual:
		return "Virtual"
	case AdapterTypeCPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

type AdapterInfo struct {
	Name       string
	Type       AdapterType
	VendorID   uint32
	DeviceID   uint32
	APIVersion string
}

type DeviceDesc struct {
	GraphicsFamily uint32
	PresentFamily  uint32
	Extensions     []string
}

type SwapchainDesc struct {
	Surface     Surface
	Format      SurfaceFormat
	PresentMode PresentMode
	Extent      Extent2D
	ImageCount  uint32
	Transform   uint32
	// Queue families that access the images. Two distinct entries select
	// concurrent sharing.
	QueueFamilies []uint32
}

type RenderPassDesc struct {
	ColorFormat Format
}

type FramebufferDesc struct {
	RenderPass RenderPass
	Attachment ImageView
	Extent     Extent2D
}

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageTransferSrc
)

type BufferDesc struct {
	Size  uint64
	Usage BufferUsage
}

type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageColorAttachmentOutput
	StageBottomOfPipe
)

type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	WaitStage     PipelineStage
	Signal        Semaphore
	Fence         Fence
}

type Color struct {
	R, G, B, A float32
}

func ColorFromSlice(c []float32) Color {
	var out Color
	dst := []*float32{&out.R, &out.G, &out.B, &out.A}
	for i := 0; i < len(c) && i < len(dst); i++ {
		*dst[i] = c[i]
	}
	return out
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect
	Clear       Color
}
