package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// VulkanResultString names result. With getExtended the description from the
// registry is appended.
func VulkanResultString(result vk.Result, getExtended bool) string {
	// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
	switch result {
	case vk.Success:
		return ConditionalOperator(!getExtended, "VK_SUCCESS", "VK_SUCCESS Command successfully completed")
	case vk.NotReady:
		return ConditionalOperator(!getExtended, "VK_NOT_READY", "VK_NOT_READY A fence or query has not yet completed")
	case vk.Timeout:
		return ConditionalOperator(!getExtended, "VK_TIMEOUT", "VK_TIMEOUT A wait operation has not completed in the specified time")
	case vk.Incomplete:
		return ConditionalOperator(!getExtended, "VK_INCOMPLETE", "VK_INCOMPLETE A return array was too small for the result")
	case vk.Suboptimal:
		return ConditionalOperator(!getExtended, "VK_SUBOPTIMAL_KHR", "VK_SUBOPTIMAL_KHR A swapchain no longer matches the surface properties exactly, but can still be used to present to the surface successfully.")
	case vk.ErrorOutOfHostMemory:
		return ConditionalOperator(!getExtended, "VK_ERROR_OUT_OF_HOST_MEMORY", "VK_ERROR_OUT_OF_HOST_MEMORY A host memory allocation has failed.")
	case vk.ErrorOutOfDeviceMemory:
		return ConditionalOperator(!getExtended, "VK_ERROR_OUT_OF_DEVICE_MEMORY", "VK_ERROR_OUT_OF_DEVICE_MEMORY A device memory allocation has failed.")
	case vk.ErrorInitializationFailed:
		return ConditionalOperator(!getExtended, "VK_ERROR_INITIALIZATION_FAILED", "VK_ERROR_INITIALIZATION_FAILED Initialization of an object could not be completed for implementation-specific reasons.")
	case vk.ErrorDeviceLost:
		return ConditionalOperator(!getExtended, "VK_ERROR_DEVICE_LOST", "VK_ERROR_DEVICE_LOST The logical or physical device has been lost.")
	case vk.ErrorMemoryMapFailed:
		return ConditionalOperator(!getExtended, "VK_ERROR_MEMORY_MAP_FAILED", "VK_ERROR_MEMORY_MAP_FAILED Mapping of a memory object has failed.")
	case vk.ErrorLayerNotPresent:
		return ConditionalOperator(!getExtended, "VK_ERROR_LAYER_NOT_PRESENT", "VK_ERROR_LAYER_NOT_PRESENT A requested layer is not present or could not be loaded.")
	case vk.ErrorExtensionNotPresent:
		return ConditionalOperator(!getExtended, "VK_ERROR_EXTENSION_NOT_PRESENT", "VK_ERROR_EXTENSION_NOT_PRESENT A requested extension is not supported.")
	case vk.ErrorFeatureNotPresent:
		return ConditionalOperator(!getExtended, "VK_ERROR_FEATURE_NOT_PRESENT", "VK_ERROR_FEATURE_NOT_PRESENT A requested feature is not supported.")
	case vk.ErrorIncompatibleDriver:
		return ConditionalOperator(!getExtended, "VK_ERROR_INCOMPATIBLE_DRIVER", "VK_ERROR_INCOMPATIBLE_DRIVER The requested version of Vulkan is not supported by the driver.")
	case vk.ErrorTooManyObjects:
		return ConditionalOperator(!getExtended, "VK_ERROR_TOO_MANY_OBJECTS", "VK_ERROR_TOO_MANY_OBJECTS Too many objects of the type have already been created.")
	case vk.ErrorFormatNotSupported:
		return ConditionalOperator(!getExtended, "VK_ERROR_FORMAT_NOT_SUPPORTED", "VK_ERROR_FORMAT_NOT_SUPPORTED A requested format is not supported on this device.")
	case vk.ErrorSurfaceLost:
		return ConditionalOperator(!getExtended, "VK_ERROR_SURFACE_LOST_KHR", "VK_ERROR_SURFACE_LOST_KHR A surface is no longer available.")
	case vk.ErrorNativeWindowInUse:
		return ConditionalOperator(!getExtended, "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR The requested window is already in use.")
	case vk.ErrorOutOfDate:
		return ConditionalOperator(!getExtended, "VK_ERROR_OUT_OF_DATE_KHR", "VK_ERROR_OUT_OF_DATE_KHR A surface has changed in such a way that it is no longer compatible with the swapchain.")
	case vk.ErrorIncompatibleDisplay:
		return ConditionalOperator(!getExtended, "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR", "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR The display used by a swapchain is incompatible.")
	case vk.ErrorOutOfPoolMemory:
		return ConditionalOperator(!getExtended, "VK_ERROR_OUT_OF_POOL_MEMORY", "VK_ERROR_OUT_OF_POOL_MEMORY A pool memory allocation has failed.")
	default:
		return fmt.Sprintf("VkResult(%d)", int32(result))
	}
}

func ConditionalOperator(condition bool, res1, res2 string) string {
	if condition {
		return res1
	}
	return res2
}

// toResult folds a VkResult into the driver independent status.
func toResult(result vk.Result) gpu.Result {
	switch result {
	case vk.Success:
		return gpu.Success
	case vk.NotReady:
		return gpu.NotReady
	case vk.Timeout:
		return gpu.Timeout
	case vk.Suboptimal:
		return gpu.Suboptimal
	case vk.ErrorOutOfDate:
		return gpu.ErrorOutOfDate
	case vk.ErrorDeviceLost:
		return gpu.ErrorDeviceLost
	case vk.ErrorSurfaceLost:
		return gpu.ErrorSurfaceLost
	case vk.ErrorOutOfHostMemory:
		return gpu.ErrorOutOfHostMemory
	case vk.ErrorOutOfDeviceMemory:
		return gpu.ErrorOutOfDeviceMemory
	case vk.ErrorInitializationFailed:
		return gpu.ErrorInitializationFailed
	case vk.ErrorExtensionNotPresent:
		return gpu.ErrorExtensionNotPresent
	case vk.ErrorLayerNotPresent:
		return gpu.ErrorLayerNotPresent
	case vk.ErrorIncompatibleDriver:
		return gpu.ErrorIncompatibleDriver
	case vk.ErrorFormatNotSupported:
		return gpu.ErrorFormatNotSupported
	default:
		return gpu.ErrorUnknown
	}
}

// check classifies res and logs failures with their extended description.
func check(op string, res vk.Result) error {
	err := gpu.Check(op, toResult(res))
	if err != nil && !gpu.IsStale(err) {
		core.LogError("%s failed: %s", op, VulkanResultString(res, true))
	}
	return err
}

var formats = map[gpu.Format]vk.Format{
	gpu.FormatB8G8R8A8Unorm:      vk.FormatB8g8r8a8Unorm,
	gpu.FormatB8G8R8A8Srgb:       vk.FormatB8g8r8a8Srgb,
	gpu.FormatR8G8B8A8Unorm:      vk.FormatR8g8b8a8Unorm,
	gpu.FormatR8G8B8A8Srgb:       vk.FormatR8g8b8a8Srgb,
	gpu.FormatA2B10G10R10Unorm:   vk.FormatA2b10g10r10UnormPack32,
	gpu.FormatR16G16B16A16Sfloat: vk.FormatR16g16b16a16Sfloat,
}

func formatToVk(f gpu.Format) vk.Format {
	if v, ok := formats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

func formatFromVk(v vk.Format) gpu.Format {
	for f, candidate := range formats {
		if candidate == v {
			return f
		}
	}
	return gpu.FormatUndefined
}

func colorSpaceToVk(c gpu.ColorSpace) vk.ColorSpace {
	if c == gpu.ColorSpaceExtendedSrgbLinear {
		return vk.ColorSpaceExtendedSrgbLinear
	}
	return vk.ColorSpaceSrgbNonlinear
}

func colorSpaceFromVk(c vk.ColorSpace) gpu.ColorSpace {
	if c == vk.ColorSpaceExtendedSrgbLinear {
		return gpu.ColorSpaceExtendedSrgbLinear
	}
	return gpu.ColorSpaceSrgbNonlinear
}

func presentModeToVk(m gpu.PresentMode) vk.PresentMode {
	switch m {
	case gpu.PresentModeImmediate:
		return vk.PresentModeImmediate
	case gpu.PresentModeMailbox:
		return vk.PresentModeMailbox
	case gpu.PresentModeFifoRelaxed:
		return vk.PresentModeFifoRelaxed
	default:
		return vk.PresentModeFifo
	}
}

func presentModeFromVk(m vk.PresentMode) (gpu.PresentMode, bool) {
	switch m {
	case vk.PresentModeImmediate:
		return gpu.PresentModeImmediate, true
	case vk.PresentModeMailbox:
		return gpu.PresentModeMailbox, true
	case vk.PresentModeFifo:
		return gpu.PresentModeFifo, true
	case vk.PresentModeFifoRelaxed:
		return gpu.PresentModeFifoRelaxed, true
	}
	return 0, false
}

func adapterTypeFromVk(t vk.PhysicalDeviceType) gpu.AdapterType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return gpu.AdapterTypeIntegrated
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return gpu.AdapterTypeDiscrete
	case vk.PhysicalDeviceTypeVirtualGpu:
		return gpu.AdapterTypeVirtual
	case vk.PhysicalDeviceTypeCpu:
		return gpu.AdapterTypeCPU
	default:
		return gpu.AdapterTypeOther
	}
}

func pipelineStageToVk(s gpu.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	if s&gpu.StageTopOfPipe != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if s&gpu.StageColorAttachmentOutput != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	if s&gpu.StageBottomOfPipe != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return out
}

func bufferUsageToVk(u gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	if u&gpu.BufferUsageVertex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gpu.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	return out
}

func rectToVk(r gpu.Rect) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

// VulkanSafeStrings returns a null terminated copy of list.
func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// FindFirstZeroInByteArray returns the index of the first zero byte, or
// len(arr) when there is none.
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

// cString converts a fixed size C char array to a Go string.
func cString(arr []byte) string {
	return string(arr[:FindFirstZeroInByteArray(arr)])
}
