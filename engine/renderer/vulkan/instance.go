package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

const (
	validationLayer        = "VK_LAYER_KHRONOS_validation"
	portabilitySubset      = "VK_KHR_portability_subset"
	portabilityEnumeration = "VK_KHR_portability_enumeration"
)

// InstanceConfig drives instance creation.
type InstanceConfig struct {
	AppName string
	// Debug enables the validation layer and routes its reports to the log.
	Debug bool
	// Extensions required by the window system, usually
	// glfw.Window.GetRequiredInstanceExtensions.
	Extensions []string
	// ProcAddr is the vkGetInstanceProcAddr loader entry point.
	ProcAddr unsafe.Pointer
}

// Instance implements gpu.Instance on top of a VkInstance.
type Instance struct {
	mu             sync.Mutex
	handle         vk.Instance
	debugMessenger vk.DebugReportCallback
	debug          bool
	physical       []vk.PhysicalDevice
	surfaces       *gpu.Arena[vk.Surface]
	destroyed      bool
}

var _ gpu.Instance = (*Instance)(nil)

func NewInstance(cfg InstanceConfig) (*Instance, error) {
	if cfg.ProcAddr == nil {
		return nil, gpu.Fatal("vulkan.NewInstance", fmt.Errorf("GetInstanceProcAddress is nil"))
	}
	vk.SetGetInstanceProcAddr(cfg.ProcAddr)
	if err := vk.Init(); err != nil {
		return nil, gpu.Fatal("vulkan.NewInstance", fmt.Errorf("failed to initialize vk: %w", err))
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(cfg.AppName),
		PEngineName:        VulkanSafeString("Karma Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, cfg.Extensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, portabilityEnumeration, "VK_KHR_get_physical_device_properties2")
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if cfg.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if err := requireLayers(validationLayer); err != nil {
			return nil, err
		}
		layers = []string{validationLayer}
		core.LogInfo("Validation layers enabled.")
	}
	for _, ext := range extensions {
		core.LogDebug("Required extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	inst := &Instance{surfaces: gpu.NewArena[vk.Surface]()}
	if err := check("vulkan.CreateInstance", vk.CreateInstance(&createInfo, nil, &inst.handle)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(inst.handle); err != nil {
		vk.DestroyInstance(inst.handle, nil)
		return nil, gpu.Fatal("vulkan.InitInstance", err)
	}
	core.LogInfo("Vulkan Instance created.")

	if cfg.Debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check("vulkan.CreateDebugReportCallback", vk.CreateDebugReportCallback(inst.handle, &debugCreateInfo, nil, &dbg)); err != nil {
			vk.DestroyInstance(inst.handle, nil)
			return nil, err
		}
		inst.debugMessenger = dbg
		inst.debug = true
		core.LogDebug("Vulkan debugger created.")
	}
	return inst, nil
}

func requireLayers(names ...string) error {
	var count uint32
	if err := check("vulkan.EnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vulkan.EnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	for _, name := range names {
		found := false
		for j := range available {
			available[j].Deref()
			if cString(available[j].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			core.LogError("Required validation layer is missing: %s", name)
			return gpu.Check("vulkan.requireLayers", gpu.ErrorLayerNotPresent)
		}
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

// Native returns the VkInstance, which is what glfw expects when creating a
// window surface.
func (i *Instance) Native() interface{} {
	return i.handle
}

func (i *Instance) Adapters() ([]gpu.Adapter, error) {
	var count uint32
	if err := check("vulkan.EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(i.handle, &count, nil)); err != nil {
		return nil, err
	}
	physical := make([]vk.PhysicalDevice, count)
	if count > 0 {
		if err := check("vulkan.EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(i.handle, &count, physical)); err != nil {
			return nil, err
		}
	}
	i.mu.Lock()
	i.physical = physical[:count]
	i.mu.Unlock()

	out := make([]gpu.Adapter, count)
	for n := range out {
		out[n] = gpu.Adapter(n + 1)
	}
	return out, nil
}

func (i *Instance) physicalDevice(a gpu.Adapter) vk.PhysicalDevice {
	i.mu.Lock()
	defer i.mu.Unlock()
	if a == 0 || int(a) > len(i.physical) {
		gpu.Invariant("vulkan.adapter", "unknown adapter %d", a)
	}
	return i.physical[a-1]
}

func (i *Instance) surface(op string, s gpu.Surface) vk.Surface {
	i.mu.Lock()
	defer i.mu.Unlock()
	surf, ok := i.surfaces.Get(uint64(s))
	if !ok {
		gpu.Invariant(op, "unknown or destroyed surface %d", s)
	}
	return surf
}

func (i *Instance) AdapterInfo(a gpu.Adapter) gpu.AdapterInfo {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(i.physicalDevice(a), &properties)
	properties.Deref()

	api := vk.Version(properties.ApiVersion)
	return gpu.AdapterInfo{
		Name:       cString(properties.DeviceName[:]),
		Type:       adapterTypeFromVk(properties.DeviceType),
		VendorID:   properties.VendorID,
		DeviceID:   properties.DeviceID,
		APIVersion: fmt.Sprintf("%d.%d.%d", api.Major(), api.Minor(), api.Patch()),
	}
}

func (i *Instance) QueueFamilies(a gpu.Adapter, s gpu.Surface) ([]gpu.QueueFamily, error) {
	device := i.physicalDevice(a)
	surface := i.surface("vulkan.QueueFamilies", s)

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, properties)

	out := make([]gpu.QueueFamily, 0, count)
	for n := uint32(0); n < count; n++ {
		properties[n].Deref()
		flags := vk.QueueFlagBits(properties[n].QueueFlags)

		var supportsPresent vk.Bool32 = vk.False
		if err := check("vulkan.GetPhysicalDeviceSurfaceSupport", vk.GetPhysicalDeviceSurfaceSupport(device, n, surface, &supportsPresent)); err != nil {
			return nil, err
		}
		out = append(out, gpu.QueueFamily{
			Index:    n,
			Count:    properties[n].QueueCount,
			Graphics: flags&vk.QueueGraphicsBit != 0,
			Compute:  flags&vk.QueueComputeBit != 0,
			Transfer: flags&vk.QueueTransferBit != 0,
			Present:  supportsPresent == vk.True,
		})
	}
	return out, nil
}

func (i *Instance) DeviceExtensions(a gpu.Adapter) ([]string, error) {
	device := i.physicalDevice(a)
	var count uint32
	if err := check("vulkan.EnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	available := make([]vk.ExtensionProperties, count)
	if err := check("vulkan.EnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, available)); err != nil {
		return nil, err
	}
	out := make([]string, 0, count)
	for n := uint32(0); n < count; n++ {
		available[n].Deref()
		out = append(out, cString(available[n].ExtensionName[:]))
	}
	return out, nil
}

func (i *Instance) SurfaceSupport(a gpu.Adapter, s gpu.Surface) (gpu.SurfaceSupport, error) {
	device := i.physicalDevice(a)
	surface := i.surface("vulkan.SurfaceSupport", s)

	var caps vk.SurfaceCapabilities
	if err := check("vulkan.GetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(device, surface, &caps)); err != nil {
		return gpu.SurfaceSupport{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	support := gpu.SurfaceSupport{
		Capabilities: gpu.SurfaceCapabilities{
			MinImageCount:    caps.MinImageCount,
			MaxImageCount:    caps.MaxImageCount,
			CurrentExtent:    gpu.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
			MinImageExtent:   gpu.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
			MaxImageExtent:   gpu.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
			CurrentTransform: uint32(caps.CurrentTransform),
		},
	}

	var formatCount uint32
	if err := check("vulkan.GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil)); err != nil {
		return gpu.SurfaceSupport{}, err
	}
	if formatCount != 0 {
		surfaceFormats := make([]vk.SurfaceFormat, formatCount)
		if err := check("vulkan.GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, surfaceFormats)); err != nil {
			return gpu.SurfaceSupport{}, err
		}
		for n := uint32(0); n < formatCount; n++ {
			surfaceFormats[n].Deref()
			f := formatFromVk(surfaceFormats[n].Format)
			if f == gpu.FormatUndefined {
				continue
			}
			support.Formats = append(support.Formats, gpu.SurfaceFormat{Format: f, ColorSpace: colorSpaceFromVk(surfaceFormats[n].ColorSpace)})
		}
	}

	var modeCount uint32
	if err := check("vulkan.GetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, nil)); err != nil {
		return gpu.SurfaceSupport{}, err
	}
	if modeCount != 0 {
		modes := make([]vk.PresentMode, modeCount)
		if err := check("vulkan.GetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, modes)); err != nil {
			return gpu.SurfaceSupport{}, err
		}
		for _, m := range modes[:modeCount] {
			if mode, ok := presentModeFromVk(m); ok {
				support.PresentModes = append(support.PresentModes, mode)
			}
		}
	}
	return support, nil
}

func (i *Instance) CreateSurface(src gpu.SurfaceSource) (gpu.Surface, error) {
	ptr, err := src.CreateWindowSurface(i.handle, nil)
	if err != nil {
		return 0, gpu.Fatal("vulkan.CreateSurface", err)
	}
	if ptr == 0 {
		return 0, gpu.Fatal("vulkan.CreateSurface", fmt.Errorf("platform returned a null surface"))
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	core.LogDebug("Vulkan surface created.")
	return gpu.Surface(i.surfaces.Insert(vk.SurfaceFromPointer(ptr))), nil
}

func (i *Instance) DestroySurface(s gpu.Surface) {
	i.mu.Lock()
	defer i.mu.Unlock()
	surface, ok := i.surfaces.Remove(uint64(s))
	if !ok {
		gpu.Invariant("vulkan.DestroySurface", "surface %d destroyed twice or never created", s)
	}
	vk.DestroySurface(i.handle, surface, nil)
}

func (i *Instance) CreateDevice(a gpu.Adapter, desc gpu.DeviceDesc) (gpu.Device, error) {
	physical := i.physicalDevice(a)

	// Do not create additional queues for shared indices.
	families := []uint32{desc.GraphicsFamily}
	if desc.PresentFamily != desc.GraphicsFamily {
		families = append(families, desc.PresentFamily)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for n, family := range families {
		queueCreateInfos[n] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := append([]string(nil), desc.Extensions...)
	available, err := i.DeviceExtensions(a)
	if err != nil {
		return nil, err
	}
	for _, ext := range available {
		if ext == portabilitySubset {
			core.LogInfo("Adding required extension '%s'.", portabilitySubset)
			extensions = append(extensions, portabilitySubset)
			break
		}
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var handle vk.Device
	if err := check("vulkan.CreateDevice", vk.CreateDevice(physical, &deviceCreateInfo, nil, &handle)); err != nil {
		return nil, err
	}
	core.LogInfo("Logical device created.")
	return newDevice(i, physical, handle, families), nil
}

func (i *Instance) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		gpu.Invariant("vulkan.DestroyInstance", "instance destroyed twice")
	}
	if n := i.surfaces.Len(); n > 0 {
		gpu.Invariant("vulkan.DestroyInstance", "instance destroyed with %d live surface(s)", n)
	}
	if i.debug {
		vk.DestroyDebugReportCallback(i.handle, i.debugMessenger, nil)
	}
	vk.DestroyInstance(i.handle, nil)
	i.destroyed = true
	core.LogInfo("Vulkan instance destroyed.")
}
