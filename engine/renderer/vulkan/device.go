package vulkan

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

type commandBuffer struct {
	handle vk.CommandBuffer
	pool   gpu.CommandPool
}

type commandPool struct {
	handle  vk.CommandPool
	buffers []gpu.CommandBuffer
}

type swapchain struct {
	handle vk.Swapchain
	images []gpu.Image
}

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
}

// Device implements gpu.Device on a VkDevice. Driver objects live in
// generational arenas so a stale handle is reported instead of reaching the
// driver.
type Device struct {
	mu       sync.Mutex
	instance *Instance
	physical vk.PhysicalDevice
	handle   vk.Device
	memory   vk.PhysicalDeviceMemoryProperties
	queues   map[uint32]vk.Queue
	locks    *VulkanLockPool

	fences       *gpu.Arena[vk.Fence]
	semaphores   *gpu.Arena[vk.Semaphore]
	pools        *gpu.Arena[*commandPool]
	cbs          *gpu.Arena[commandBuffer]
	swapchains   *gpu.Arena[*swapchain]
	images       *gpu.Arena[vk.Image]
	views        *gpu.Arena[vk.ImageView]
	renderPasses *gpu.Arena[vk.RenderPass]
	framebuffers *gpu.Arena[vk.Framebuffer]
	buffers      *gpu.Arena[*buffer]

	destroyed bool
}

var _ gpu.Device = (*Device)(nil)

func newDevice(i *Instance, physical vk.PhysicalDevice, handle vk.Device, families []uint32) *Device {
	d := &Device{
		instance:     i,
		physical:     physical,
		handle:       handle,
		queues:       make(map[uint32]vk.Queue, len(families)),
		locks:        NewVulkanLockPool(),
		fences:       gpu.NewArena[vk.Fence](),
		semaphores:   gpu.NewArena[vk.Semaphore](),
		pools:        gpu.NewArena[*commandPool](),
		cbs:          gpu.NewArena[commandBuffer](),
		swapchains:   gpu.NewArena[*swapchain](),
		images:       gpu.NewArena[vk.Image](),
		views:        gpu.NewArena[vk.ImageView](),
		renderPasses: gpu.NewArena[vk.RenderPass](),
		framebuffers: gpu.NewArena[vk.Framebuffer](),
		buffers:      gpu.NewArena[*buffer](),
	}
	vk.GetPhysicalDeviceMemoryProperties(physical, &d.memory)
	d.memory.Deref()

	for _, family := range families {
		var q vk.Queue
		vk.GetDeviceQueue(handle, family, 0, &q)
		d.queues[family] = q
		d.locks.SetQueueFamily(family)
	}
	core.LogInfo("Queues obtained.")
	return d
}

// lookup resolves h in a or raises an invariant violation.
func lookup[T any](d *Device, a *gpu.Arena[T], op string, h uint64) T {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := a.Get(h)
	if !ok {
		gpu.Invariant(op, "unknown or destroyed handle %#x", h)
	}
	return v
}

func release[T any](d *Device, a *gpu.Arena[T], op string, h uint64) T {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := a.Remove(h)
	if !ok {
		gpu.Invariant(op, "handle %#x destroyed twice or never created", h)
	}
	return v
}

func insert[T any](d *Device, a *gpu.Arena[T], v T) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return a.Insert(v)
}

func (d *Device) Queue(family uint32) gpu.Queue {
	return gpu.Queue(family + 1)
}

func (d *Device) queue(op string, q gpu.Queue) (vk.Queue, uint32) {
	family := uint32(q) - 1
	handle, ok := d.queues[family]
	if q == 0 || !ok {
		gpu.Invariant(op, "unknown queue %d", q)
	}
	return handle, family
}

func (d *Device) WaitIdle() error {
	return d.locks.SafeDeviceCall(func() error {
		return check("vulkan.DeviceWaitIdle", vk.DeviceWaitIdle(d.handle))
	})
}

func (d *Device) live() map[string]int {
	return map[string]int{
		"fence":          d.fences.Len(),
		"semaphore":      d.semaphores.Len(),
		"command_pool":   d.pools.Len(),
		"swapchain":      d.swapchains.Len(),
		"image_view":     d.views.Len(),
		"render_pass":    d.renderPasses.Len(),
		"framebuffer":    d.framebuffers.Len(),
		"buffer":         d.buffers.Len(),
		"command_buffer": d.cbs.Len(),
	}
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		gpu.Invariant("vulkan.DestroyDevice", "device destroyed twice")
	}
	var leaks []string
	for kind, n := range d.live() {
		if n > 0 {
			leaks = append(leaks, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	if len(leaks) > 0 {
		sort.Strings(leaks)
		gpu.Invariant("vulkan.DestroyDevice", "device destroyed with live objects: %s", strings.Join(leaks, ", "))
	}
	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.handle, nil)
	d.queues = nil
	d.destroyed = true
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check("vulkan.CreateFence", vk.CreateFence(d.handle, &fenceCreateInfo, nil, &fence)); err != nil {
		return 0, err
	}
	return gpu.Fence(insert(d, d.fences, fence)), nil
}

func (d *Device) WaitFence(h gpu.Fence, timeout uint64) error {
	fence := lookup(d, d.fences, "vulkan.WaitFence", uint64(h))
	res := vk.WaitForFences(d.handle, 1, []vk.Fence{fence}, vk.True, timeout)
	if res == vk.Timeout {
		core.LogWarn("vulkan.WaitFence - Timed out")
	}
	return check("vulkan.WaitFence", res)
}

func (d *Device) ResetFence(h gpu.Fence) error {
	fence := lookup(d, d.fences, "vulkan.ResetFence", uint64(h))
	return check("vulkan.ResetFence", vk.ResetFences(d.handle, 1, []vk.Fence{fence}))
}

func (d *Device) DestroyFence(h gpu.Fence) {
	fence := release(d, d.fences, "vulkan.DestroyFence", uint64(h))
	vk.DestroyFence(d.handle, fence, nil)
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check("vulkan.CreateSemaphore", vk.CreateSemaphore(d.handle, &semaphoreCreateInfo, nil, &semaphore)); err != nil {
		return 0, err
	}
	return gpu.Semaphore(insert(d, d.semaphores, semaphore)), nil
}

func (d *Device) DestroySemaphore(h gpu.Semaphore) {
	semaphore := release(d, d.semaphores, "vulkan.DestroySemaphore", uint64(h))
	vk.DestroySemaphore(d.handle, semaphore, nil)
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has all of propertyFlags, or -1.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		d.memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && d.memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
