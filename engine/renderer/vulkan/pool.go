package vulkan

import (
	"sort"
	"sync"
)

// VulkanLockPool serializes access to queues. vkQueueSubmit and
// vkQueuePresentKHR require external synchronization per VkQueue, and
// vkDeviceWaitIdle requires it for every queue of the device.
type VulkanLockPool struct {
	mu           sync.Mutex // Protects access to the queueMutexes map
	queueMutexes map[uint32]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) SetQueueFamily(index uint32) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if _, exists := vs.queueMutexes[index]; !exists {
		vs.queueMutexes[index] = &sync.Mutex{}
	}
}

func (vs *VulkanLockPool) queueLock(index uint32) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	l, ok := vs.queueMutexes[index]
	if !ok {
		l = &sync.Mutex{}
		vs.queueMutexes[index] = l
	}
	return l
}

func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	l := vs.queueLock(queueFamilyIndex)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// SafeDeviceCall runs fn holding every queue lock, taken in family order.
func (vs *VulkanLockPool) SafeDeviceCall(fn func() error) error {
	vs.mu.Lock()
	families := make([]uint32, 0, len(vs.queueMutexes))
	for index := range vs.queueMutexes {
		families = append(families, index)
	}
	vs.mu.Unlock()
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })

	for _, index := range families {
		l := vs.queueLock(index)
		l.Lock()
		defer l.Unlock()
	}
	return fn()
}
