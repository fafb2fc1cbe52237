package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// CreateBuffer allocates a host visible, coherent buffer.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return 0, gpu.Fatal("vulkan.CreateBuffer", fmt.Errorf("zero sized buffer"))
	}
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsageToVk(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := check("vulkan.CreateBuffer", vk.CreateBuffer(d.handle, &bufferInfo, nil, &handle)); err != nil {
		return 0, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, handle, &requirements)
	requirements.Deref()

	index := d.FindMemoryIndex(requirements.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if index < 0 {
		vk.DestroyBuffer(d.handle, handle, nil)
		return 0, gpu.Fatal("vulkan.CreateBuffer", fmt.Errorf("no host visible memory type"))
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := check("vulkan.AllocateMemory", vk.AllocateMemory(d.handle, &allocateInfo, nil, &memory)); err != nil {
		vk.DestroyBuffer(d.handle, handle, nil)
		return 0, err
	}
	if err := check("vulkan.BindBufferMemory", vk.BindBufferMemory(d.handle, handle, memory, 0)); err != nil {
		vk.FreeMemory(d.handle, memory, nil)
		vk.DestroyBuffer(d.handle, handle, nil)
		return 0, err
	}
	return gpu.Buffer(insert(d, d.buffers, &buffer{handle: handle, memory: memory, size: desc.Size})), nil
}

func (d *Device) WriteBuffer(h gpu.Buffer, offset uint64, data []byte) error {
	b := lookup(d, d.buffers, "vulkan.WriteBuffer", uint64(h))
	if offset+uint64(len(data)) > b.size {
		return gpu.Fatal("vulkan.WriteBuffer", fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), offset, b.size))
	}
	if len(data) == 0 {
		return nil
	}
	var mapped unsafe.Pointer
	if err := check("vulkan.MapMemory", vk.MapMemory(d.handle, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped)); err != nil {
		return err
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(d.handle, b.memory)
	return nil
}

func (d *Device) DestroyBuffer(h gpu.Buffer) {
	b := release(d, d.buffers, "vulkan.DestroyBuffer", uint64(h))
	vk.DestroyBuffer(d.handle, b.handle, nil)
	vk.FreeMemory(d.handle, b.memory, nil)
}
