package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.instance.surface("vulkan.CreateSwapchain", desc.Surface),
		MinImageCount:    desc.ImageCount,
		ImageFormat:      formatToVk(desc.Format.Format),
		ImageColorSpace:  colorSpaceToVk(desc.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
	}

	// Setup the queue family indices
	if len(desc.QueueFamilies) > 1 && desc.QueueFamilies[0] != desc.QueueFamilies[1] {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = uint32(len(desc.QueueFamilies))
		swapchainCreateInfo.PQueueFamilyIndices = append([]uint32(nil), desc.QueueFamilies...)
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	swapchainCreateInfo.PreTransform = vk.SurfaceTransformFlagBits(desc.Transform)
	swapchainCreateInfo.CompositeAlpha = vk.CompositeAlphaOpaqueBit
	swapchainCreateInfo.PresentMode = presentModeToVk(desc.PresentMode)
	swapchainCreateInfo.Clipped = vk.True
	swapchainCreateInfo.OldSwapchain = vk.NullSwapchain

	var handle vk.Swapchain
	if err := check("vulkan.CreateSwapchain", vk.CreateSwapchain(d.handle, &swapchainCreateInfo, nil, &handle)); err != nil {
		return 0, err
	}

	var imageCount uint32
	if err := check("vulkan.GetSwapchainImages", vk.GetSwapchainImages(d.handle, handle, &imageCount, nil)); err != nil {
		vk.DestroySwapchain(d.handle, handle, nil)
		return 0, err
	}
	images := make([]vk.Image, imageCount)
	if err := check("vulkan.GetSwapchainImages", vk.GetSwapchainImages(d.handle, handle, &imageCount, images)); err != nil {
		vk.DestroySwapchain(d.handle, handle, nil)
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	sc := &swapchain{handle: handle}
	for _, img := range images[:imageCount] {
		sc.images = append(sc.images, gpu.Image(d.images.Insert(img)))
	}
	core.LogDebug("Swapchain created with %d images (%s, %s).", imageCount, desc.Extent, desc.PresentMode)
	return gpu.Swapchain(d.swapchains.Insert(sc)), nil
}

// SwapchainImages returns the images owned by the swapchain, in
// presentation index order.
func (d *Device) SwapchainImages(h gpu.Swapchain) ([]gpu.Image, error) {
	sc := lookup(d, d.swapchains, "vulkan.SwapchainImages", uint64(h))
	return append([]gpu.Image(nil), sc.images...), nil
}

// DestroySwapchain also releases the swapchain images, which are owned by
// the swapchain and never destroyed on their own.
func (d *Device) DestroySwapchain(h gpu.Swapchain) {
	sc := release(d, d.swapchains, "vulkan.DestroySwapchain", uint64(h))
	d.mu.Lock()
	for _, img := range sc.images {
		d.images.Remove(uint64(img))
	}
	d.mu.Unlock()
	vk.DestroySwapchain(d.handle, sc.handle, nil)
}

func (d *Device) CreateImageView(img gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    lookup(d, d.images, "vulkan.CreateImageView", uint64(img)),
		ViewType: vk.ImageViewType2d,
		Format:   formatToVk(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := check("vulkan.CreateImageView", vk.CreateImageView(d.handle, &viewInfo, nil, &view)); err != nil {
		return 0, err
	}
	return gpu.ImageView(insert(d, d.views, view)), nil
}

func (d *Device) DestroyImageView(h gpu.ImageView) {
	view := release(d, d.views, "vulkan.DestroyImageView", uint64(h))
	vk.DestroyImageView(d.handle, view, nil)
}

// AcquireNextImage maps VK_SUBOPTIMAL_KHR to a stale error that still
// carries a valid image index.
func (d *Device) AcquireNextImage(h gpu.Swapchain, timeout uint64, semaphore gpu.Semaphore) (uint32, error) {
	sc := lookup(d, d.swapchains, "vulkan.AcquireNextImage", uint64(h))
	sem := lookup(d, d.semaphores, "vulkan.AcquireNextImage", uint64(semaphore))

	var imageIndex uint32
	res := vk.AcquireNextImage(d.handle, sc.handle, timeout, sem, vk.NullFence, &imageIndex)
	return imageIndex, check("vulkan.AcquireNextImage", res)
}

func (d *Device) Submit(q gpu.Queue, info gpu.SubmitInfo) error {
	queue, family := d.queue("vulkan.Submit", q)

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{d.commandBuffer("vulkan.Submit", info.CommandBuffer)},
	}
	if info.Wait != gpu.NullSemaphore {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{lookup(d, d.semaphores, "vulkan.Submit", uint64(info.Wait))}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{pipelineStageToVk(info.WaitStage)}
	}
	if info.Signal != gpu.NullSemaphore {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{lookup(d, d.semaphores, "vulkan.Submit", uint64(info.Signal))}
	}
	fence := vk.NullFence
	if info.Fence != gpu.NullFence {
		fence = lookup(d, d.fences, "vulkan.Submit", uint64(info.Fence))
	}

	return d.locks.SafeQueueCall(family, func() error {
		return check("vulkan.QueueSubmit", vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
}

func (d *Device) Present(q gpu.Queue, h gpu.Swapchain, imageIndex uint32, wait gpu.Semaphore) error {
	queue, family := d.queue("vulkan.Present", q)
	sc := lookup(d, d.swapchains, "vulkan.Present", uint64(h))

	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if wait != gpu.NullSemaphore {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{lookup(d, d.semaphores, "vulkan.Present", uint64(wait))}
	}

	return d.locks.SafeQueueCall(family, func() error {
		return check("vulkan.QueuePresent", vk.QueuePresent(queue, &presentInfo))
	})
}
