package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

func (d *Device) CreateCommandPool(family uint32) (gpu.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if err := check("vulkan.CreateCommandPool", vk.CreateCommandPool(d.handle, &poolCreateInfo, nil, &pool)); err != nil {
		return 0, err
	}
	return gpu.CommandPool(insert(d, d.pools, &commandPool{handle: pool})), nil
}

// ResetCommandPool returns every buffer of the pool to the initial state.
func (d *Device) ResetCommandPool(h gpu.CommandPool) error {
	pool := lookup(d, d.pools, "vulkan.ResetCommandPool", uint64(h))
	return check("vulkan.ResetCommandPool", vk.ResetCommandPool(d.handle, pool.handle, 0))
}

// DestroyCommandPool frees the pool together with its command buffers.
func (d *Device) DestroyCommandPool(h gpu.CommandPool) {
	pool := release(d, d.pools, "vulkan.DestroyCommandPool", uint64(h))
	d.mu.Lock()
	for _, cb := range pool.buffers {
		d.cbs.Remove(uint64(cb))
	}
	d.mu.Unlock()
	vk.DestroyCommandPool(d.handle, pool.handle, nil)
}

func (d *Device) AllocateCommandBuffer(h gpu.CommandPool) (gpu.CommandBuffer, error) {
	pool := lookup(d, d.pools, "vulkan.AllocateCommandBuffer", uint64(h))
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool.handle,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := check("vulkan.AllocateCommandBuffers", vk.AllocateCommandBuffers(d.handle, &allocateInfo, handles)); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	cb := gpu.CommandBuffer(d.cbs.Insert(commandBuffer{handle: handles[0], pool: h}))
	pool.buffers = append(pool.buffers, cb)
	return cb, nil
}

func (d *Device) commandBuffer(op string, h gpu.CommandBuffer) vk.CommandBuffer {
	return lookup(d, d.cbs, op, uint64(h)).handle
}

func (d *Device) BeginCommandBuffer(h gpu.CommandBuffer) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return check("vulkan.BeginCommandBuffer", vk.BeginCommandBuffer(d.commandBuffer("vulkan.BeginCommandBuffer", h), beginInfo))
}

func (d *Device) EndCommandBuffer(h gpu.CommandBuffer) error {
	return check("vulkan.EndCommandBuffer", vk.EndCommandBuffer(d.commandBuffer("vulkan.EndCommandBuffer", h)))
}

func (d *Device) CmdBeginRenderPass(h gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	cb := d.commandBuffer("vulkan.CmdBeginRenderPass", h)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  lookup(d, d.renderPasses, "vulkan.CmdBeginRenderPass", uint64(begin.RenderPass)),
		Framebuffer: lookup(d, d.framebuffers, "vulkan.CmdBeginRenderPass", uint64(begin.Framebuffer)),
		RenderArea:  rectToVk(begin.Area),
	}
	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor([]float32{begin.Clear.R, begin.Clear.G, begin.Clear.B, begin.Clear.A})
	beginInfo.ClearValueCount = 1
	beginInfo.PClearValues = clearValues

	vk.CmdBeginRenderPass(cb, &beginInfo, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(h gpu.CommandBuffer) {
	vk.CmdEndRenderPass(d.commandBuffer("vulkan.CmdEndRenderPass", h))
}

func (d *Device) CmdSetViewport(h gpu.CommandBuffer, viewport gpu.Viewport) {
	vk.CmdSetViewport(d.commandBuffer("vulkan.CmdSetViewport", h), 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (d *Device) CmdSetScissor(h gpu.CommandBuffer, scissor gpu.Rect) {
	vk.CmdSetScissor(d.commandBuffer("vulkan.CmdSetScissor", h), 0, 1, []vk.Rect2D{rectToVk(scissor)})
}

// CmdClearRects clears regions of the color attachment of the current
// subpass.
func (d *Device) CmdClearRects(h gpu.CommandBuffer, color gpu.Color, rects []gpu.Rect) {
	cb := d.commandBuffer("vulkan.CmdClearRects", h)
	if len(rects) == 0 {
		return
	}
	attachment := vk.ClearAttachment{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: 0,
	}
	attachment.ClearValue.SetColor([]float32{color.R, color.G, color.B, color.A})

	clearRects := make([]vk.ClearRect, len(rects))
	for i, r := range rects {
		clearRects[i] = vk.ClearRect{
			Rect:           rectToVk(r),
			BaseArrayLayer: 0,
			LayerCount:     1,
		}
	}
	vk.CmdClearAttachments(cb, 1, []vk.ClearAttachment{attachment}, uint32(len(clearRects)), clearRects)
}

func (d *Device) CmdBindVertexBuffer(h gpu.CommandBuffer, b gpu.Buffer, offset uint64) {
	cb := d.commandBuffer("vulkan.CmdBindVertexBuffer", h)
	buf := lookup(d, d.buffers, "vulkan.CmdBindVertexBuffer", uint64(b))
	vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{buf.handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}
