package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// CreateRenderPass builds a single subpass pass with one color attachment
// that is cleared on load and left ready for presentation.
func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	colorAttachment := vk.AttachmentDescription{
		Format:         formatToVk(desc.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,  // Do not expect any particular layout before render pass starts.
		FinalLayout:    vk.ImageLayoutPresentSrc, // Transitioned to after the render pass
	}
	colorAttachment.Deref()

	colorAttachmentReference := []vk.AttachmentReference{
		{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		},
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachmentReference,
	}
	subpass.Deref()

	// The acquire semaphore is waited at color attachment output, so the
	// layout transition has to wait there too.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}
	dependency.Deref()

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	renderpassCreateInfo.Deref()

	var pass vk.RenderPass
	if err := check("vulkan.CreateRenderPass", vk.CreateRenderPass(d.handle, &renderpassCreateInfo, nil, &pass)); err != nil {
		return 0, err
	}
	return gpu.RenderPass(insert(d, d.renderPasses, pass)), nil
}

func (d *Device) DestroyRenderPass(h gpu.RenderPass) {
	pass := release(d, d.renderPasses, "vulkan.DestroyRenderPass", uint64(h))
	vk.DestroyRenderPass(d.handle, pass, nil)
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      lookup(d, d.renderPasses, "vulkan.CreateFramebuffer", uint64(desc.RenderPass)),
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{lookup(d, d.views, "vulkan.CreateFramebuffer", uint64(desc.Attachment))},
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := check("vulkan.CreateFramebuffer", vk.CreateFramebuffer(d.handle, &framebufferCreateInfo, nil, &fb)); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(insert(d, d.framebuffers, fb)), nil
}

func (d *Device) DestroyFramebuffer(h gpu.Framebuffer) {
	fb := release(d, d.framebuffers, "vulkan.DestroyFramebuffer", uint64(h))
	vk.DestroyFramebuffer(d.handle, fb, nil)
}
