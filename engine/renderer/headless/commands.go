package headless

import "github.com/spaghettifunk/karma/engine/renderer/gpu"

type CommandKind string

const (
	CmdBeginRenderPass CommandKind = "begin_render_pass"
	CmdEndRenderPass   CommandKind = "end_render_pass"
	CmdSetViewport     CommandKind = "set_viewport"
	CmdSetScissor      CommandKind = "set_scissor"
	CmdClearRects      CommandKind = "clear_rects"
	CmdBindVertex      CommandKind = "bind_vertex_buffer"
)

// Command is a recorded command buffer entry.
type Command struct {
	Kind        CommandKind
	RenderPass  gpu.RenderPass
	Framebuffer gpu.Framebuffer
	Color       gpu.Color
	Rects       []gpu.Rect
	Viewport    gpu.Viewport
	Buffer      gpu.Buffer
	Offset      uint64
}

func (d *Device) CreateCommandPool(family uint32) (gpu.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.CreateCommandPool")
	if err := d.injected(OpCreateCommandPool); err != nil {
		return 0, err
	}
	if int(family) >= len(d.adapter.QueueFamilies) {
		return 0, gpu.Check("headless.CreateCommandPool", gpu.ErrorInitializationFailed)
	}
	h := gpu.CommandPool(d.pools.Insert(&commandPool{family: family}))
	d.record(OpCreateCommandPool, uint64(h), uint64(family))
	return h, nil
}

func (d *Device) pool(op string, h gpu.CommandPool) *commandPool {
	p, ok := d.pools.Get(uint64(h))
	if !ok {
		gpu.Invariant(op, "unknown or destroyed command pool %d", h)
	}
	return p
}

func (d *Device) poolInFlight(p *commandPool) bool {
	for _, h := range p.buffers {
		if cb, ok := d.cbs.Get(uint64(h)); ok && cb.state == cbPending {
			return true
		}
	}
	return false
}

func (d *Device) ResetCommandPool(h gpu.CommandPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.ResetCommandPool")
	p := d.pool("headless.ResetCommandPool", h)
	if d.poolInFlight(p) {
		gpu.Invariant("headless.ResetCommandPool", "command pool %d reset while a command buffer is in flight", h)
	}
	for _, cbh := range p.buffers {
		if cb, ok := d.cbs.Get(uint64(cbh)); ok {
			cb.state = cbInitial
			cb.inRenderPass = false
			cb.framebuffer = 0
			cb.buffers = nil
			cb.commands = nil
		}
	}
	d.record(OpResetCommandPool, uint64(h), 0)
	return nil
}

func (d *Device) DestroyCommandPool(h gpu.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools.Get(uint64(h))
	if !ok {
		gpu.Invariant("headless.DestroyCommandPool", "command pool %d destroyed twice or never created", h)
	}
	if d.poolInFlight(p) {
		gpu.Invariant("headless.DestroyCommandPool", "command pool %d destroyed while in flight", h)
	}
	for _, cbh := range p.buffers {
		d.cbs.Remove(uint64(cbh))
	}
	d.pools.Remove(uint64(h))
	d.record(OpDestroyCommandPool, uint64(h), 0)
}

func (d *Device) AllocateCommandBuffer(h gpu.CommandPool) (gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.AllocateCommandBuffer")
	p := d.pool("headless.AllocateCommandBuffer", h)
	cb := gpu.CommandBuffer(d.cbs.Insert(&commandBuffer{pool: h}))
	p.buffers = append(p.buffers, cb)
	return cb, nil
}

func (d *Device) commandBuffer(op string, h gpu.CommandBuffer) *commandBuffer {
	cb, ok := d.cbs.Get(uint64(h))
	if !ok {
		gpu.Invariant(op, "unknown or freed command buffer %d", h)
	}
	return cb
}

func (d *Device) recording(op string, h gpu.CommandBuffer) *commandBuffer {
	cb := d.commandBuffer(op, h)
	if cb.state != cbRecording {
		gpu.Invariant(op, "command buffer %d is not recording", h)
	}
	return cb
}

func (d *Device) BeginCommandBuffer(h gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.commandBuffer("headless.BeginCommandBuffer", h)
	switch cb.state {
	case cbPending:
		gpu.Invariant("headless.BeginCommandBuffer", "command buffer %d re-recorded while in flight", h)
	case cbInitial:
	default:
		gpu.Invariant("headless.BeginCommandBuffer", "command buffer %d begun without a pool reset", h)
	}
	cb.state = cbRecording
	d.record(OpBeginCommandBuffer, uint64(h), 0)
	return nil
}

func (d *Device) EndCommandBuffer(h gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording("headless.EndCommandBuffer", h)
	if cb.inRenderPass {
		gpu.Invariant("headless.EndCommandBuffer", "command buffer %d ended inside a render pass", h)
	}
	if err := d.injected(OpEndCommandBuffer); err != nil {
		return err
	}
	cb.state = cbExecutable
	d.record(OpEndCommandBuffer, uint64(h), 0)
	return nil
}

func (d *Device) CmdBeginRenderPass(h gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording("headless.CmdBeginRenderPass", h)
	if cb.inRenderPass {
		gpu.Invariant("headless.CmdBeginRenderPass", "render pass already active on command buffer %d", h)
	}
	if _, ok := d.renderPasses.Get(uint64(begin.RenderPass)); !ok {
		gpu.Invariant("headless.CmdBeginRenderPass", "unknown or destroyed render pass %d", begin.RenderPass)
	}
	fb, ok := d.framebuffers.Get(uint64(begin.Framebuffer))
	if !ok {
		gpu.Invariant("headless.CmdBeginRenderPass", "unknown or destroyed framebuffer %d", begin.Framebuffer)
	}
	if fb.pass != begin.RenderPass {
		gpu.Invariant("headless.CmdBeginRenderPass", "framebuffer %d was not built for render pass %d", begin.Framebuffer, begin.RenderPass)
	}
	cb.inRenderPass = true
	cb.framebuffer = begin.Framebuffer
	cb.commands = append(cb.commands, Command{
		Kind:        CmdBeginRenderPass,
		RenderPass:  begin.RenderPass,
		Framebuffer: begin.Framebuffer,
		Color:       begin.Clear,
		Rects:       []gpu.Rect{begin.Area},
	})
}

func (d *Device) CmdEndRenderPass(h gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording("headless.CmdEndRenderPass", h)
	if !cb.inRenderPass {
		gpu.Invariant("headless.CmdEndRenderPass", "no active render pass on command buffer %d", h)
	}
	cb.inRenderPass = false
	cb.commands = append(cb.commands, Command{Kind: CmdEndRenderPass})
}

func (d *Device) CmdSetViewport(h gpu.CommandBuffer, viewport gpu.Viewport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording("headless.CmdSetViewport", h)
	cb.commands = append(cb.commands, Command{Kind: CmdSetViewport, Viewport: viewport})
}

func (d *Device) CmdSetScissor(h gpu.CommandBuffer, scissor gpu.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording("headless.CmdSetScissor", h)
	cb.commands = append(cb.commands, Command{Kind: CmdSetScissor, Rects: []gpu.Rect{scissor}})
}

func (d *Device) CmdClearRects(h gpu.CommandBuffer, color gpu.Color, rects []gpu.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording("headless.CmdClearRects", h)
	if !cb.inRenderPass {
		gpu.Invariant("headless.CmdClearRects", "clear outside a render pass on command buffer %d", h)
	}
	cb.commands = append(cb.commands, Command{
		Kind:  CmdClearRects,
		Color: color,
		Rects: append([]gpu.Rect(nil), rects...),
	})
}

func (d *Device) CmdBindVertexBuffer(h gpu.CommandBuffer, b gpu.Buffer, offset uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording("headless.CmdBindVertexBuffer", h)
	if _, ok := d.buffers.Get(uint64(b)); !ok {
		gpu.Invariant("headless.CmdBindVertexBuffer", "unknown or destroyed buffer %d", b)
	}
	cb.buffers = append(cb.buffers, b)
	cb.commands = append(cb.commands, Command{Kind: CmdBindVertex, Buffer: b, Offset: offset})
}

// Commands returns what was recorded into cb since its pool was last reset.
func (d *Device) Commands(h gpu.CommandBuffer) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cbs.Get(uint64(h))
	if !ok {
		return nil
	}
	out := make([]Command, len(cb.commands))
	copy(out, cb.commands)
	return out
}
