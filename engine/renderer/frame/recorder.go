package frame

import "github.com/spaghettifunk/karma/engine/renderer/gpu"

type commandRecorder struct {
	device gpu.Device
	cb     gpu.CommandBuffer
	extent gpu.Extent2D
}

func (r *commandRecorder) Extent() gpu.Extent2D {
	return r.extent
}

func (r *commandRecorder) SetViewport(viewport gpu.Viewport) {
	r.device.CmdSetViewport(r.cb, viewport)
}

func (r *commandRecorder) SetScissor(scissor gpu.Rect) {
	r.device.CmdSetScissor(r.cb, scissor)
}

// ClearRects clears the rectangles clipped to the framebuffer. Empty
// rectangles are dropped.
func (r *commandRecorder) ClearRects(color gpu.Color, rects ...gpu.Rect) {
	clipped := make([]gpu.Rect, 0, len(rects))
	for _, rc := range rects {
		if c, ok := clipRect(rc, r.extent); ok {
			clipped = append(clipped, c)
		}
	}
	if len(clipped) == 0 {
		return
	}
	r.device.CmdClearRects(r.cb, color, clipped)
}

func (r *commandRecorder) BindVertexBuffer(buffer gpu.Buffer, offset uint64) {
	r.device.CmdBindVertexBuffer(r.cb, buffer, offset)
}

func clipRect(rc gpu.Rect, extent gpu.Extent2D) (gpu.Rect, bool) {
	x0, y0 := int64(rc.X), int64(rc.Y)
	x1, y1 := x0+int64(rc.Width), y0+int64(rc.Height)
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > int64(extent.Width) {
		x1 = int64(extent.Width)
	}
	if y1 > int64(extent.Height) {
		y1 = int64(extent.Height)
	}
	if x1 <= x0 || y1 <= y0 {
		return gpu.Rect{}, false
	}
	return gpu.Rect{X: int32(x0), Y: int32(y0), Width: uint32(x1 - x0), Height: uint32(y1 - y0)}, true
}
