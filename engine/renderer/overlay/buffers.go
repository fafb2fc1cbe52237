package overlay

import (
	"encoding/binary"
	"math"

	"github.com/spaghettifunk/karma/engine/renderer/frame"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

const (
	minBufferSize = 256
	rectBytes     = (6*2 + 4) * 4
)

// frameBuffers keeps one host-visible vertex buffer per frame slot. A buffer
// is only written while its slot is being recorded, so the slot fence covers
// every use of it.
type frameBuffers struct {
	device  gpu.Device
	buffers []gpu.Buffer
	sizes   []uint64
	// Smallest allocation, for overlays with a known upper bound.
	reserve uint64
}

func (b *frameBuffers) attach(ctx frame.OverlayContext) {
	b.device = ctx.Device
	b.buffers = make([]gpu.Buffer, ctx.FramesInFlight)
	b.sizes = make([]uint64, ctx.FramesInFlight)
}

// upload writes data into the buffer of the frame's slot, replacing it with a
// bigger one when needed. The replaced buffer goes through the deferred
// queue.
func (b *frameBuffers) upload(f *frame.OverlayFrame, data []byte) (gpu.Buffer, error) {
	i := f.FrameIndex
	need := uint64(len(data))
	if need > b.sizes[i] {
		if old := b.buffers[i]; old != 0 {
			dev := b.device
			f.Defer(func() { dev.DestroyBuffer(old) })
			b.buffers[i], b.sizes[i] = 0, 0
		}
		size := bufferSize(need)
		if size < b.reserve {
			size = b.reserve
		}
		buf, err := b.device.CreateBuffer(gpu.BufferDesc{Size: size, Usage: gpu.BufferUsageVertex})
		if err != nil {
			return 0, err
		}
		b.buffers[i], b.sizes[i] = buf, size
	}
	if err := b.device.WriteBuffer(b.buffers[i], 0, data); err != nil {
		return 0, err
	}
	return b.buffers[i], nil
}

func (b *frameBuffers) release(ctx frame.OverlayContext) {
	for i, buf := range b.buffers {
		if buf == 0 {
			continue
		}
		dev, buf := b.device, buf
		ctx.Defer(frame.FrameIndex(i), func() { dev.DestroyBuffer(buf) })
	}
	b.buffers, b.sizes = nil, nil
}

func bufferSize(need uint64) uint64 {
	size := uint64(minBufferSize)
	for size < need {
		size *= 2
	}
	return size
}

// rectVertices encodes each rectangle as two triangles of x, y float32
// pairs in pixel space, followed by the RGBA color.
func rectVertices(color gpu.Color, rects []gpu.Rect) []byte {
	out := make([]byte, 0, len(rects)*rectBytes)
	put := func(v float32) {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	for _, r := range rects {
		x0, y0 := float32(r.X), float32(r.Y)
		x1, y1 := x0+float32(r.Width), y0+float32(r.Height)
		for _, v := range [...]float32{x0, y0, x1, y0, x1, y1, x0, y0, x1, y1, x0, y1} {
			put(v)
		}
		put(color.R)
		put(color.G)
		put(color.B)
		put(color.A)
	}
	return out
}
