package headless

import (
	"fmt"

	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.CreateSwapchain")
	if err := d.injected(OpCreateSwapchain); err != nil {
		return 0, err
	}

	const op = "headless.CreateSwapchain"
	cfg := d.adapter
	if desc.Extent.IsZero() {
		gpu.Invariant(op, "swapchain requested with zero extent %s", desc.Extent)
	}
	if desc.Extent.Width < cfg.MinImageExtent.Width || desc.Extent.Height < cfg.MinImageExtent.Height ||
		desc.Extent.Width > cfg.MaxImageExtent.Width || desc.Extent.Height > cfg.MaxImageExtent.Height {
		gpu.Invariant(op, "extent %s outside the surface limits", desc.Extent)
	}
	if desc.ImageCount < cfg.MinImageCount || (cfg.MaxImageCount > 0 && desc.ImageCount > cfg.MaxImageCount) {
		gpu.Invariant(op, "image count %d outside [%d, %d]", desc.ImageCount, cfg.MinImageCount, cfg.MaxImageCount)
	}
	formatOK := false
	for _, f := range cfg.Formats {
		if f == desc.Format {
			formatOK = true
			break
		}
	}
	if !formatOK {
		gpu.Invariant(op, "unsupported surface format %s", desc.Format.Format)
	}
	modeOK := false
	for _, m := range cfg.PresentModes {
		if m == desc.PresentMode {
			modeOK = true
			break
		}
	}
	if !modeOK {
		gpu.Invariant(op, "unsupported present mode %s", desc.PresentMode)
	}
	d.swapchains.Each(func(h uint64, sc *swapchain) {
		if sc.desc.Surface == desc.Surface {
			gpu.Invariant(op, "surface %d already has live swapchain %d", desc.Surface, h)
		}
	})

	sc := &swapchain{desc: desc, acquired: make([]bool, desc.ImageCount)}
	h := gpu.Swapchain(d.swapchains.Insert(sc))
	for i := uint32(0); i < desc.ImageCount; i++ {
		sc.images = append(sc.images, gpu.Image(d.images.Insert(&image{swapchain: h, index: i})))
	}
	d.record(OpCreateSwapchain, uint64(h), uint64(desc.ImageCount))
	return h, nil
}

func (d *Device) swapchain(op string, h gpu.Swapchain) *swapchain {
	sc, ok := d.swapchains.Get(uint64(h))
	if !ok {
		gpu.Invariant(op, "unknown or destroyed swapchain %d", h)
	}
	return sc
}

func (d *Device) SwapchainImages(h gpu.Swapchain) ([]gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc := d.swapchain("headless.SwapchainImages", h)
	return append([]gpu.Image(nil), sc.images...), nil
}

func (d *Device) DestroySwapchain(h gpu.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains.Get(uint64(h))
	if !ok {
		gpu.Invariant("headless.DestroySwapchain", "swapchain %d destroyed twice or never created", h)
	}
	d.views.Each(func(vh uint64, v *imageView) {
		if img, ok := d.images.Get(uint64(v.image)); ok && img.swapchain == h {
			gpu.Invariant("headless.DestroySwapchain", "swapchain %d destroyed before image view %d", h, vh)
		}
	})
	for _, img := range sc.images {
		d.images.Remove(uint64(img))
	}
	d.swapchains.Remove(uint64(h))
	d.record(OpDestroySwapchain, uint64(h), 0)
}

func (d *Device) CreateImageView(img gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.CreateImageView")
	if _, ok := d.images.Get(uint64(img)); !ok {
		gpu.Invariant("headless.CreateImageView", "unknown or destroyed image %d", img)
	}
	h := gpu.ImageView(d.views.Insert(&imageView{image: img, format: format}))
	d.record(OpCreateImageView, uint64(h), uint64(img))
	return h, nil
}

func (d *Device) DestroyImageView(h gpu.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.views.Get(uint64(h)); !ok {
		gpu.Invariant("headless.DestroyImageView", "image view %d destroyed twice or never created", h)
	}
	d.framebuffers.Each(func(fh uint64, fb *framebuffer) {
		if fb.view == h {
			gpu.Invariant("headless.DestroyImageView", "image view %d destroyed before framebuffer %d", h, fh)
		}
	})
	d.views.Remove(uint64(h))
	d.record(OpDestroyImageView, uint64(h), 0)
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.CreateRenderPass")
	if err := d.injected(OpCreateRenderPass); err != nil {
		return 0, err
	}
	h := gpu.RenderPass(d.renderPasses.Insert(&renderPass{format: desc.ColorFormat}))
	d.record(OpCreateRenderPass, uint64(h), uint64(desc.ColorFormat))
	return h, nil
}

func (d *Device) DestroyRenderPass(h gpu.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses.Get(uint64(h)); !ok {
		gpu.Invariant("headless.DestroyRenderPass", "render pass %d destroyed twice or never created", h)
	}
	d.framebuffers.Each(func(fh uint64, fb *framebuffer) {
		if fb.pass == h {
			gpu.Invariant("headless.DestroyRenderPass", "render pass %d destroyed before framebuffer %d", h, fh)
		}
	})
	d.renderPasses.Remove(uint64(h))
	d.record(OpDestroyRenderPass, uint64(h), 0)
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.CreateFramebuffer")
	if err := d.injected(OpCreateFramebuffer); err != nil {
		return 0, err
	}
	if _, ok := d.renderPasses.Get(uint64(desc.RenderPass)); !ok {
		gpu.Invariant("headless.CreateFramebuffer", "unknown or destroyed render pass %d", desc.RenderPass)
	}
	if _, ok := d.views.Get(uint64(desc.Attachment)); !ok {
		gpu.Invariant("headless.CreateFramebuffer", "unknown or destroyed image view %d", desc.Attachment)
	}
	h := gpu.Framebuffer(d.framebuffers.Insert(&framebuffer{pass: desc.RenderPass, view: desc.Attachment, extent: desc.Extent}))
	d.record(OpCreateFramebuffer, uint64(h), uint64(desc.Attachment))
	return h, nil
}

func (d *Device) DestroyFramebuffer(h gpu.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.framebuffers.Get(uint64(h)); !ok {
		gpu.Invariant("headless.DestroyFramebuffer", "framebuffer %d destroyed twice or never created", h)
	}
	if d.inFlight(func(s *submission) bool { return s.framebuffer == h }) {
		gpu.Invariant("headless.DestroyFramebuffer", "framebuffer %d destroyed while in flight", h)
	}
	d.framebuffers.Remove(uint64(h))
	d.record(OpDestroyFramebuffer, uint64(h), 0)
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.CreateBuffer")
	if err := d.injected(OpCreateBuffer); err != nil {
		return 0, err
	}
	if desc.Size == 0 {
		return 0, gpu.Fatal("headless.CreateBuffer", fmt.Errorf("zero sized buffer"))
	}
	h := gpu.Buffer(d.buffers.Insert(&buffer{usage: desc.Usage, data: make([]byte, desc.Size)}))
	d.record(OpCreateBuffer, uint64(h), desc.Size)
	return h, nil
}

func (d *Device) bufferInFlight(h gpu.Buffer) bool {
	return d.inFlight(func(s *submission) bool {
		for _, b := range s.buffers {
			if b == h {
				return true
			}
		}
		return false
	})
}

func (d *Device) WriteBuffer(h gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.Get(uint64(h))
	if !ok {
		gpu.Invariant("headless.WriteBuffer", "unknown or destroyed buffer %d", h)
	}
	if d.bufferInFlight(h) {
		gpu.Invariant("headless.WriteBuffer", "buffer %d written while the GPU reads it", h)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return gpu.Fatal("headless.WriteBuffer", fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), offset, len(b.data)))
	}
	copy(b.data[offset:], data)
	d.record(OpWriteBuffer, uint64(h), uint64(len(data)))
	return nil
}

func (d *Device) DestroyBuffer(h gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers.Get(uint64(h)); !ok {
		gpu.Invariant("headless.DestroyBuffer", "buffer %d destroyed twice or never created", h)
	}
	if d.bufferInFlight(h) {
		gpu.Invariant("headless.DestroyBuffer", "buffer %d destroyed while in flight", h)
	}
	d.buffers.Remove(uint64(h))
	d.record(OpDestroyBuffer, uint64(h), 0)
}

// BufferData returns a copy of the buffer contents.
func (d *Device) BufferData(h gpu.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.Get(uint64(h))
	if !ok {
		return nil
	}
	return append([]byte(nil), b.data...)
}

// stale reports out-of-date once the surface no longer matches sc.
func (d *Device) stale(sc *swapchain) gpu.Result {
	extent, err := d.instance.surfaceExtent(sc.desc.Surface)
	if err != nil {
		return gpu.ErrorSurfaceLost
	}
	if extent.Width == gpu.UndefinedExtent {
		return gpu.Success
	}
	if extent != sc.desc.Extent {
		return gpu.ErrorOutOfDate
	}
	return gpu.Success
}

func (d *Device) AcquireNextImage(h gpu.Swapchain, timeout uint64, sem gpu.Semaphore) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	const op = "headless.AcquireNextImage"
	d.checkAlive(op)
	sc := d.swapchain(op, h)
	s := d.semaphore(op, sem)
	if s.state != semUnsignaled || s.consumeOnRetire {
		gpu.Invariant(op, "acquire semaphore %d is still signaled or pending", sem)
	}

	res := gpu.Success
	if len(d.acquireScript) > 0 {
		res = d.acquireScript[0]
		d.acquireScript = d.acquireScript[1:]
	} else {
		res = d.stale(sc)
	}
	if res != gpu.Success && res != gpu.Suboptimal {
		d.recordResult(OpAcquire, uint64(h), 0, res.String())
		return 0, gpu.Check(op, res)
	}

	n := len(sc.images)
	index := -1
	if len(d.imageScript) > 0 {
		index = int(d.imageScript[0])
		d.imageScript = d.imageScript[1:]
		if index >= n || sc.acquired[index] {
			gpu.Invariant(op, "scripted image %d of swapchain %d is out of range or already acquired", index, h)
		}
	}
	for i := 0; index < 0 && i < n; i++ {
		candidate := (sc.next + i) % n
		if !sc.acquired[candidate] {
			index = candidate
		}
	}
	if index < 0 {
		if timeout == gpu.Infinite {
			gpu.Invariant(op, "all %d images of swapchain %d are acquired", n, h)
		}
		d.recordResult(OpAcquire, uint64(h), 0, gpu.Timeout.String())
		return 0, gpu.Check(op, gpu.Timeout)
	}
	sc.next = (index + 1) % n
	sc.acquired[index] = true
	s.state = semSignaled
	d.recordResult(OpAcquire, uint64(h), uint64(index), res.String())
	return uint32(index), gpu.Check(op, res)
}

func (d *Device) Submit(q gpu.Queue, info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	const op = "headless.Submit"
	d.checkAlive(op)
	if q == 0 {
		gpu.Invariant(op, "submit to a null queue")
	}
	cb := d.commandBuffer(op, info.CommandBuffer)
	if cb.state != cbExecutable {
		gpu.Invariant(op, "command buffer %d is not executable", info.CommandBuffer)
	}
	var f *fence
	if info.Fence != gpu.NullFence {
		f = d.fence(op, info.Fence)
		if f.signaled || f.pending != nil {
			gpu.Invariant(op, "fence %d submitted while signaled or in flight", info.Fence)
		}
	}
	if info.Wait != gpu.NullSemaphore {
		d.consume(op, info.Wait)
	}
	if info.Signal != gpu.NullSemaphore {
		s := d.semaphore(op, info.Signal)
		if s.state != semUnsignaled {
			gpu.Invariant(op, "semaphore %d signaled twice", info.Signal)
		}
		s.state = semPending
	}

	d.seq++
	sub := &submission{
		seq:         d.seq,
		cb:          info.CommandBuffer,
		signal:      info.Signal,
		fence:       info.Fence,
		framebuffer: cb.framebuffer,
		buffers:     append([]gpu.Buffer(nil), cb.buffers...),
	}
	cb.state = cbPending
	if f != nil {
		f.pending = sub
	}
	d.pending = append(d.pending, sub)
	d.submitted++
	d.record(OpSubmit, uint64(info.CommandBuffer), uint64(cb.framebuffer))
	return nil
}

func (d *Device) Present(q gpu.Queue, h gpu.Swapchain, imageIndex uint32, wait gpu.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	const op = "headless.Present"
	d.checkAlive(op)
	sc := d.swapchain(op, h)
	if int(imageIndex) >= len(sc.images) || !sc.acquired[imageIndex] {
		gpu.Invariant(op, "image %d of swapchain %d presented without being acquired", imageIndex, h)
	}
	if wait != gpu.NullSemaphore {
		d.consume(op, wait)
	}
	sc.acquired[imageIndex] = false

	res := gpu.Success
	if len(d.presentScript) > 0 {
		res = d.presentScript[0]
		d.presentScript = d.presentScript[1:]
	} else {
		res = d.stale(sc)
	}
	if res == gpu.Success || res == gpu.Suboptimal {
		d.presented++
	}
	d.recordResult(OpPresent, uint64(h), uint64(imageIndex), res.String())
	return gpu.Check(op, res)
}
