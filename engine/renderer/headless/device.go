package headless

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

type fence struct {
	signaled bool
	pending  *submission
}

type semaphoreState int

const (
	semUnsignaled semaphoreState = iota
	semPending
	semSignaled
)

type semaphore struct {
	state semaphoreState
	// A wait was queued on a pending signal; retiring leaves it unsignaled.
	consumeOnRetire bool
}

type commandPool struct {
	family  uint32
	buffers []gpu.CommandBuffer
}

type commandBufferState int

const (
	cbInitial commandBufferState = iota
	cbRecording
	cbExecutable
	cbPending
)

type commandBuffer struct {
	pool         gpu.CommandPool
	state        commandBufferState
	inRenderPass bool
	framebuffer  gpu.Framebuffer
	buffers      []gpu.Buffer
	commands     []Command
}

type swapchain struct {
	desc     gpu.SwapchainDesc
	images   []gpu.Image
	acquired []bool
	next     int
}

type image struct {
	swapchain gpu.Swapchain
	index     uint32
}

type imageView struct {
	image  gpu.Image
	format gpu.Format
}

type renderPass struct {
	format gpu.Format
}

type framebuffer struct {
	pass   gpu.RenderPass
	view   gpu.ImageView
	extent gpu.Extent2D
}

type buffer struct {
	usage gpu.BufferUsage
	data  []byte
}

type submission struct {
	seq         uint64
	cb          gpu.CommandBuffer
	signal      gpu.Semaphore
	fence       gpu.Fence
	framebuffer gpu.Framebuffer
	buffers     []gpu.Buffer
}

// Device is a software GPU. Submitted work executes lazily: it retires when
// the host waits on its fence or on the whole device, in submission order.
// Every synchronization or lifetime rule the frame engine depends on is
// checked and reported through gpu.Invariant.
type Device struct {
	mu         sync.Mutex
	instance   *Instance
	adapter    AdapterConfig
	desc       gpu.DeviceDesc
	destroyed  atomic.Bool
	events     []Event
	eventLimit int

	fences       *gpu.Arena[*fence]
	semaphores   *gpu.Arena[*semaphore]
	pools        *gpu.Arena[*commandPool]
	cbs          *gpu.Arena[*commandBuffer]
	swapchains   *gpu.Arena[*swapchain]
	images       *gpu.Arena[*image]
	views        *gpu.Arena[*imageView]
	renderPasses *gpu.Arena[*renderPass]
	framebuffers *gpu.Arena[*framebuffer]
	buffers      *gpu.Arena[*buffer]

	pending   []*submission
	seq       uint64
	submitted uint64
	presented uint64

	acquireScript []gpu.Result
	imageScript   []uint32
	presentScript []gpu.Result
	failures      map[Op]gpu.Result
}

func newDevice(i *Instance, cfg AdapterConfig, desc gpu.DeviceDesc) *Device {
	return &Device{
		instance:     i,
		adapter:      cfg,
		desc:         desc,
		eventLimit:   i.eventLimit,
		fences:       gpu.NewArena[*fence](),
		semaphores:   gpu.NewArena[*semaphore](),
		pools:        gpu.NewArena[*commandPool](),
		cbs:          gpu.NewArena[*commandBuffer](),
		swapchains:   gpu.NewArena[*swapchain](),
		images:       gpu.NewArena[*image](),
		views:        gpu.NewArena[*imageView](),
		renderPasses: gpu.NewArena[*renderPass](),
		framebuffers: gpu.NewArena[*framebuffer](),
		buffers:      gpu.NewArena[*buffer](),
		failures:     make(map[Op]gpu.Result),
	}
}

func (d *Device) isDestroyed() bool {
	return d.destroyed.Load()
}

// ScriptAcquire queues results returned by the next acquire calls, ahead of
// the automatic out-of-date detection.
func (d *Device) ScriptAcquire(results ...gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireScript = append(d.acquireScript, results...)
}

// ScriptImages queues the image indices handed out by the next successful
// acquire calls. Without a script images are handed out round-robin.
func (d *Device) ScriptImages(indices ...uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.imageScript = append(d.imageScript, indices...)
}

// ScriptPresent queues results returned by the next present calls.
func (d *Device) ScriptPresent(results ...gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentScript = append(d.presentScript, results...)
}

// FailNext makes the next call of op return res. Create calls and
// EndCommandBuffer honor it.
func (d *Device) FailNext(op Op, res gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = res
}

func (d *Device) injected(op Op) error {
	if res, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return gpu.Check("headless."+string(op), res)
	}
	return nil
}

// Submissions is the number of accepted queue submissions.
func (d *Device) Submissions() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

// Presents is the number of successful presentations.
func (d *Device) Presents() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presented
}

// InFlight is the number of submissions that have not retired yet.
func (d *Device) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Live counts the objects of each kind that are still alive.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live()
}

func (d *Device) live() map[string]int {
	return map[string]int{
		"fence":          d.fences.Len(),
		"semaphore":      d.semaphores.Len(),
		"command_pool":   d.pools.Len(),
		"command_buffer": d.cbs.Len(),
		"swapchain":      d.swapchains.Len(),
		"image_view":     d.views.Len(),
		"render_pass":    d.renderPasses.Len(),
		"framebuffer":    d.framebuffers.Len(),
		"buffer":         d.buffers.Len(),
	}
}

func (d *Device) Queue(family uint32) gpu.Queue {
	return gpu.Queue(family + 1)
}

func (d *Device) checkAlive(op string) {
	if d.isDestroyed() {
		gpu.Invariant(op, "device used after destroy")
	}
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.WaitIdle")
	d.retireAll()
	d.record(OpWaitIdle, 0, 0)
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isDestroyed() {
		gpu.Invariant("headless.DestroyDevice", "device destroyed twice")
	}
	if len(d.pending) > 0 {
		gpu.Invariant("headless.DestroyDevice", "device destroyed with %d submission(s) in flight", len(d.pending))
	}
	var leaks []string
	for kind, n := range d.live() {
		if n > 0 {
			leaks = append(leaks, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	if len(leaks) > 0 {
		sort.Strings(leaks)
		gpu.Invariant("headless.DestroyDevice", "device destroyed with live objects: %s", strings.Join(leaks, ", "))
	}
	d.destroyed.Store(true)
	d.record(OpDestroyDevice, 0, 0)
}

// retireThrough completes pending work in order up to and including s.
func (d *Device) retireThrough(s *submission) {
	for len(d.pending) > 0 {
		head := d.pending[0]
		d.pending = d.pending[1:]
		d.retire(head)
		if head == s {
			return
		}
	}
}

func (d *Device) retireAll() {
	for len(d.pending) > 0 {
		head := d.pending[0]
		d.pending = d.pending[1:]
		d.retire(head)
	}
}

func (d *Device) retire(s *submission) {
	if cb, ok := d.cbs.Get(uint64(s.cb)); ok && cb.state == cbPending {
		cb.state = cbExecutable
	}
	if sem, ok := d.semaphores.Get(uint64(s.signal)); ok {
		if sem.consumeOnRetire {
			sem.state = semUnsignaled
			sem.consumeOnRetire = false
		} else {
			sem.state = semSignaled
		}
	}
	if f, ok := d.fences.Get(uint64(s.fence)); ok {
		f.signaled = true
		f.pending = nil
	}
	d.record(OpRetire, s.seq, uint64(s.fence))
}

func (d *Device) inFlight(match func(s *submission) bool) bool {
	for _, s := range d.pending {
		if match(s) {
			return true
		}
	}
	return false
}

// Fences

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.CreateFence")
	if err := d.injected(OpCreateFence); err != nil {
		return 0, err
	}
	h := gpu.Fence(d.fences.Insert(&fence{signaled: signaled}))
	d.record(OpCreateFence, uint64(h), boolValue(signaled))
	return h, nil
}

func (d *Device) fence(op string, h gpu.Fence) *fence {
	f, ok := d.fences.Get(uint64(h))
	if !ok {
		gpu.Invariant(op, "unknown or destroyed fence %d", h)
	}
	return f
}

func (d *Device) WaitFence(h gpu.Fence, timeout uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.WaitFence")
	f := d.fence("headless.WaitFence", h)
	if f.signaled {
		d.record(OpWaitFence, uint64(h), 0)
		return nil
	}
	if f.pending == nil {
		if timeout == gpu.Infinite {
			gpu.Invariant("headless.WaitFence", "fence %d waited forever with no pending signal", h)
		}
		d.recordResult(OpWaitFence, uint64(h), 0, gpu.Timeout.String())
		return gpu.Check("headless.WaitFence", gpu.Timeout)
	}
	d.record(OpFenceBlocked, uint64(h), f.pending.seq)
	d.retireThrough(f.pending)
	d.record(OpWaitFence, uint64(h), 1)
	return nil
}

func (d *Device) ResetFence(h gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.ResetFence")
	f := d.fence("headless.ResetFence", h)
	if f.pending != nil {
		gpu.Invariant("headless.ResetFence", "fence %d reset while its submission is in flight", h)
	}
	f.signaled = false
	d.record(OpResetFence, uint64(h), 0)
	return nil
}

func (d *Device) DestroyFence(h gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences.Get(uint64(h))
	if !ok {
		gpu.Invariant("headless.DestroyFence", "fence %d destroyed twice or never created", h)
	}
	if f.pending != nil {
		gpu.Invariant("headless.DestroyFence", "fence %d destroyed while in flight", h)
	}
	d.fences.Remove(uint64(h))
	d.record(OpDestroyFence, uint64(h), 0)
}

// FenceSignaled reports the current host visible state of a fence.
func (d *Device) FenceSignaled(h gpu.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences.Get(uint64(h))
	return ok && f.signaled
}

// Semaphores

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkAlive("headless.CreateSemaphore")
	if err := d.injected(OpCreateSemaphore); err != nil {
		return 0, err
	}
	h := gpu.Semaphore(d.semaphores.Insert(&semaphore{}))
	d.record(OpCreateSemaphore, uint64(h), 0)
	return h, nil
}

func (d *Device) semaphore(op string, h gpu.Semaphore) *semaphore {
	s, ok := d.semaphores.Get(uint64(h))
	if !ok {
		gpu.Invariant(op, "unknown or destroyed semaphore %d", h)
	}
	return s
}

func (d *Device) DestroySemaphore(h gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.semaphores.Get(uint64(h))
	if !ok {
		gpu.Invariant("headless.DestroySemaphore", "semaphore %d destroyed twice or never created", h)
	}
	if s.state == semPending || s.consumeOnRetire {
		gpu.Invariant("headless.DestroySemaphore", "semaphore %d destroyed while in flight", h)
	}
	d.semaphores.Remove(uint64(h))
	d.record(OpDestroySemaphore, uint64(h), 0)
}

// consume queues a wait on semaphore h.
func (d *Device) consume(op string, h gpu.Semaphore) {
	s := d.semaphore(op, h)
	switch {
	case s.state == semSignaled:
		s.state = semUnsignaled
	case s.state == semPending && !s.consumeOnRetire:
		s.consumeOnRetire = true
	default:
		gpu.Invariant(op, "wait on semaphore %d that nothing will signal", h)
	}
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
