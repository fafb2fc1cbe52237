package frame

import (
	"fmt"

	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// FrameIndex selects a Slot. It cycles 0..N-1 and never indexes swapchain
// images.
type FrameIndex uint32

// ImageIndex is what acquire returned. It selects a swapchain image and its
// framebuffer and never indexes slots.
type ImageIndex uint32

// Slot holds the CPU/GPU handshake objects of one frame in flight.
type Slot struct {
	Index          FrameIndex
	Pool           gpu.CommandPool
	CommandBuffer  gpu.CommandBuffer
	Fence          gpu.Fence
	ImageAcquired  gpu.Semaphore
	RenderComplete gpu.Semaphore

	// The fence was seen signaled after the last submission from this slot.
	fenceObserved bool
	// ImageAcquired was signaled by an acquire whose frame got abandoned.
	acquireSignaled bool
}

// CreateFrameSlots builds n slots, each with its own command pool. Fences
// start signaled so the first use of each slot does not block.
func CreateFrameSlots(ctx *DeviceContext, n int) (slots []*Slot, err error) {
	if n < 1 {
		return nil, fmt.Errorf("at least one frame in flight is required, got %d", n)
	}
	dev := ctx.Device
	defer func() {
		if err != nil {
			for _, s := range slots {
				s.destroy(dev)
			}
			slots = nil
		}
	}()

	for i := 0; i < n; i++ {
		s := &Slot{Index: FrameIndex(i), fenceObserved: true}
		slots = append(slots, s)

		if s.Pool, err = dev.CreateCommandPool(ctx.GraphicsFamily); err != nil {
			return slots, fmt.Errorf("slot %d: failed to create command pool: %w", i, err)
		}
		if s.CommandBuffer, err = dev.AllocateCommandBuffer(s.Pool); err != nil {
			return slots, fmt.Errorf("slot %d: failed to allocate command buffer: %w", i, err)
		}
		if s.Fence, err = dev.CreateFence(true); err != nil {
			return slots, fmt.Errorf("slot %d: failed to create fence: %w", i, err)
		}
		if s.ImageAcquired, err = dev.CreateSemaphore(); err != nil {
			return slots, fmt.Errorf("slot %d: failed to create semaphore on image available: %w", i, err)
		}
		if s.RenderComplete, err = dev.CreateSemaphore(); err != nil {
			return slots, fmt.Errorf("slot %d: failed to create semaphore on queue complete: %w", i, err)
		}
	}
	return slots, nil
}

// replaceAcquireSemaphore swaps a semaphore left signaled by an abandoned
// acquire. The device must be idle.
func (s *Slot) replaceAcquireSemaphore(dev gpu.Device) error {
	sem, err := dev.CreateSemaphore()
	if err != nil {
		return err
	}
	dev.DestroySemaphore(s.ImageAcquired)
	s.ImageAcquired = sem
	s.acquireSignaled = false
	return nil
}

func (s *Slot) destroy(dev gpu.Device) {
	if s.RenderComplete != 0 {
		dev.DestroySemaphore(s.RenderComplete)
		s.RenderComplete = 0
	}
	if s.ImageAcquired != 0 {
		dev.DestroySemaphore(s.ImageAcquired)
		s.ImageAcquired = 0
	}
	if s.Fence != 0 {
		dev.DestroyFence(s.Fence)
		s.Fence = 0
	}
	// Command buffers are freed with their pool.
	if s.Pool != 0 {
		dev.DestroyCommandPool(s.Pool)
		s.Pool = 0
		s.CommandBuffer = 0
	}
}
