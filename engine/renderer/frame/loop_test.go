package frame

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"github.com/spaghettifunk/karma/engine/renderer/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstTicksDoNotBlock(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2, images: 3})
	defer h.close(t)
	require.Equal(t, 3, h.loop.Swapchain().ImageCount())

	h.tick(t)
	h.tick(t)
	assert.Zero(t, h.count(headless.OpFenceBlocked), "fences start signaled")

	slot0 := h.loop.Slots()[0]
	h.tick(t)
	blocked := h.dev.EventsOf(headless.OpFenceBlocked)
	require.Len(t, blocked, 1)
	assert.Equal(t, uint64(slot0.Fence), blocked[0].Handle, "third tick waits for the first tick's fence")
}

func TestCommandBufferNeverReusedBeforeFence(t *testing.T) {
	for n := 1; n <= 3; n++ {
		t.Run(fmt.Sprintf("frames=%d", n), func(t *testing.T) {
			h := newHarness(t, harnessConfig{framesInFlight: n})
			defer h.close(t)

			fenceOf := make(map[uint64]uint64)
			for _, s := range h.loop.Slots() {
				fenceOf[uint64(s.CommandBuffer)] = uint64(s.Fence)
			}
			for i := 0; i < 12; i++ {
				h.tick(t)
			}

			outstanding := make(map[uint64]bool)
			recorded := 0
			for _, e := range h.dev.Events() {
				switch e.Op {
				case headless.OpSubmit:
					outstanding[fenceOf[e.Handle]] = true
				case headless.OpRetire:
					outstanding[e.Value] = false
				case headless.OpBeginCommandBuffer:
					recorded++
					assert.False(t, outstanding[fenceOf[e.Handle]], "command buffer %d re-recorded while in flight", e.Handle)
				}
			}
			assert.Equal(t, 12, recorded)
		})
	}
}

func TestFrameAndImageIndicesAreIndependent(t *testing.T) {
	for n := 1; n <= 3; n++ {
		for m := n; m <= 5; m++ {
			t.Run(fmt.Sprintf("frames=%d/images=%d", n, m), func(t *testing.T) {
				h := newHarness(t, harnessConfig{framesInFlight: n, images: uint32(m)})
				defer h.close(t)
				sc := h.loop.Swapchain()
				require.Equal(t, m, sc.ImageCount())

				seen := make(map[ImageIndex]bool)
				for i := 0; i < 3*n*m; i++ {
					frame := h.loop.FrameIndex()
					assert.Equal(t, FrameIndex(i%n), frame)

					var image ImageIndex
					require.NoError(t, h.loop.Tick(func(rec gpu.Recorder) error {
						image = h.loop.ImageIndex()
						return nil
					}))
					assert.Less(t, int(image), m)
					seen[image] = true

					submits := h.dev.EventsOf(headless.OpSubmit)
					last := submits[len(submits)-1]
					assert.Equal(t, uint64(h.loop.Slots()[frame].CommandBuffer), last.Handle, "slot chosen by frame index")
					assert.Equal(t, uint64(sc.Framebuffer(image)), last.Value, "framebuffer chosen by image index")
				}
				assert.Len(t, seen, m)
			})
		}
	}
}

func TestDeferredClosuresRunOnceAfterFence(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})

	runs := make(map[int]int)
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, h.loop.Tick(func(gpu.Recorder) error {
			slot := h.loop.Slots()[h.loop.FrameIndex()]
			h.loop.Defer(func() {
				assert.True(t, h.dev.FenceSignaled(slot.Fence), "closure %d ran before its fence signaled", i)
				runs[i]++
			})
			return nil
		}))
	}
	// The last two closures wait for shutdown.
	assert.Len(t, runs, 8)
	h.close(t)

	require.Len(t, runs, 10)
	for i, n := range runs {
		assert.Equal(t, 1, n, "closure %d", i)
	}
}

func TestDeferBetweenFramesWaitsForLastSubmission(t *testing.T) {
	const n = 2
	h := newHarness(t, harnessConfig{framesInFlight: n})
	defer h.close(t)
	h.tick(t)
	h.tick(t)

	submitted := h.loop.Slots()[(int(h.loop.FrameIndex())+n-1)%n]
	ran, early := false, false
	h.loop.Defer(func() {
		ran = true
		early = !h.dev.FenceSignaled(submitted.Fence)
	})

	h.tick(t)
	assert.False(t, ran, "the next slot's fence does not cover the last submission")
	h.tick(t)
	require.True(t, ran)
	assert.False(t, early, "closure ran while its frame was still in flight")
}

func TestImageReusedByOtherSlotWaitsItsFence(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2, images: 3})
	defer h.close(t)
	slot0, slot1 := h.loop.Slots()[0], h.loop.Slots()[1]

	h.dev.ScriptImages(0, 0)
	h.tick(t)
	assert.Zero(t, h.count(headless.OpFenceBlocked))
	h.tick(t)
	assert.Equal(t, ImageIndex(0), h.loop.ImageIndex())

	blocked := h.dev.EventsOf(headless.OpFenceBlocked)
	require.Len(t, blocked, 1, "slot 1 waits for the slot that last rendered image 0")
	assert.Equal(t, uint64(slot0.Fence), blocked[0].Handle)
	assert.True(t, slot0.fenceObserved)
	assert.Equal(t, slot1.Fence, h.loop.imagesInFlight[0])

	h.dev.ScriptAcquire(gpu.ErrorOutOfDate)
	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	require.Len(t, h.loop.imagesInFlight, 3)
	for i, f := range h.loop.imagesInFlight {
		assert.Zero(t, f, "image %d still tracks a fence after recreation", i)
	}

	// Same pattern out of order on the new swapchain.
	h.dev.ScriptImages(2, 2)
	h.tick(t)
	assert.Len(t, h.dev.EventsOf(headless.OpFenceBlocked), 1, "slot 0 fence is already signaled")
	h.tick(t)
	assert.Equal(t, ImageIndex(2), h.loop.ImageIndex())
	blocked = h.dev.EventsOf(headless.OpFenceBlocked)
	require.Len(t, blocked, 2)
	assert.Equal(t, uint64(slot0.Fence), blocked[1].Handle)
}

func TestAcquireOutOfDateRebuildsAndSkipsTick(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 3, images: 4})
	defer h.close(t)
	for i := 0; i < 4; i++ {
		h.tick(t)
	}
	require.Equal(t, FrameIndex(1), h.loop.FrameIndex())
	old := h.loop.Swapchain()
	submits, presents := h.count(headless.OpSubmit), h.count(headless.OpPresent)
	idles := h.count(headless.OpWaitIdle)

	h.dev.ScriptAcquire(gpu.ErrorOutOfDate)
	err := h.loop.Tick(nil)
	require.ErrorIs(t, err, core.ErrSwapchainBooting)

	assert.Equal(t, submits, h.count(headless.OpSubmit), "no submission on the stale tick")
	assert.Equal(t, presents, h.count(headless.OpPresent), "no present on the stale tick")
	assert.Equal(t, idles+1, h.count(headless.OpWaitIdle))
	assert.Equal(t, FrameIndex(0), h.loop.FrameIndex())
	assert.NotEqual(t, old.ID, h.loop.Swapchain().ID)
	assert.Equal(t, old.Generation+1, h.loop.Swapchain().Generation)
	assert.Equal(t, 1, h.dev.Live()["swapchain"])

	h.tick(t)
	assert.Equal(t, presents+1, h.count(headless.OpPresent))
}

func TestSuboptimalAcquireReplacesSemaphore(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)
	h.tick(t)

	slot := h.loop.Slots()[h.loop.FrameIndex()]
	before := slot.ImageAcquired
	h.dev.ScriptAcquire(gpu.Suboptimal)
	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	assert.NotEqual(t, before, slot.ImageAcquired)
	assert.False(t, slot.acquireSignaled)

	// A signaled semaphore would trip the driver here.
	for i := 0; i < 4; i++ {
		h.tick(t)
	}
}

func TestPresentOutOfDateRebuilds(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)
	h.tick(t)
	gen := h.loop.Swapchain().Generation

	h.dev.ScriptPresent(gpu.ErrorOutOfDate)
	require.NoError(t, h.loop.Tick(nil))
	assert.Equal(t, gen+1, h.loop.Swapchain().Generation)
	assert.Equal(t, FrameIndex(0), h.loop.FrameIndex())
	assert.Equal(t, uint64(1), h.dev.Presents())
	h.tick(t)
}

func TestWindowResizeDetectedByAcquire(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)
	h.tick(t)

	h.window.Resize(800, 600)
	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	assert.Equal(t, gpu.Extent2D{Width: 800, Height: 600}, h.loop.Swapchain().Extent)
	h.tick(t)
}

func TestMinimizedWindowSkipsAcquire(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)
	h.tick(t)

	h.window.Resize(0, 0)
	require.NoError(t, h.loop.HandleStale(gpu.Extent2D{}))
	require.True(t, h.loop.Pending())

	acquires, creates := h.count(headless.OpAcquire), h.count(headless.OpCreateSwapchain)
	presents := h.count(headless.OpPresent)
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	}
	assert.Equal(t, acquires, h.count(headless.OpAcquire), "no acquire while minimized")
	assert.Equal(t, presents, h.count(headless.OpPresent), "no present while minimized")
	assert.Equal(t, creates, h.count(headless.OpCreateSwapchain))

	h.window.Resize(1024, 768)
	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	assert.Equal(t, creates+1, h.count(headless.OpCreateSwapchain), "exactly one rebuild")
	assert.False(t, h.loop.Pending())

	h.tick(t)
	h.tick(t)
	assert.Equal(t, creates+1, h.count(headless.OpCreateSwapchain))
	assert.Equal(t, gpu.Extent2D{Width: 1024, Height: 768}, h.loop.Swapchain().Extent)
}

func TestMinimizeDetectedByAcquire(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)
	h.tick(t)

	h.window.Resize(0, 0)
	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	require.True(t, h.loop.Pending())
	acquires := h.count(headless.OpAcquire)

	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	assert.Equal(t, acquires, h.count(headless.OpAcquire))

	h.window.Resize(320, 200)
	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	h.tick(t)
	assert.Equal(t, 1, h.dev.Live()["swapchain"])
}

func TestStartMinimized(t *testing.T) {
	inst := headless.NewInstance()
	window := headless.NewWindow(0, 0)
	ctx, err := CreateDevice(inst, window, Requirements{})
	require.NoError(t, err)
	loop, err := NewLoop(ctx, window, LoopConfig{FramesInFlight: 2})
	require.NoError(t, err)
	h := &harness{inst: inst, window: window, ctx: ctx, dev: inst.Device(), loop: loop}
	defer h.close(t)

	assert.True(t, loop.Pending())
	assert.Nil(t, loop.Swapchain())
	require.ErrorIs(t, loop.Tick(nil), core.ErrSwapchainBooting)

	window.Resize(200, 100)
	require.ErrorIs(t, loop.Tick(nil), core.ErrSwapchainBooting)
	h.tick(t)
	assert.Equal(t, uint64(1), h.dev.Presents())
}

func TestRecreationLeavesOneGeneration(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2, images: 3})
	defer h.close(t)

	sizes := []gpu.Extent2D{{Width: 800, Height: 600}, {}, {Width: 1024, Height: 768}, {Width: 300, Height: 200}, {}, {Width: 640, Height: 360}}
	for _, size := range sizes {
		h.window.Resize(int(size.Width), int(size.Height))
		require.NoError(t, h.loop.HandleStale(size))
		if !size.IsZero() {
			h.tick(t)
			h.tick(t)
		}
	}

	live := h.dev.Live()
	assert.Equal(t, 1, live["swapchain"])
	assert.Equal(t, 1, live["render_pass"])
	assert.Equal(t, 3, live["framebuffer"])
	assert.Equal(t, 3, live["image_view"])
	assert.Equal(t, gpu.Extent2D{Width: 640, Height: 360}, h.loop.Swapchain().Extent)
}

func TestRecorderClipsRects(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 1, width: 100, height: 50})
	defer h.close(t)

	var cb gpu.CommandBuffer
	require.NoError(t, h.loop.Tick(func(rec gpu.Recorder) error {
		cb = h.loop.Slots()[0].CommandBuffer
		assert.Equal(t, gpu.Extent2D{Width: 100, Height: 50}, rec.Extent())
		rec.ClearRects(gpu.Color{R: 1, A: 1},
			gpu.Rect{X: -10, Y: 40, Width: 30, Height: 30},
			gpu.Rect{X: 200, Y: 0, Width: 10, Height: 10})
		return nil
	}))

	var clears []headless.Command
	for _, c := range h.dev.Commands(cb) {
		if c.Kind == headless.CmdClearRects {
			clears = append(clears, c)
		}
	}
	require.Len(t, clears, 1)
	assert.Equal(t, []gpu.Rect{{X: 0, Y: 40, Width: 20, Height: 10}}, clears[0].Rects)
}

func TestFailingRecordAbandonsFrame(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)
	h.tick(t)

	boom := fmt.Errorf("boom")
	require.ErrorIs(t, h.loop.Tick(func(gpu.Recorder) error { return boom }), boom)
	assert.Equal(t, StateIdle, h.loop.State())

	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	h.tick(t)
	h.tick(t)
}

func TestAbandonedFrameLogsEndFailure(t *testing.T) {
	var logs bytes.Buffer
	core.SetLogOutput(&logs)
	defer core.SetLogOutput(io.Discard)

	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)
	h.tick(t)

	h.dev.FailNext(headless.OpEndCommandBuffer, gpu.ErrorOutOfDeviceMemory)
	boom := fmt.Errorf("boom")
	require.ErrorIs(t, h.loop.Tick(func(gpu.Recorder) error { return boom }), boom)
	assert.Equal(t, StateIdle, h.loop.State())
	assert.Contains(t, logs.String(), "end command buffer failed")
	assert.Contains(t, logs.String(), "ERROR_OUT_OF_DEVICE_MEMORY")

	require.ErrorIs(t, h.loop.Tick(nil), core.ErrSwapchainBooting)
	h.tick(t)
	h.tick(t)
}

func TestBeginFrameTwiceIsInvariant(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)

	_, err := h.loop.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, StateRecording, h.loop.State())
	requireInvariant(t, func() { h.loop.BeginFrame() })
	require.NoError(t, h.loop.EndFrame())
	requireInvariant(t, func() { h.loop.EndFrame() })
}

func TestShutdownMidFrame(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	h.tick(t)
	_, err := h.loop.BeginFrame()
	require.NoError(t, err)
	h.close(t)
}

func TestSetUncappedSwitchesPresentMode(t *testing.T) {
	h := newHarness(t, harnessConfig{framesInFlight: 2})
	defer h.close(t)
	assert.Equal(t, gpu.PresentModeFifo, h.loop.Swapchain().PresentMode)

	require.NoError(t, h.loop.SetUncapped(true))
	assert.Equal(t, gpu.PresentModeMailbox, h.loop.Swapchain().PresentMode)
	assert.Equal(t, 1, h.dev.Live()["swapchain"])
	h.tick(t)

	gen := h.loop.Swapchain().Generation
	require.NoError(t, h.loop.SetUncapped(true))
	assert.Equal(t, gen, h.loop.Swapchain().Generation, "no rebuild without a change")
}
