package vulkan

import (
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToResultKeepsStaleCodes(t *testing.T) {
	assert.Equal(t, gpu.Success, toResult(vk.Success))
	assert.Equal(t, gpu.Suboptimal, toResult(vk.Suboptimal))
	assert.Equal(t, gpu.ErrorOutOfDate, toResult(vk.ErrorOutOfDate))
	assert.Equal(t, gpu.ErrorDeviceLost, toResult(vk.ErrorDeviceLost))
	assert.Equal(t, gpu.ErrorUnknown, toResult(vk.ErrorFragmentedPool))

	assert.True(t, gpu.IsStale(check("acquire", vk.Suboptimal)))
	assert.True(t, gpu.IsStale(check("present", vk.ErrorOutOfDate)))
	assert.NoError(t, check("submit", vk.Success))

	kind, ok := gpu.KindOf(check("submit", vk.ErrorDeviceLost))
	require.True(t, ok)
	assert.Equal(t, gpu.KindFatal, kind)
}

func TestFormatConversionRoundTrips(t *testing.T) {
	for f := range formats {
		assert.Equal(t, f, formatFromVk(formatToVk(f)), f.String())
	}
	assert.Equal(t, vk.FormatUndefined, formatToVk(gpu.FormatUndefined))
	assert.Equal(t, gpu.FormatUndefined, formatFromVk(vk.FormatD32Sfloat))
}

func TestPresentModeConversion(t *testing.T) {
	for _, m := range []gpu.PresentMode{gpu.PresentModeImmediate, gpu.PresentModeMailbox, gpu.PresentModeFifo, gpu.PresentModeFifoRelaxed} {
		got, ok := presentModeFromVk(presentModeToVk(m))
		require.True(t, ok)
		assert.Equal(t, m, got)
	}
	_, ok := presentModeFromVk(vk.PresentMode(1000111000))
	assert.False(t, ok)
}

func TestPipelineStageFlags(t *testing.T) {
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), pipelineStageToVk(gpu.StageColorAttachmentOutput))
	assert.Equal(t, vk.PipelineStageFlags(0), pipelineStageToVk(0))
	both := pipelineStageToVk(gpu.StageTopOfPipe | gpu.StageBottomOfPipe)
	assert.NotZero(t, both&vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit))
	assert.NotZero(t, both&vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "VK_KHR_surface\x00", VulkanSafeString("VK_KHR_surface"))
	assert.Equal(t, "done\x00", VulkanSafeString("done\x00"))

	in := []string{"a", "b"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, []string{"a", "b"}, in)
}

func TestCString(t *testing.T) {
	var name [16]byte
	copy(name[:], "llvmpipe")
	assert.Equal(t, "llvmpipe", cString(name[:]))
	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte{'a', 'b', 'c'}))
	assert.Equal(t, "abc", cString([]byte{'a', 'b', 'c'}))
}

func TestLockPoolSerializesQueues(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)
	pool.SetQueueFamily(2)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		overlap bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			call := func() error {
				mu.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				mu.Unlock()
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			}
			if i%2 == 0 {
				_ = pool.SafeQueueCall(0, call)
			} else {
				_ = pool.SafeDeviceCall(call)
			}
		}(i)
	}
	wg.Wait()
	assert.False(t, overlap)
	assert.NoError(t, pool.SafeQueueCall(5, func() error { return nil }))
}
