package frame

import (
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"github.com/spaghettifunk/karma/engine/renderer/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type harness struct {
	inst   *headless.Instance
	window *headless.Window
	ctx    *DeviceContext
	dev    *headless.Device
	loop   *Loop
}

type harnessConfig struct {
	framesInFlight int
	images         uint32
	width, height  int
	uncapped       bool
}

// exactImages makes the surface hand out exactly n images.
func exactImages(n uint32) headless.AdapterConfig {
	a := headless.DefaultAdapter()
	a.MinImageCount = 1
	a.MaxImageCount = n
	return a
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	if cfg.width == 0 && cfg.height == 0 {
		cfg.width, cfg.height = 640, 480
	}
	var opts []headless.Option
	if cfg.images > 0 {
		opts = append(opts, headless.WithAdapters(exactImages(cfg.images)))
	}
	inst := headless.NewInstance(opts...)
	window := headless.NewWindow(cfg.width, cfg.height)

	ctx, err := CreateDevice(inst, window, Requirements{})
	require.NoError(t, err)
	loop, err := NewLoop(ctx, window, LoopConfig{
		FramesInFlight: cfg.framesInFlight,
		Swapchain: SwapchainConfig{
			PreferredFormats: []gpu.Format{gpu.FormatB8G8R8A8Srgb},
			Uncapped:         cfg.uncapped,
			ImageCount:       cfg.images,
		},
		ClearColor: gpu.Color{B: 0.2, A: 1},
	})
	require.NoError(t, err)
	return &harness{inst: inst, window: window, ctx: ctx, dev: inst.Device(), loop: loop}
}

// close tears everything down; the headless driver fails on leaks or double
// destroys.
func (h *harness) close(t *testing.T) {
	t.Helper()
	require.NoError(t, h.loop.Shutdown())
	h.ctx.Destroy()
	h.inst.Destroy()
	assert.True(t, h.inst.Destroyed())
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, h.loop.Tick(nil))
}

func (h *harness) count(op headless.Op) int {
	return len(h.dev.EventsOf(op))
}

func requireInvariant(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected an invariant violation")
		err, ok := r.(*gpu.Error)
		require.True(t, ok, "unexpected panic %v", r)
		assert.Equal(t, gpu.KindInvariant, err.Kind)
	}()
	fn()
}
