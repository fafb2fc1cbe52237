package engine

import (
	"errors"
	"io"
	"testing"

	"github.com/spaghettifunk/karma/engine/config"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer"
	"github.com/spaghettifunk/karma/engine/renderer/frame"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headlessConfig(maxFrames uint64) *config.Config {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendHeadless
	cfg.Application.Width = 320
	cfg.Application.Height = 200
	cfg.Application.MaxFrames = maxFrames
	cfg.Logging.Level = "error"
	return cfg
}

type recordingGame struct {
	updates  int
	renders  int
	resizes  [][2]uint32
	shutdown bool
	onUpdate func(frame int) error
}

func (r *recordingGame) game() *Game {
	return &Game{
		FnInitialize: func() error { return nil },
		FnUpdate: func(float64) error {
			r.updates++
			if r.onUpdate != nil {
				return r.onUpdate(r.updates)
			}
			return nil
		},
		FnRender: func(packet *renderer.RenderPacket, _ float64) error {
			r.renders++
			packet.Drawables = append(packet.Drawables, renderer.ClearRect{
				Rect:  gpu.Rect{Width: 8, Height: 8},
				Color: gpu.Color{R: 1, A: 1},
			})
			return nil
		},
		FnOnResize: func(w, h uint32) error {
			r.resizes = append(r.resizes, [2]uint32{w, h})
			return nil
		},
		FnShutdown: func() error {
			r.shutdown = true
			return nil
		},
	}
}

func newHeadlessEngine(t *testing.T, rg *recordingGame, maxFrames uint64) *Engine {
	t.Helper()
	core.SetLogOutput(io.Discard)
	e, err := New(rg.game(), headlessConfig(maxFrames), "")
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	return e
}

func TestHeadlessRunStopsAfterMaxFrames(t *testing.T) {
	rg := &recordingGame{}
	e := newHeadlessEngine(t, rg, 6)
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.Equal(t, [][2]uint32{{320, 200}}, rg.resizes)

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(6), e.FrameCount())
	assert.Equal(t, 6, rg.updates)
	assert.Equal(t, 6, rg.renders)

	drawn, skipped := e.Renderer().Stats()
	assert.Equal(t, uint64(6), drawn)
	assert.Zero(t, skipped)

	require.NoError(t, e.Shutdown())
	assert.True(t, rg.shutdown)
	assert.ErrorIs(t, e.Shutdown(), core.ErrAlreadyShutdown)
}

func TestResizeSkipsOneFrame(t *testing.T) {
	rg := &recordingGame{}
	e := newHeadlessEngine(t, rg, 8)
	window := e.window.(*offscreenWindow)
	rg.onUpdate = func(frame int) error {
		if frame == 3 {
			window.Resize(640, 480)
		}
		return nil
	}

	require.NoError(t, e.Run())
	drawn, skipped := e.Renderer().Stats()
	assert.Equal(t, uint64(1), skipped)
	assert.Equal(t, uint64(7), drawn)
	assert.Equal(t, [2]uint32{640, 480}, rg.resizes[len(rg.resizes)-1])

	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(640), w)
	assert.Equal(t, uint32(480), h)
	require.NoError(t, e.Shutdown())
}

func TestMinimizeSuspendsUntilRestored(t *testing.T) {
	rg := &recordingGame{}
	e := newHeadlessEngine(t, rg, 0)
	window := e.window.(*offscreenWindow)

	window.Resize(0, 0)
	assert.True(t, e.isSuspended)
	assert.Len(t, rg.resizes, 1)

	window.Resize(320, 200)
	assert.False(t, e.isSuspended)
	assert.Equal(t, [2]uint32{320, 200}, rg.resizes[len(rg.resizes)-1])
	require.NoError(t, e.Shutdown())
}

func TestKeysToggleOverlaysAndQuit(t *testing.T) {
	rg := &recordingGame{}
	e := newHeadlessEngine(t, rg, 0)

	press := func(code core.KeyCode) {
		e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, Data: &core.KeyEvent{KeyCode: code}})
	}

	require.True(t, e.stats.Visible())
	press(core.KEY_F1)
	assert.False(t, e.stats.Visible())
	press(core.KEY_F2)
	assert.False(t, e.text.Visible())

	press(core.KEY_V)
	assert.True(t, e.cfg.Renderer.Uncapped)

	press(core.KEY_ESCAPE)
	assert.False(t, e.isRunning.Load())
	require.NoError(t, e.Run())
	assert.Zero(t, e.FrameCount())
	require.NoError(t, e.Shutdown())
}

func TestConfigReloadAppliesRuntimeKeys(t *testing.T) {
	rg := &recordingGame{}
	e := newHeadlessEngine(t, rg, 0)

	next := headlessConfig(0)
	next.Renderer.FramesInFlight = 3
	next.Renderer.ClearColor = []float32{1, 0, 0, 1}
	next.Overlay.Stats = false
	next.Overlay.TextLines = []string{"reloaded"}

	e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_CONFIG_RELOADED, Data: next})
	assert.False(t, e.stats.Visible())
	assert.Equal(t, 2, e.cfg.Renderer.FramesInFlight)
	assert.Equal(t, []float32{1, 0, 0, 1}, e.cfg.Renderer.ClearColor)
	assert.Equal(t, []string{"reloaded"}, e.cfg.Overlay.TextLines)
	require.NoError(t, e.Shutdown())
}

func TestGameErrorsStopTheRun(t *testing.T) {
	boom := errors.New("boom")
	rg := &recordingGame{onUpdate: func(frame int) error {
		if frame == 2 {
			return boom
		}
		return nil
	}}
	e := newHeadlessEngine(t, rg, 0)
	assert.ErrorIs(t, e.Run(), boom)
	assert.Equal(t, uint64(1), e.FrameCount())
	require.NoError(t, e.Shutdown())
}

type brokenOverlay struct{ err error }

func (o brokenOverlay) Name() string                            { return "broken" }
func (o brokenOverlay) Attach(frame.OverlayContext) error       { return o.err }
func (o brokenOverlay) SwapchainRecreated(frame.OverlayContext) {}
func (o brokenOverlay) Record(*frame.OverlayFrame) error        { return nil }
func (o brokenOverlay) Detach(frame.OverlayContext)             {}

func TestOverlayAttachFailureReleasesRendererAndWindow(t *testing.T) {
	rg := &recordingGame{}
	e := newHeadlessEngine(t, rg, 0)
	window := e.window.(*offscreenWindow)

	boom := errors.New("no overlay memory")
	require.ErrorIs(t, e.attachOverlays(brokenOverlay{err: boom}), boom)
	assert.True(t, window.closed)
	assert.ErrorIs(t, e.backend.BeginFrame(0), core.ErrAlreadyShutdown)
	require.NoError(t, e.Shutdown())
}

func TestUnknownBackend(t *testing.T) {
	core.SetLogOutput(io.Discard)
	cfg := headlessConfig(0)
	cfg.Renderer.Backend = "opengl"
	e, err := New((&recordingGame{}).game(), cfg, "")
	require.NoError(t, err)
	assert.Error(t, e.Initialize())
	assert.NoError(t, e.Shutdown())
}

func TestPreferredFormatsSkipsUnknown(t *testing.T) {
	core.SetLogOutput(io.Discard)
	got := preferredFormats([]string{"B8G8R8A8_SRGB", "NOPE", "b8g8r8a8_unorm"})
	assert.Equal(t, []gpu.Format{gpu.FormatB8G8R8A8Srgb, gpu.FormatB8G8R8A8Unorm}, got)
}
