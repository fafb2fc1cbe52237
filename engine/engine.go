package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/karma/engine/config"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/platform"
	"github.com/spaghettifunk/karma/engine/renderer"
	"github.com/spaghettifunk/karma/engine/renderer/frame"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"github.com/spaghettifunk/karma/engine/renderer/headless"
	"github.com/spaghettifunk/karma/engine/renderer/overlay"
	"github.com/spaghettifunk/karma/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	statsSamples      = 120
	suspendedSleep    = 10 * time.Millisecond
	reportingInterval = 5.0
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	cfg          *config.Config
	configPath   string
	runID        uuid.UUID

	events   *core.EventBus
	window   Window
	watcher  *config.Watcher
	backend  *frame.Backend
	renderer *renderer.Renderer
	stats    *overlay.Stats
	text     *overlay.Text

	isRunning   atomic.Bool
	isSuspended bool
	width       uint32
	height      uint32
	clock       *core.Clock
	metrics     *core.Metrics
	lastTime    float64
	frameCount  uint64
}

// New prepares an engine for g. configPath is watched for changes when not
// empty.
func New(g *Game, cfg *config.Config, configPath string) (*Engine, error) {
	if g == nil || cfg == nil {
		return nil, core.ErrNotInitialized
	}
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = NewApplicationConfig(cfg)
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		cfg:          cfg,
		configPath:   configPath,
		runID:        uuid.New(),
		events:       core.NewEventBus(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}
	e.isRunning.Store(true)
	return e, nil
}

func (e *Engine) Stage() Stage { return e.currentStage }

// Events is the bus the platform and the game fire into.
func (e *Engine) Events() *core.EventBus { return e.events }

func (e *Engine) Renderer() *renderer.Renderer { return e.renderer }

func (e *Engine) FrameCount() uint64 { return e.frameCount }

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageBooting
	app := e.gameInstance.ApplicationConfig
	core.SetLogLevel(app.LogLevel)
	core.LogInfo("run %s: starting %s with the %s backend", e.runID, app.Name, e.cfg.Renderer.Backend)

	instance, err := e.createWindow(app)
	if err != nil {
		return err
	}
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	e.backend = frame.NewBackend(instance, e.window, frame.BackendConfig{
		Loop: frame.LoopConfig{
			FramesInFlight: e.cfg.Renderer.FramesInFlight,
			Swapchain: frame.SwapchainConfig{
				PreferredFormats: preferredFormats(e.cfg.Renderer.PreferredFormats),
				Uncapped:         e.cfg.Renderer.Uncapped,
				ImageCount:       e.cfg.Renderer.ImageCount,
			},
			ClearColor: gpu.ColorFromSlice(e.cfg.Renderer.ClearColor),
		},
	})
	e.renderer = renderer.New(e.backend)
	if err := e.renderer.Initialize(app.Name, e.width, e.height); err != nil {
		core.LogError("failed to initialize renderer: %s", err)
		e.abortInitialize()
		return err
	}

	e.stats = overlay.NewStats(e.metrics, statsSamples)
	e.stats.SetVisible(e.cfg.Overlay.Stats)
	e.text = overlay.NewText(e.cfg.Overlay.TextLines, e.cfg.Overlay.Scale)
	e.text.SetVisible(e.cfg.Overlay.Text)
	if err := e.attachOverlays(e.stats, e.text); err != nil {
		return err
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_CONFIG_RELOADED, e, e.onConfigReloaded)

	if e.configPath != "" {
		w, err := config.NewWatcher(e.configPath)
		if err != nil {
			core.LogWarn("configuration hot reload disabled: %s", err)
		} else {
			e.watcher = w
			e.watcher.Start()
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			core.LogError("Game failed to initialize.")
			return err
		}
	}
	e.currentStage = EngineStageInitialized

	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	return nil
}

// attachOverlays releases the renderer and the window when any overlay fails
// to attach.
func (e *Engine) attachOverlays(overlays ...frame.Overlay) error {
	for _, o := range overlays {
		if _, err := e.backend.AttachOverlay(o); err != nil {
			core.LogError("failed to attach overlay '%s': %s", o.Name(), err)
			e.abortInitialize()
			return err
		}
	}
	return nil
}

func (e *Engine) abortInitialize() {
	_ = e.renderer.Shutdown()
	_ = e.window.Shutdown()
}

func (e *Engine) createWindow(app *ApplicationConfig) (gpu.Instance, error) {
	switch e.cfg.Renderer.Backend {
	case config.BackendHeadless:
		e.window = newOffscreenWindow(e.events, app.StartWidth, app.StartHeight)
		return headless.NewInstance(), nil
	case config.BackendVulkan:
		p := platform.New(e.events)
		if err := p.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
			return nil, err
		}
		instance, err := vulkan.NewInstance(vulkan.InstanceConfig{
			AppName:    app.Name,
			Debug:      e.cfg.Renderer.Validation,
			Extensions: p.GetRequiredExtensionNames(),
			ProcAddr:   p.VulkanProcAddr(),
		})
		if err != nil {
			_ = p.Shutdown()
			return nil, err
		}
		e.window = p
		return instance, nil
	default:
		return nil, fmt.Errorf("unknown renderer backend %q", e.cfg.Renderer.Backend)
	}
}

func preferredFormats(names []string) []gpu.Format {
	formats := make([]gpu.Format, 0, len(names))
	for _, name := range names {
		f, ok := gpu.ParseFormat(name)
		if !ok {
			core.LogWarn("ignoring unknown surface format `%s`", name)
			continue
		}
		formats = append(formats, f)
	}
	return formats
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var changes <-chan *config.Config
	if e.watcher != nil {
		changes = e.watcher.Changes()
	}
	var runningTime float64

	for e.isRunning.Load() {
		if !e.window.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		select {
		case next, ok := <-changes:
			if ok {
				e.events.Fire(core.EventContext{Type: core.EVENT_CODE_CONFIG_RELOADED, Data: next})
			} else {
				changes = nil
			}
		default:
		}

		if e.isSuspended {
			time.Sleep(suspendedSleep)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down.")
				e.isRunning.Store(false)
				return err
			}
		}

		packet := &renderer.RenderPacket{DeltaTime: delta}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(packet, delta); err != nil {
				core.LogError("Game render failed, shutting down.")
				e.isRunning.Store(false)
				return err
			}
		}

		if err := e.renderer.DrawFrame(packet); err != nil {
			e.isRunning.Store(false)
			return err
		}

		frameElapsed := time.Since(frameStart).Seconds()
		e.metrics.Update(frameElapsed)
		e.frameCount++

		runningTime += delta
		if runningTime >= reportingInterval {
			runningTime = 0
			drawn, skipped := e.renderer.Stats()
			core.LogDebug("run %s: %.1f fps, %.3f ms/frame, %d drawn, %d skipped",
				e.runID, e.metrics.FPS(), e.metrics.FrameTime(), drawn, skipped)
		}

		if limit := e.gameInstance.ApplicationConfig.MaxFrames; limit > 0 && e.frameCount >= limit {
			core.LogInfo("run %s: reached %d frames, stopping.", e.runID, limit)
			e.isRunning.Store(false)
		}

		e.lastTime = currentTime
	}
	return nil
}

// Quit stops the run loop after the current frame. It is safe to call from
// any goroutine.
func (e *Engine) Quit() {
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return core.ErrAlreadyShutdown
	}
	e.currentStage = EngineStageShuttingDown

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.gameInstance.FnShutdown != nil {
		keep(e.gameInstance.FnShutdown())
	}
	if e.watcher != nil {
		keep(e.watcher.Close())
	}
	if e.renderer != nil {
		keep(e.renderer.Shutdown())
	}
	e.events.Shutdown()
	if e.window != nil {
		keep(e.window.Shutdown())
	}
	drawn, skipped := uint64(0), uint64(0)
	if e.renderer != nil {
		drawn, skipped = e.renderer.Stats()
	}
	core.LogInfo("run %s: shut down after %d frames (%d skipped).", e.runID, drawn, skipped)
	return firstErr
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	case core.KEY_F1:
		e.stats.SetVisible(!e.stats.Visible())
		core.LogDebug("stats overlay visible: %t", e.stats.Visible())
		return true
	case core.KEY_F2:
		e.text.SetVisible(!e.text.Visible())
		core.LogDebug("text overlay visible: %t", e.text.Visible())
		return true
	case core.KEY_V:
		e.cfg.Renderer.Uncapped = !e.cfg.Renderer.Uncapped
		e.backend.SetUncapped(e.cfg.Renderer.Uncapped)
		core.LogInfo("uncapped presentation: %t", e.cfg.Renderer.Uncapped)
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	width := se.WindowWidth
	height := se.WindowHeight
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	if err := e.renderer.OnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	return true
}

// onConfigReloaded applies the keys that can change at runtime and warns
// about the rest.
func (e *Engine) onConfigReloaded(context core.EventContext) bool {
	next, ok := context.Data.(*config.Config)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	merged, rejected := e.cfg.Reloadable(next)
	for _, key := range rejected {
		core.LogWarn("`%s` changed on disk, restart to apply it", key)
	}

	if merged.Logging.Level != e.cfg.Logging.Level {
		core.SetLogLevel(merged.Logging.Level)
	}
	if merged.Renderer.Uncapped != e.cfg.Renderer.Uncapped {
		e.backend.SetUncapped(merged.Renderer.Uncapped)
	}
	e.backend.SetClearColor(gpu.ColorFromSlice(merged.Renderer.ClearColor))
	e.stats.SetVisible(merged.Overlay.Stats)
	e.text.SetVisible(merged.Overlay.Text)
	e.text.SetLines(merged.Overlay.TextLines)
	e.text.SetScale(merged.Overlay.Scale)

	e.cfg = merged
	core.LogInfo("run %s: configuration reloaded", e.runID)
	return true
}
