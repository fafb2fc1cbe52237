package testbed

import (
	"github.com/spaghettifunk/karma/engine"
	"github.com/spaghettifunk/karma/engine/config"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/math"
	"github.com/spaghettifunk/karma/engine/renderer"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

const (
	boxSize  = 48
	boxSpeed = 240.0 // pixels per second
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width, height float64
	x, y          float64
	dx, dy        float64
	hue           float64
}

// NewTestGame bounces a square around the window and paints a border
// around it, which is enough to exercise every frame of the loop.
func NewTestGame(cfg *config.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(cfg),
			State: &gameState{
				dx: boxSpeed,
				dy: boxSpeed * 0.6,
			},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogDebug("Game Initialize fn....")
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	if s.width == 0 || s.height == 0 {
		return nil
	}
	s.x += s.dx * deltaTime
	s.y += s.dy * deltaTime

	maxX := math.Clamp(s.width-boxSize, 0, s.width)
	maxY := math.Clamp(s.height-boxSize, 0, s.height)
	if s.x <= 0 || s.x >= maxX {
		s.dx = -s.dx
	}
	if s.y <= 0 || s.y >= maxY {
		s.dy = -s.dy
	}
	s.x = math.Clamp(s.x, 0, maxX)
	s.y = math.Clamp(s.y, 0, maxY)

	s.hue += deltaTime * 0.25
	if s.hue >= 1 {
		s.hue -= 1
	}
	return nil
}

func (g *TestGame) Render(packet *renderer.RenderPacket, deltaTime float64) error {
	s := g.state()
	if s.width == 0 || s.height == 0 {
		return nil
	}
	box := gpu.Rect{X: int32(s.x), Y: int32(s.y), Width: boxSize, Height: boxSize}
	border := gpu.Rect{X: box.X - 2, Y: box.Y - 2, Width: boxSize + 4, Height: boxSize + 4}
	if border.X < 0 {
		border.X = 0
	}
	if border.Y < 0 {
		border.Y = 0
	}
	packet.Drawables = append(packet.Drawables,
		renderer.ClearRect{Rect: border, Color: gpu.Color{R: 1, G: 1, B: 1, A: 1}},
		renderer.ClearRect{Rect: box, Color: hueColor(s.hue)},
	)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = float64(width), float64(height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("Game Shutdown fn....")
	return nil
}

// hueColor maps h in [0, 1) to a fully saturated color.
func hueColor(h float64) gpu.Color {
	channel := func(offset float64) float32 {
		v := h*6 + offset
		for v >= 6 {
			v -= 6
		}
		// Triangle wave over the six hue sectors.
		d := v - 3
		if d < 0 {
			d = -d
		}
		return float32(math.Clamp(d-1, 0, 1))
	}
	return gpu.Color{R: channel(0), G: channel(4), B: channel(2), A: 1}
}
