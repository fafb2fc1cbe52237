package testbed

import (
	"testing"

	"github.com/spaghettifunk/karma/engine/config"
	"github.com/spaghettifunk/karma/engine/renderer"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxStaysInsideWindow(t *testing.T) {
	g := NewTestGame(config.Default())
	require.NoError(t, g.OnResize(200, 100))

	for i := 0; i < 500; i++ {
		require.NoError(t, g.Update(1.0/30.0))
		s := g.state()
		assert.GreaterOrEqual(t, s.x, 0.0)
		assert.LessOrEqual(t, s.x, 200.0-boxSize)
		assert.GreaterOrEqual(t, s.y, 0.0)
		assert.LessOrEqual(t, s.y, 100.0-boxSize)
	}
}

func TestRenderSkipsZeroSizedWindow(t *testing.T) {
	g := NewTestGame(config.Default())
	packet := &renderer.RenderPacket{}
	require.NoError(t, g.Render(packet, 0))
	assert.Empty(t, packet.Drawables)

	require.NoError(t, g.OnResize(640, 480))
	require.NoError(t, g.Render(packet, 0))
	assert.Len(t, packet.Drawables, 2)
}

func TestHueColor(t *testing.T) {
	assert.Equal(t, gpu.Color{R: 1, A: 1}, hueColor(0))
	c := hueColor(1.0 / 3.0)
	assert.InDelta(t, 0, c.R, 1e-5)
	assert.InDelta(t, 1, c.G, 1e-5)
	assert.InDelta(t, 0, c.B, 1e-5)
}
