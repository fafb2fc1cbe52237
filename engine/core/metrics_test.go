package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverageAndFPS(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)

	// 101 frames of 10ms crosses one second.
	for i := 0; i < 80; i++ {
		m.Update(0.010)
	}
	fps, avg := m.Frame()
	assert.Equal(t, 100.0, fps)
	assert.InDelta(t, 10.0, avg, 1e-9)
}

func TestClockElapsed(t *testing.T) {
	now := time.Unix(100, 0)
	c := &Clock{now: func() time.Time { return now }}

	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	now = now.Add(1500 * time.Millisecond)
	c.Update()
	assert.InDelta(t, 1.5, c.Elapsed(), 1e-9)

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.InDelta(t, 1.5, c.Elapsed(), 1e-9)
}

func TestMetricsLastFrameTime(t *testing.T) {
	m := NewMetrics()
	m.Update(0.004)
	m.Update(0.025)
	assert.InDelta(t, 25.0, m.LastFrameTime(), 1e-9)
}
