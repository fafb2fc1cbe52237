package overlay

import (
	"github.com/spaghettifunk/karma/engine/containers"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/frame"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

const (
	statsMargin    = 8
	statsHeight    = 64
	statsBarWidth  = 3
	statsBudget60  = 1000.0 / 60.0
	statsBudget30  = 1000.0 / 30.0
	defaultSamples = 120
)

var (
	statsBackground = gpu.Color{R: 0.05, G: 0.05, B: 0.05, A: 0.8}
	statsGood       = gpu.Color{R: 0.2, G: 0.8, B: 0.3, A: 1}
	statsSlow       = gpu.Color{R: 0.9, G: 0.75, B: 0.1, A: 1}
	statsBad        = gpu.Color{R: 0.9, G: 0.2, B: 0.2, A: 1}
)

// Stats draws a frame time bar graph in the top left corner.
type Stats struct {
	metrics *core.Metrics
	history *containers.Ring[float64]
	visible bool
	extent  gpu.Extent2D
	buffers frameBuffers
}

// NewStats graphs the last samples frame times reported by metrics.
func NewStats(metrics *core.Metrics, samples int) *Stats {
	if samples <= 0 {
		samples = defaultSamples
	}
	s := &Stats{
		metrics: metrics,
		history: containers.NewRing[float64](samples),
		visible: true,
	}
	// Panel plus one bar per sample.
	s.buffers.reserve = uint64(samples+1) * rectBytes
	return s
}

func (s *Stats) Name() string { return "stats" }

func (s *Stats) Visible() bool { return s.visible }

func (s *Stats) SetVisible(visible bool) { s.visible = visible }

func (s *Stats) Attach(ctx frame.OverlayContext) error {
	s.buffers.attach(ctx)
	s.extent = ctx.Extent
	return nil
}

func (s *Stats) SwapchainRecreated(ctx frame.OverlayContext) {
	s.extent = ctx.Extent
}

func (s *Stats) Detach(ctx frame.OverlayContext) {
	s.buffers.release(ctx)
}

func (s *Stats) Record(f *frame.OverlayFrame) error {
	s.history.Push(s.metrics.LastFrameTime())
	if !s.visible {
		return nil
	}

	panel := gpu.Rect{
		X:      statsMargin,
		Y:      statsMargin,
		Width:  uint32(s.history.Cap() * statsBarWidth),
		Height: statsHeight,
	}
	groups := s.bars(panel)

	var data []byte
	data = append(data, rectVertices(statsBackground, []gpu.Rect{panel})...)
	for _, g := range groups {
		data = append(data, rectVertices(g.color, g.rects)...)
	}
	buf, err := s.buffers.upload(f, data)
	if err != nil {
		return err
	}

	f.Recorder.BindVertexBuffer(buf, 0)
	f.Recorder.ClearRects(statsBackground, panel)
	for _, g := range groups {
		f.Recorder.ClearRects(g.color, g.rects...)
	}
	return nil
}

type rectGroup struct {
	color gpu.Color
	rects []gpu.Rect
}

// bars scales the history so the slowest frame, or two 30Hz frames at least,
// fills the panel.
func (s *Stats) bars(panel gpu.Rect) []rectGroup {
	top := s.history.Max(func(a, b float64) bool { return a < b })
	if top < 2*statsBudget30 {
		top = 2 * statsBudget30
	}
	good := rectGroup{color: statsGood}
	slow := rectGroup{color: statsSlow}
	bad := rectGroup{color: statsBad}

	s.history.Each(func(i int, ms float64) {
		h := uint32(ms / top * float64(panel.Height))
		if h == 0 {
			return
		}
		bar := gpu.Rect{
			X:      panel.X + int32(i*statsBarWidth),
			Y:      panel.Y + int32(panel.Height-h),
			Width:  statsBarWidth - 1,
			Height: h,
		}
		switch {
		case ms <= statsBudget60:
			good.rects = append(good.rects, bar)
		case ms <= statsBudget30:
			slow.rects = append(slow.rects, bar)
		default:
			bad.rects = append(bad.rects, bar)
		}
	})

	var out []rectGroup
	for _, g := range []rectGroup{good, slow, bad} {
		if len(g.rects) > 0 {
			out = append(out, g)
		}
	}
	return out
}
