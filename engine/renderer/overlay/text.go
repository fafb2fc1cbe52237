package overlay

import (
	"image"

	"github.com/spaghettifunk/karma/engine/renderer/frame"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
	"golang.org/x/exp/slices"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const textMargin = 8

var (
	textForeground = gpu.Color{R: 0.95, G: 0.95, B: 0.95, A: 1}
	textBackground = gpu.Color{R: 0, G: 0, B: 0, A: 0.6}
)

// Text draws a few lines of fixed width text in the bottom left corner. The
// glyphs of basicfont.Face7x13 are turned into horizontal runs of pixels,
// each cleared as one rectangle.
type Text struct {
	face    font.Face
	lines   []string
	scale   int
	visible bool
	extent  gpu.Extent2D
	buffers frameBuffers

	// Runs relative to the panel origin, rebuilt when the text changes.
	runs  []gpu.Rect
	size  image.Point
	dirty bool
}

func NewText(lines []string, scale int) *Text {
	if scale < 1 {
		scale = 1
	}
	return &Text{
		face:    basicfont.Face7x13,
		lines:   append([]string(nil), lines...),
		scale:   scale,
		visible: true,
		dirty:   true,
	}
}

func (t *Text) Name() string { return "text" }

func (t *Text) Visible() bool { return t.visible }

func (t *Text) SetVisible(visible bool) { t.visible = visible }

func (t *Text) SetLines(lines []string) {
	if slices.Equal(t.lines, lines) {
		return
	}
	t.lines = append(t.lines[:0:0], lines...)
	t.dirty = true
}

func (t *Text) SetScale(scale int) {
	if scale < 1 {
		scale = 1
	}
	if scale != t.scale {
		t.scale = scale
		t.dirty = true
	}
}

func (t *Text) Attach(ctx frame.OverlayContext) error {
	t.buffers.attach(ctx)
	t.extent = ctx.Extent
	return nil
}

func (t *Text) SwapchainRecreated(ctx frame.OverlayContext) {
	t.extent = ctx.Extent
}

func (t *Text) Detach(ctx frame.OverlayContext) {
	t.buffers.release(ctx)
}

func (t *Text) Record(f *frame.OverlayFrame) error {
	if !t.visible || len(t.lines) == 0 {
		return nil
	}
	if t.dirty {
		t.runs, t.size = rasterize(t.face, t.lines, t.scale)
		t.dirty = false
	}

	origin := image.Pt(textMargin, int(f.Extent.Height)-t.size.Y-textMargin)
	panel := gpu.Rect{
		X:      int32(origin.X - t.scale*2),
		Y:      int32(origin.Y - t.scale*2),
		Width:  uint32(t.size.X + t.scale*4),
		Height: uint32(t.size.Y + t.scale*4),
	}
	glyphs := make([]gpu.Rect, len(t.runs))
	for i, r := range t.runs {
		r.X += int32(origin.X)
		r.Y += int32(origin.Y)
		glyphs[i] = r
	}

	data := rectVertices(textBackground, []gpu.Rect{panel})
	data = append(data, rectVertices(textForeground, glyphs)...)
	buf, err := t.buffers.upload(f, data)
	if err != nil {
		return err
	}
	f.Recorder.BindVertexBuffer(buf, 0)
	f.Recorder.ClearRects(textBackground, panel)
	f.Recorder.ClearRects(textForeground, glyphs...)
	return nil
}

// rasterize lays out lines with face and returns the lit pixel runs, scaled,
// together with the size of the text block.
func rasterize(face font.Face, lines []string, scale int) ([]gpu.Rect, image.Point) {
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()

	var runs []gpu.Rect
	width := 0
	for row, line := range lines {
		dot := fixed.P(0, row*lineHeight+ascent)
		for _, r := range line {
			dr, mask, mp, advance, ok := face.Glyph(dot, r)
			if !ok {
				dr, mask, mp, advance, _ = face.Glyph(dot, '?')
			}
			if mask != nil {
				runs = appendRuns(runs, dr, mask, mp, scale)
			}
			dot.X += advance
		}
		if w := dot.X.Ceil(); w > width {
			width = w
		}
	}
	return runs, image.Pt(width*scale, len(lines)*lineHeight*scale)
}

func appendRuns(runs []gpu.Rect, dr image.Rectangle, mask image.Image, mp image.Point, scale int) []gpu.Rect {
	for y := dr.Min.Y; y < dr.Max.Y; y++ {
		start := -1
		for x := dr.Min.X; x <= dr.Max.X; x++ {
			lit := false
			if x < dr.Max.X {
				_, _, _, a := mask.At(mp.X+x-dr.Min.X, mp.Y+y-dr.Min.Y).RGBA()
				lit = a >= 0x8000
			}
			switch {
			case lit && start < 0:
				start = x
			case !lit && start >= 0:
				runs = append(runs, gpu.Rect{
					X:      int32(start * scale),
					Y:      int32(y * scale),
					Width:  uint32((x - start) * scale),
					Height: uint32(scale),
				})
				start = -1
			}
		}
	}
	return runs
}
