package renderer

import "github.com/spaghettifunk/karma/engine/renderer/gpu"

// Backend drives frames on one window. BeginFrame returns
// core.ErrSwapchainBooting when the frame has to be skipped.
type Backend interface {
	Initialize(appName string, width, height uint32) error
	Shutdown() error
	Resized(width, height uint32) error
	BeginFrame(deltaTime float64) error
	SubmitDrawable(d Drawable) error
	EndFrame(deltaTime float64) error
}

// Drawable records its commands into the frame being built.
type Drawable interface {
	Draw(rec gpu.Recorder) error
}

// DrawableFunc adapts a function to Drawable.
type DrawableFunc func(rec gpu.Recorder) error

func (f DrawableFunc) Draw(rec gpu.Recorder) error {
	return f(rec)
}
