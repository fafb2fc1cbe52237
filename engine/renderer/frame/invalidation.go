package frame

import (
	"errors"

	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// HandleStale rebuilds the swapchain for extent. A zero extent only marks
// the loop pending; BeginFrame then skips acquire and present until the
// window has an area again.
func (l *Loop) HandleStale(extent gpu.Extent2D) error {
	l.requireIdle("Loop.HandleStale")

	if extent.IsZero() {
		if !l.pending {
			core.LogInfo("Window minimized, rendering suspended.")
		}
		l.pending = true
		return nil
	}

	idle, err := l.ctx.WaitIdle()
	if err != nil {
		return err
	}
	// All submitted work retired, so every slot fence is signaled.
	for _, s := range l.slots {
		s.fenceObserved = true
		if s.acquireSignaled {
			if err := s.replaceAcquireSemaphore(l.ctx.Device); err != nil {
				return err
			}
		}
	}
	l.imagesInFlight = nil

	sc, err := l.swapchains.CreateOrResize(idle, extent)
	if errors.Is(err, ErrZeroExtent) {
		l.swapchain = l.swapchains.Current()
		l.pending = true
		return nil
	}
	if err != nil {
		l.swapchain = nil
		return err
	}
	l.useSwapchain(sc)
	l.pending = false

	ctx := l.overlayContext()
	for _, o := range l.overlays {
		o.overlay.SwapchainRecreated(ctx)
	}
	return nil
}
