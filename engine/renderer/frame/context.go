package frame

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

var ErrNoSuitableAdapter = errors.New("no adapter meets the requirements")

// Requirements lists what an adapter must provide on top of graphics and
// present queues.
type Requirements struct {
	Extensions []string
}

// DeviceContext owns the logical device and the surface. It is created once
// and destroyed after everything built on it.
type DeviceContext struct {
	Instance       gpu.Instance
	Adapter        gpu.Adapter
	AdapterInfo    gpu.AdapterInfo
	Device         gpu.Device
	Surface        gpu.Surface
	GraphicsFamily uint32
	PresentFamily  uint32
	GraphicsQueue  gpu.Queue
	PresentQueue   gpu.Queue
	Support        gpu.SurfaceSupport

	// Counts queue submissions; an IdleToken is only valid while it is unchanged.
	submissions uint64
	destroyed   bool
}

// IdleToken proves the device was idle at a point in time. It goes stale as
// soon as anything is submitted.
type IdleToken struct {
	epoch uint64
	valid bool
}

// CreateDevice picks the first adapter, in enumeration order, that has a
// graphics queue, a queue able to present to window's surface, the required
// extensions and at least one surface format and present mode.
func CreateDevice(instance gpu.Instance, window gpu.SurfaceSource, req Requirements) (*DeviceContext, error) {
	surface, err := instance.CreateSurface(window)
	if err != nil {
		return nil, err
	}
	core.LogDebug("surface created")

	ctx, err := selectAdapter(instance, surface, req)
	if err != nil {
		instance.DestroySurface(surface)
		return nil, err
	}

	desc := gpu.DeviceDesc{
		GraphicsFamily: ctx.GraphicsFamily,
		PresentFamily:  ctx.PresentFamily,
		Extensions:     requiredExtensions(req),
	}
	device, err := instance.CreateDevice(ctx.Adapter, desc)
	if err != nil {
		instance.DestroySurface(surface)
		return nil, fmt.Errorf("failed to create logical device on '%s': %w", ctx.AdapterInfo.Name, err)
	}
	ctx.Device = device
	ctx.GraphicsQueue = device.Queue(ctx.GraphicsFamily)
	ctx.PresentQueue = device.Queue(ctx.PresentFamily)

	core.LogInfo("Selected device: '%s' (%s).", ctx.AdapterInfo.Name, ctx.AdapterInfo.Type)
	core.LogDebug("Graphics Family Index: %d", ctx.GraphicsFamily)
	core.LogDebug("Present Family Index:  %d", ctx.PresentFamily)
	return ctx, nil
}

func requiredExtensions(req Requirements) []string {
	exts := []string{gpu.ExtensionSwapchain}
	for _, e := range req.Extensions {
		if e != gpu.ExtensionSwapchain {
			exts = append(exts, e)
		}
	}
	return exts
}

func selectAdapter(instance gpu.Instance, surface gpu.Surface, req Requirements) (*DeviceContext, error) {
	adapters, err := instance.Adapters()
	if err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		core.LogError("No devices which support Vulkan were found.")
		return nil, gpu.Fatal("CreateDevice", ErrNoSuitableAdapter)
	}

	required := requiredExtensions(req)
	for _, adapter := range adapters {
		info := instance.AdapterInfo(adapter)
		ctx, reason, err := meetsRequirements(instance, adapter, surface, required)
		if err != nil {
			return nil, err
		}
		if ctx == nil {
			core.LogInfo("Skipping device '%s': %s.", info.Name, reason)
			continue
		}
		ctx.AdapterInfo = info
		return ctx, nil
	}
	core.LogError("No physical devices were found which meet the requirements.")
	return nil, gpu.Fatal("CreateDevice", ErrNoSuitableAdapter)
}

func meetsRequirements(instance gpu.Instance, adapter gpu.Adapter, surface gpu.Surface, required []string) (*DeviceContext, string, error) {
	families, err := instance.QueueFamilies(adapter, surface)
	if err != nil {
		return nil, "", err
	}

	graphics, present := -1, -1
	for _, f := range families {
		if f.Graphics && graphics < 0 {
			graphics = int(f.Index)
		}
		// Prefer presenting from the graphics family.
		if f.Present && (present < 0 || (f.Graphics && int(f.Index) == graphics)) {
			present = int(f.Index)
		}
	}
	if graphics < 0 {
		return nil, "no graphics queue", nil
	}
	if present < 0 {
		return nil, "no queue can present to the surface", nil
	}

	available, err := instance.DeviceExtensions(adapter)
	if err != nil {
		return nil, "", err
	}
	for _, ext := range required {
		found := false
		for _, have := range available {
			if have == ext {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Sprintf("required extension '%s' not found", ext), nil
		}
	}

	support, err := instance.SurfaceSupport(adapter, surface)
	if err != nil {
		return nil, "", err
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, "required swapchain support not present", nil
	}

	return &DeviceContext{
		Instance:       instance,
		Adapter:        adapter,
		Surface:        surface,
		GraphicsFamily: uint32(graphics),
		PresentFamily:  uint32(present),
		Support:        support,
	}, "", nil
}

// QuerySupport refreshes the surface capabilities, formats and present modes.
func (c *DeviceContext) QuerySupport() (gpu.SurfaceSupport, error) {
	support, err := c.Instance.SurfaceSupport(c.Adapter, c.Surface)
	if err != nil {
		return gpu.SurfaceSupport{}, err
	}
	c.Support = support
	return support, nil
}

// WaitIdle blocks until the device finished all submitted work.
func (c *DeviceContext) WaitIdle() (IdleToken, error) {
	if err := c.Device.WaitIdle(); err != nil {
		return IdleToken{}, err
	}
	return IdleToken{epoch: c.submissions, valid: true}, nil
}

// assertIdle fails loudly when tok does not prove the device is idle now.
func (c *DeviceContext) assertIdle(op string, tok IdleToken) {
	if !tok.valid {
		gpu.Invariant(op, "called without waiting for the device to be idle")
	}
	if tok.epoch != c.submissions {
		gpu.Invariant(op, "%d submission(s) happened after the device was idle", c.submissions-tok.epoch)
	}
}

func (c *DeviceContext) Submit(info gpu.SubmitInfo) error {
	c.submissions++
	return c.Device.Submit(c.GraphicsQueue, info)
}

func (c *DeviceContext) Present(swapchain gpu.Swapchain, imageIndex ImageIndex, wait gpu.Semaphore) error {
	return c.Device.Present(c.PresentQueue, swapchain, uint32(imageIndex), wait)
}

// Destroy releases the device and the surface. The instance belongs to the
// caller.
func (c *DeviceContext) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.Device.Destroy()
	c.Instance.DestroySurface(c.Surface)
	core.LogDebug("device context destroyed")
}

func (c *DeviceContext) String() string {
	return fmt.Sprintf("%s (%s) graphics=%d present=%d", c.AdapterInfo.Name, c.AdapterInfo.Type, c.GraphicsFamily, c.PresentFamily)
}
