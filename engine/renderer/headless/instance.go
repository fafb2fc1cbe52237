package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/engine/renderer/gpu"
)

// AdapterConfig describes one simulated physical device.
type AdapterConfig struct {
	Info           gpu.AdapterInfo
	QueueFamilies  []gpu.QueueFamily
	Extensions     []string
	Formats        []gpu.SurfaceFormat
	PresentModes   []gpu.PresentMode
	MinImageCount  uint32
	MaxImageCount  uint32
	MinImageExtent gpu.Extent2D
	MaxImageExtent gpu.Extent2D
}

// DefaultAdapter is a discrete GPU with one graphics+present family,
// FIFO/MAILBOX/IMMEDIATE presentation and 2..8 swapchain images.
func DefaultAdapter() AdapterConfig {
	return AdapterConfig{
		Info: gpu.AdapterInfo{
			Name:       "Karma Headless GPU",
			Type:       gpu.AdapterTypeDiscrete,
			VendorID:   0x4b41,
			DeviceID:   0x0001,
			APIVersion: "1.3.0",
		},
		QueueFamilies: []gpu.QueueFamily{
			{Index: 0, Count: 1, Graphics: true, Compute: true, Transfer: true, Present: true},
		},
		Extensions: []string{gpu.ExtensionSwapchain},
		Formats: []gpu.SurfaceFormat{
			{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
			{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
		},
		PresentModes:   []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox, gpu.PresentModeImmediate},
		MinImageCount:  2,
		MaxImageCount:  8,
		MinImageExtent: gpu.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: gpu.Extent2D{Width: 16384, Height: 16384},
	}
}

type Option func(*Instance)

// WithAdapters replaces the simulated adapters, in enumeration order.
func WithAdapters(adapters ...AdapterConfig) Option {
	return func(i *Instance) {
		i.adapters = adapters
	}
}

// WithEventLimit bounds the device event log. Zero keeps everything.
func WithEventLimit(n int) Option {
	return func(i *Instance) {
		i.eventLimit = n
	}
}

type surface struct {
	src    gpu.SurfaceSource
	native uintptr
}

// Instance is a deterministic software implementation of gpu.Instance.
type Instance struct {
	mu         sync.Mutex
	adapters   []AdapterConfig
	surfaces   *gpu.Arena[*surface]
	devices    []*Device
	eventLimit int
	destroyed  bool
}

func NewInstance(opts ...Option) *Instance {
	i := &Instance{
		adapters: []AdapterConfig{DefaultAdapter()},
		surfaces: gpu.NewArena[*surface](),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Instance) Native() interface{} {
	return i
}

func (i *Instance) Adapters() ([]gpu.Adapter, error) {
	out := make([]gpu.Adapter, len(i.adapters))
	for n := range i.adapters {
		out[n] = gpu.Adapter(n + 1)
	}
	return out, nil
}

func (i *Instance) adapter(a gpu.Adapter) AdapterConfig {
	if a == 0 || int(a) > len(i.adapters) {
		gpu.Invariant("headless.adapter", "unknown adapter %d", a)
	}
	return i.adapters[a-1]
}

func (i *Instance) AdapterInfo(a gpu.Adapter) gpu.AdapterInfo {
	return i.adapter(a).Info
}

func (i *Instance) QueueFamilies(a gpu.Adapter, s gpu.Surface) ([]gpu.QueueFamily, error) {
	cfg := i.adapter(a)
	out := make([]gpu.QueueFamily, len(cfg.QueueFamilies))
	copy(out, cfg.QueueFamilies)
	return out, nil
}

func (i *Instance) DeviceExtensions(a gpu.Adapter) ([]string, error) {
	return append([]string(nil), i.adapter(a).Extensions...), nil
}

func (i *Instance) SurfaceSupport(a gpu.Adapter, s gpu.Surface) (gpu.SurfaceSupport, error) {
	cfg := i.adapter(a)
	extent, err := i.surfaceExtent(s)
	if err != nil {
		return gpu.SurfaceSupport{}, err
	}
	return gpu.SurfaceSupport{
		Capabilities: gpu.SurfaceCapabilities{
			MinImageCount:  cfg.MinImageCount,
			MaxImageCount:  cfg.MaxImageCount,
			CurrentExtent:  extent,
			MinImageExtent: cfg.MinImageExtent,
			MaxImageExtent: cfg.MaxImageExtent,
		},
		Formats:      append([]gpu.SurfaceFormat(nil), cfg.Formats...),
		PresentModes: append([]gpu.PresentMode(nil), cfg.PresentModes...),
	}, nil
}

type sizer interface {
	GetFramebufferSize() (int, int)
}

// surfaceExtent follows the window when the source reports a size.
func (i *Instance) surfaceExtent(s gpu.Surface) (gpu.Extent2D, error) {
	i.mu.Lock()
	surf, ok := i.surfaces.Get(uint64(s))
	i.mu.Unlock()
	if !ok {
		return gpu.Extent2D{}, gpu.Check("headless.surface", gpu.ErrorSurfaceLost)
	}
	if sz, ok := surf.src.(sizer); ok {
		w, h := sz.GetFramebufferSize()
		if w < 0 {
			w = 0
		}
		if h < 0 {
			h = 0
		}
		return gpu.Extent2D{Width: uint32(w), Height: uint32(h)}, nil
	}
	return gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent}, nil
}

func (i *Instance) CreateSurface(src gpu.SurfaceSource) (gpu.Surface, error) {
	native, err := src.CreateWindowSurface(i, nil)
	if err != nil {
		return 0, gpu.Fatal("headless.CreateSurface", err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return gpu.Surface(i.surfaces.Insert(&surface{src: src, native: native})), nil
}

func (i *Instance) DestroySurface(s gpu.Surface) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.surfaces.Remove(uint64(s)); !ok {
		gpu.Invariant("headless.DestroySurface", "surface %d destroyed twice or never created", s)
	}
}

func (i *Instance) CreateDevice(a gpu.Adapter, desc gpu.DeviceDesc) (gpu.Device, error) {
	cfg := i.adapter(a)
	if int(desc.GraphicsFamily) >= len(cfg.QueueFamilies) || int(desc.PresentFamily) >= len(cfg.QueueFamilies) {
		return nil, gpu.Fatal("headless.CreateDevice", fmt.Errorf("queue family out of range"))
	}
	for _, ext := range desc.Extensions {
		found := false
		for _, have := range cfg.Extensions {
			if have == ext {
				found = true
				break
			}
		}
		if !found {
			return nil, gpu.Check("headless.CreateDevice", gpu.ErrorExtensionNotPresent)
		}
	}
	d := newDevice(i, cfg, desc)
	i.mu.Lock()
	i.devices = append(i.devices, d)
	i.mu.Unlock()
	core.LogDebug("headless device created on '%s'", cfg.Info.Name)
	return d, nil
}

// Device returns the most recently created device that is still alive.
func (i *Instance) Device() *Device {
	i.mu.Lock()
	defer i.mu.Unlock()
	for n := len(i.devices) - 1; n >= 0; n-- {
		if !i.devices[n].isDestroyed() {
			return i.devices[n]
		}
	}
	return nil
}

func (i *Instance) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		gpu.Invariant("headless.DestroyInstance", "instance destroyed twice")
	}
	for _, d := range i.devices {
		if !d.isDestroyed() {
			gpu.Invariant("headless.DestroyInstance", "instance destroyed before its device")
		}
	}
	if n := i.surfaces.Len(); n > 0 {
		gpu.Invariant("headless.DestroyInstance", "instance destroyed with %d live surface(s)", n)
	}
	i.destroyed = true
}

func (i *Instance) Destroyed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.destroyed
}
