package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	BackendVulkan   = "vulkan"
	BackendHeadless = "headless"
)

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Logging     LoggingConfig     `toml:"logging"`
	Renderer    RendererConfig    `toml:"renderer"`
	Overlay     OverlayConfig     `toml:"overlay"`
}

type ApplicationConfig struct {
	Name   string `toml:"name"`
	X      int32  `toml:"x"`
	Y      int32  `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// Frames rendered by the headless backend before quitting. Zero runs until
	// interrupted.
	MaxFrames uint64 `toml:"max_frames"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	Backend        string `toml:"backend"`
	FramesInFlight int    `toml:"frames_in_flight"`
	// Requested swapchain image count. Zero lets the surface minimum + 1 win.
	ImageCount       uint32    `toml:"image_count"`
	Uncapped         bool      `toml:"uncapped"`
	Validation       bool      `toml:"validation"`
	PreferredFormats []string  `toml:"preferred_formats"`
	ClearColor       []float32 `toml:"clear_color"`
}

type OverlayConfig struct {
	Stats     bool     `toml:"stats"`
	Text      bool     `toml:"text"`
	TextLines []string `toml:"text_lines"`
	// Integer pixel scale of the text overlay glyphs.
	Scale int `toml:"scale"`
}

// Default returns the configuration used when no file overrides a key.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Karma Testbed",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			Backend:          BackendVulkan,
			FramesInFlight:   2,
			PreferredFormats: []string{"B8G8R8A8_SRGB", "B8G8R8A8_UNORM"},
			ClearColor:       []float32{0.0, 0.0, 0.2, 1.0},
		},
		Overlay: OverlayConfig{
			Stats:     true,
			Text:      true,
			TextLines: []string{"karma"},
			Scale:     2,
		},
	}
}

// Load reads the TOML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Renderer.Backend {
	case BackendVulkan, BackendHeadless:
	default:
		errs = append(errs, fmt.Errorf("renderer.backend must be %q or %q, got %q", BackendVulkan, BackendHeadless, c.Renderer.Backend))
	}
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > 3 {
		errs = append(errs, fmt.Errorf("renderer.frames_in_flight must be in [1, 3], got %d", c.Renderer.FramesInFlight))
	}
	if len(c.Renderer.ClearColor) != 4 {
		errs = append(errs, fmt.Errorf("renderer.clear_color needs 4 components, got %d", len(c.Renderer.ClearColor)))
	}
	for _, f := range c.Renderer.PreferredFormats {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, errors.New("renderer.preferred_formats contains an empty entry"))
			break
		}
	}
	if c.Application.Width == 0 || c.Application.Height == 0 {
		errs = append(errs, fmt.Errorf("application window size must be non zero, got %dx%d", c.Application.Width, c.Application.Height))
	}
	if c.Overlay.Scale < 1 {
		errs = append(errs, fmt.Errorf("overlay.scale must be at least 1, got %d", c.Overlay.Scale))
	}
	return errors.Join(errs...)
}

// Reloadable merges the keys of next that can be applied to a running
// engine into a copy of c. It returns the merged configuration and the keys
// that changed but need a restart.
func (c *Config) Reloadable(next *Config) (*Config, []string) {
	merged := *c
	merged.Renderer.PreferredFormats = append([]string(nil), c.Renderer.PreferredFormats...)

	var rejected []string
	if next.Renderer.FramesInFlight != c.Renderer.FramesInFlight {
		rejected = append(rejected, "renderer.frames_in_flight")
	}
	if next.Renderer.Backend != c.Renderer.Backend {
		rejected = append(rejected, "renderer.backend")
	}
	if next.Renderer.Validation != c.Renderer.Validation {
		rejected = append(rejected, "renderer.validation")
	}
	if next.Renderer.ImageCount != c.Renderer.ImageCount {
		rejected = append(rejected, "renderer.image_count")
	}

	merged.Logging = next.Logging
	merged.Renderer.Uncapped = next.Renderer.Uncapped
	merged.Renderer.ClearColor = append([]float32(nil), next.Renderer.ClearColor...)
	merged.Overlay = next.Overlay
	merged.Overlay.TextLines = append([]string(nil), next.Overlay.TextLines...)
	return &merged, rejected
}
