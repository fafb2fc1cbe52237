package engine

import (
	"github.com/spaghettifunk/karma/engine/config"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX int32
	// Window starting position y axis, if applicable.
	StartPosY int32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name     string
	LogLevel string
	// Frames drawn before the engine quits on its own. Zero runs until a
	// quit event.
	MaxFrames uint64
}

func NewApplicationConfig(cfg *config.Config) *ApplicationConfig {
	return &ApplicationConfig{
		StartPosX:   cfg.Application.X,
		StartPosY:   cfg.Application.Y,
		StartWidth:  cfg.Application.Width,
		StartHeight: cfg.Application.Height,
		Name:        cfg.Application.Name,
		LogLevel:    cfg.Logging.Level,
		MaxFrames:   cfg.Application.MaxFrames,
	}
}
