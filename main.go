/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/karma/engine"
	"github.com/spaghettifunk/karma/engine/config"
	"github.com/spaghettifunk/karma/engine/core"
	"github.com/spaghettifunk/karma/testbed"
)

func main() {
	configPath := flag.String("config", "karma.toml", "path of the engine configuration")
	backend := flag.String("backend", "", "override renderer.backend (vulkan or headless)")
	frames := flag.Uint64("frames", 0, "override application.max_frames")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogWarn("%s, using defaults", err)
		cfg = config.Default()
		*configPath = ""
	}
	if *backend != "" {
		cfg.Renderer.Backend = *backend
	}
	if *frames > 0 {
		cfg.Application.MaxFrames = *frames
	}
	if err := cfg.Validate(); err != nil {
		core.LogFatal("invalid configuration: %s", err)
	}

	tb := testbed.NewTestGame(cfg)

	e, err := engine.New(tb.Game, cfg, *configPath)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("engine failed to initialize: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// The run loop owns the engine; the signal only asks it to stop.
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %s", runErr)
	}
}
