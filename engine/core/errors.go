package core

import (
	"errors"
)

var (
	ErrSwapchainBooting  = errors.New("swapchain resized or recreated, booting")
	ErrNotInitialized    = errors.New("not initialized")
	ErrAlreadyShutdown   = errors.New("already shut down")
	ErrVulkanUnsupported = errors.New("vulkan is not supported on this system")
)
