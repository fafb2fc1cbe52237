package gpu

import "fmt"

// Result is the driver independent status of a GPU call.
type Result int32

const (
	Success Result = iota
	NotReady
	Timeout
	Suboptimal
	ErrorOutOfDate
	ErrorDeviceLost
	ErrorSurfaceLost
	ErrorOutOfHostMemory
	ErrorOutOfDeviceMemory
	ErrorInitializationFailed
	ErrorExtensionNotPresent
	ErrorLayerNotPresent
	ErrorIncompatibleDriver
	ErrorFormatNotSupported
	ErrorUnknown
)

var resultNames = [...]string{
	Success:                   "SUCCESS",
	NotReady:                  "NOT_READY",
	Timeout:                   "TIMEOUT",
	Suboptimal:                "SUBOPTIMAL",
	ErrorOutOfDate:            "ERROR_OUT_OF_DATE",
	ErrorDeviceLost:           "ERROR_DEVICE_LOST",
	ErrorSurfaceLost:          "ERROR_SURFACE_LOST",
	ErrorOutOfHostMemory:      "ERROR_OUT_OF_HOST_MEMORY",
	ErrorOutOfDeviceMemory:    "ERROR_OUT_OF_DEVICE_MEMORY",
	ErrorInitializationFailed: "ERROR_INITIALIZATION_FAILED",
	ErrorExtensionNotPresent:  "ERROR_EXTENSION_NOT_PRESENT",
	ErrorLayerNotPresent:      "ERROR_LAYER_NOT_PRESENT",
	ErrorIncompatibleDriver:   "ERROR_INCOMPATIBLE_DRIVER",
	ErrorFormatNotSupported:   "ERROR_FORMAT_NOT_SUPPORTED",
	ErrorUnknown:              "ERROR_UNKNOWN",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("Result(%d)", int32(r))
}

// IsStale reports whether r asks for the swapchain to be rebuilt.
func (r Result) IsStale() bool {
	return r == Suboptimal || r == ErrorOutOfDate
}
