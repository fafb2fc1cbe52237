package gpu

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Construction or device failures. Startup aborts.
	KindFatal Kind = iota
	// The swapchain no longer matches the surface. Routed to invalidation.
	KindStale
	// A synchronization or ownership rule was broken by the caller.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindStale:
		return "stale"
	case KindInvariant:
		return "invariant"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	ErrOutOfDate  = errors.New("swapchain out of date")
	ErrSuboptimal = errors.New("swapchain suboptimal")
	ErrDeviceLost = errors.New("device lost")
)

type Error struct {
	Op     string
	Kind   Kind
	Result Result
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	if e.Result != Success {
		msg += " " + e.Result.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Check classifies the result of the GPU call op. Success yields nil.
func Check(op string, res Result) error {
	switch res {
	case Success:
		return nil
	case Suboptimal:
		return &Error{Op: op, Kind: KindStale, Result: res, Err: ErrSuboptimal}
	case ErrorOutOfDate:
		return &Error{Op: op, Kind: KindStale, Result: res, Err: ErrOutOfDate}
	case ErrorDeviceLost:
		return &Error{Op: op, Kind: KindFatal, Result: res, Err: ErrDeviceLost}
	default:
		return &Error{Op: op, Kind: KindFatal, Result: res}
	}
}

// Fatal wraps err as a fatal error of op.
func Fatal(op string, err error) error {
	return &Error{Op: op, Kind: KindFatal, Err: err}
}

// Invariant panics with a KindInvariant error. It marks caller bugs that
// must not be tolerated at runtime.
func Invariant(op string, format string, args ...interface{}) {
	panic(&Error{Op: op, Kind: KindInvariant, Err: fmt.Errorf(format, args...)})
}

func KindOf(err error) (Kind, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind, true
	}
	return KindFatal, false
}

func IsStale(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindStale
}
