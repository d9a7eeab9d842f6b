package media

import (
	"fmt"
	"strings"
)

// ErrorKind classifies capture failures so the call engine can decide between
// retrying with relaxed constraints and giving up on the pending call.
type ErrorKind int

const (
	// ErrorOther is every failure that does not fit a more specific kind.
	ErrorOther ErrorKind = iota
	// ErrorPermissionDenied means the OS or user refused access to the device.
	ErrorPermissionDenied
	// ErrorDeviceNotFound means no capture device of the requested kind exists.
	ErrorDeviceNotFound
	// ErrorDeviceBusy means the device is held by another process.
	ErrorDeviceBusy
	// ErrorUnsupported means no device could satisfy the requested constraints.
	ErrorUnsupported
)

// Error wraps a capture failure with its classification.
type Error struct {
	Kind  ErrorKind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("media: %s: %v", e.kindString(), e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// UserMessage returns a short human-readable message suitable for the call UI.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case ErrorPermissionDenied:
		return "Camera/microphone access was denied"
	case ErrorDeviceNotFound:
		return "No camera or microphone was found"
	case ErrorDeviceBusy:
		return "Camera or microphone is already in use"
	case ErrorUnsupported:
		return "Camera or microphone does not support the required settings"
	default:
		return "Could not access camera or microphone"
	}
}

func (e *Error) kindString() string {
	switch e.Kind {
	case ErrorPermissionDenied:
		return "permission denied"
	case ErrorDeviceNotFound:
		return "device not found"
	case ErrorDeviceBusy:
		return "device busy"
	case ErrorUnsupported:
		return "constraints unsupported"
	default:
		return "capture failed"
	}
}

// classify maps a raw capture error onto the taxonomy. The capture stack does
// not expose typed errors for most failure modes, so this falls back on the
// well-known substrings of V4L2/ALSA/driver errors.
func classify(err error) *Error {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "not permitted"):
		return &Error{Kind: ErrorPermissionDenied, cause: err}
	case strings.Contains(msg, "device or resource busy") || strings.Contains(msg, "busy") ||
		strings.Contains(msg, "in use"):
		return &Error{Kind: ErrorDeviceBusy, cause: err}
	case strings.Contains(msg, "no such device") || strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no device"):
		return &Error{Kind: ErrorDeviceNotFound, cause: err}
	case strings.Contains(msg, "fits the constraints") || strings.Contains(msg, "constraint") ||
		strings.Contains(msg, "unsupported"):
		return &Error{Kind: ErrorUnsupported, cause: err}
	default:
		return &Error{Kind: ErrorOther, cause: err}
	}
}
