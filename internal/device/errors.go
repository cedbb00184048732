package device

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPermissionDenied means the user (or OS policy) declined access.
	ErrPermissionDenied = errors.New("device access denied")
	// ErrDeviceUnavailable means no hardware matched the request.
	ErrDeviceUnavailable = errors.New("no matching device found")
	// ErrDeviceBusy means the hardware is held by another process.
	ErrDeviceBusy = errors.New("device busy")
	// ErrMediaAccess covers every other acquisition failure.
	ErrMediaAccess = errors.New("media access failed")
)

// classify maps a raw driver error onto the package taxonomy so callers can
// present actionable guidance. Driver errors are plain strings, so this is
// substring matching.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not permitted"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "failed to find"), strings.Contains(msg, "no such device"),
		strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return fmt.Errorf("%w: %v", ErrDeviceBusy, err)
	default:
		return fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}
}
