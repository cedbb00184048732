// Package device captures and hot-swaps local audio/video hardware. The
// Manager sits between a capture Provider and the negotiation engine's
// senders, so a device switch replaces the outgoing track in place without
// renegotiating the session.
package device

import (
	"context"

	"github.com/lureka/callkit/internal/media"
)

// Info describes one capture device.
type Info struct {
	ID    string
	Label string
	Kind  media.Kind
}

// List groups enumerated devices by kind.
type List struct {
	VideoDevices []Info
	AudioDevices []Info
}

// Provider is the capture backend. deviceID "" means "any device of that
// kind"; a non-empty ID selects specific hardware.
type Provider interface {
	Devices(ctx context.Context) ([]Info, error)
	OpenTrack(ctx context.Context, kind media.Kind, deviceID string) (media.Track, error)
}
