// Package media models the local and remote media of one call: tracks that
// can be muted, stopped, and swapped, grouped into a stream with at most one
// track per kind.
package media

import (
	"github.com/pion/webrtc/v4"
)

// Kind distinguishes the two capture kinds a call carries.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Track is a single local capture track. Muting via SetEnabled(false) keeps
// the hardware handle alive for instant re-enable; Stop releases it for good.
type Track interface {
	// Local returns the pion track to attach to a peer connection.
	Local() webrtc.TrackLocal

	Kind() Kind
	DeviceID() string

	Enabled() bool
	SetEnabled(bool)

	// Stop releases the underlying device. After Stop, Live reports false.
	Stop() error
	Live() bool
}

// Sender is the outgoing half of an attached track on a peer connection,
// narrowed to what track swapping needs. *webrtc.RTPSender satisfies it.
type Sender interface {
	ReplaceTrack(webrtc.TrackLocal) error
}
