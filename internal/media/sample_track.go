package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// SampleTrack is a Track backed by a pion TrackLocalStaticSample. The device
// package feeds it from a capture provider; tests feed it nothing at all.
type SampleTrack struct {
	local    *webrtc.TrackLocalStaticSample
	kind     Kind
	deviceID string

	mu      sync.Mutex
	enabled bool
	live    bool
	onStop  func() error
}

// NewSampleTrack builds a live, enabled track for the given kind and device.
// onStop, if non-nil, releases the underlying capture source when the track
// is stopped.
func NewSampleTrack(kind Kind, deviceID, streamID string, onStop func() error) (*SampleTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	if kind == KindAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	}

	local, err := webrtc.NewTrackLocalStaticSample(capability, string(kind)+"-"+deviceID, streamID)
	if err != nil {
		return nil, err
	}

	return &SampleTrack{
		local:    local,
		kind:     kind,
		deviceID: deviceID,
		enabled:  true,
		live:     true,
		onStop:   onStop,
	}, nil
}

func (t *SampleTrack) Local() webrtc.TrackLocal { return t.local }
func (t *SampleTrack) Kind() Kind               { return t.kind }
func (t *SampleTrack) DeviceID() string         { return t.deviceID }

// Sample returns the underlying sample writer for the capture loop.
func (t *SampleTrack) Sample() *webrtc.TrackLocalStaticSample { return t.local }

func (t *SampleTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *SampleTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *SampleTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Stop releases the capture source. Idempotent.
func (t *SampleTrack) Stop() error {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return nil
	}
	t.live = false
	t.enabled = false
	onStop := t.onStop
	t.mu.Unlock()

	if onStop != nil {
		return onStop()
	}
	return nil
}
