package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone driver
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"

	"github.com/lureka/callkit/internal/media"
)

// mediaDevicesProvider backs the Provider interface with pion/mediadevices,
// encoding camera frames as VP8 and microphone samples as Opus.
type mediaDevicesProvider struct {
	codecs *mediadevices.CodecSelector
}

// NewMediaDevicesProvider builds the production capture provider.
func NewMediaDevicesProvider() (Provider, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 encoder: %w", err)
	}
	vpxParams.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}

	return &mediaDevicesProvider{
		codecs: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (p *mediaDevicesProvider) Devices(_ context.Context) ([]Info, error) {
	var out []Info
	for _, d := range mediadevices.EnumerateDevices() {
		switch d.Kind {
		case mediadevices.VideoInput:
			out = append(out, Info{ID: d.DeviceID, Label: d.Label, Kind: media.KindVideo})
		case mediadevices.AudioInput:
			out = append(out, Info{ID: d.DeviceID, Label: d.Label, Kind: media.KindAudio})
		}
	}
	return out, nil
}

func (p *mediaDevicesProvider) OpenTrack(_ context.Context, kind media.Kind, deviceID string) (media.Track, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: p.codecs}
	selectDevice := func(c *mediadevices.MediaTrackConstraints) {
		if deviceID != "" {
			c.DeviceID = prop.String(deviceID)
		}
	}

	if kind == media.KindVideo {
		constraints.Video = selectDevice
	} else {
		constraints.Audio = selectDevice
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, classify(err)
	}

	tracks := stream.GetVideoTracks()
	if kind == media.KindAudio {
		tracks = stream.GetAudioTracks()
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no %s track produced", ErrDeviceUnavailable, kind)
	}

	return newCaptureTrack(tracks[0], kind, deviceID), nil
}

// captureTrack adapts a mediadevices track to media.Track, layering the
// enabled/live flags the call model needs on top of the raw capture handle.
type captureTrack struct {
	raw  mediadevices.Track
	kind media.Kind
	id   string

	mu      sync.Mutex
	enabled bool
	live    bool
}

func newCaptureTrack(raw mediadevices.Track, kind media.Kind, deviceID string) *captureTrack {
	return &captureTrack{
		raw:     raw,
		kind:    kind,
		id:      deviceID,
		enabled: true,
		live:    true,
	}
}

func (t *captureTrack) Local() webrtc.TrackLocal { return t.raw }
func (t *captureTrack) Kind() media.Kind         { return t.kind }
func (t *captureTrack) DeviceID() string         { return t.id }

func (t *captureTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *captureTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *captureTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *captureTrack) Stop() error {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return nil
	}
	t.live = false
	t.enabled = false
	t.mu.Unlock()
	return t.raw.Close()
}
