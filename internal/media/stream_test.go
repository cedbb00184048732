package media

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

type nopLocal struct{ id string }

func (l nopLocal) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (l nopLocal) Unbind(webrtc.TrackLocalContext) error { return nil }
func (l nopLocal) ID() string                            { return l.id }
func (l nopLocal) RID() string                           { return "" }
func (l nopLocal) StreamID() string                      { return "test-stream" }
func (l nopLocal) Kind() webrtc.RTPCodecType             { return webrtc.RTPCodecTypeVideo }

type stubTrack struct {
	kind     Kind
	deviceID string
	enabled  bool
	live     bool
}

func newStubTrack(kind Kind, deviceID string) *stubTrack {
	return &stubTrack{kind: kind, deviceID: deviceID, enabled: true, live: true}
}

func (t *stubTrack) Local() webrtc.TrackLocal { return nopLocal{id: t.deviceID} }
func (t *stubTrack) Kind() Kind               { return t.kind }
func (t *stubTrack) DeviceID() string         { return t.deviceID }
func (t *stubTrack) Enabled() bool            { return t.enabled }
func (t *stubTrack) SetEnabled(v bool)        { t.enabled = v }
func (t *stubTrack) Live() bool               { return t.live }

func (t *stubTrack) Stop() error {
	t.live = false
	t.enabled = false
	return nil
}

func TestSetTrackReplacesKindSlot(t *testing.T) {
	s := NewStream()

	first := newStubTrack(KindVideo, "cam-1")
	if prev := s.SetTrack(first); prev != nil {
		t.Fatalf("expected no previous track, got %v", prev)
	}

	second := newStubTrack(KindVideo, "cam-2")
	prev := s.SetTrack(second)
	if prev != first {
		t.Fatalf("expected previous track cam-1, got %v", prev)
	}

	got, ok := s.Track(KindVideo)
	if !ok || got.DeviceID() != "cam-2" {
		t.Errorf("video slot holds %v, want cam-2", got)
	}
	if len(s.Tracks()) != 1 {
		t.Errorf("stream has %d tracks, want exactly one per kind", len(s.Tracks()))
	}
}

func TestStopAllStopsAndEmpties(t *testing.T) {
	s := NewStream()
	video := newStubTrack(KindVideo, "cam-1")
	audio := newStubTrack(KindAudio, "mic-1")
	s.SetTrack(video)
	s.SetTrack(audio)

	s.StopAll()

	if video.Live() || audio.Live() {
		t.Error("tracks still live after StopAll")
	}
	if len(s.Tracks()) != 0 {
		t.Errorf("stream has %d tracks after StopAll, want 0", len(s.Tracks()))
	}
}

func TestStreamIDsAreUnique(t *testing.T) {
	if NewStream().ID() == NewStream().ID() {
		t.Error("two streams share an ID")
	}
}
