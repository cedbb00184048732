package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lureka/callkit/internal/media"
	"github.com/lureka/callkit/internal/util"
)

// SenderSource exposes the active connection's outgoing senders so a device
// swap can repoint them without renegotiation. The negotiation engine
// implements it; it is nil while no call is active.
type SenderSource interface {
	SenderFor(kind media.Kind) (media.Sender, bool)
}

// Manager acquires, mutes, and hot-swaps local capture devices. It is the
// only component that mutates the local stream's track set.
type Manager struct {
	provider Provider
	store    *SettingsStore
	log      zerolog.Logger

	mu       sync.Mutex
	stream   *media.Stream
	senders  SenderSource
	settings Settings
}

// NewManager builds a manager and loads the persisted device settings.
func NewManager(provider Provider, store *SettingsStore) *Manager {
	return &Manager{
		provider: provider,
		store:    store,
		log:      util.Log().With().Str("component", "device").Logger(),
		settings: store.Load(),
	}
}

// AttachSenders points the manager at the active call's senders. Pass nil
// when the call ends.
func (m *Manager) AttachSenders(src SenderSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.senders = src
}

// Settings returns the current persisted settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// ListDevices enumerates capture hardware. Listing is best-effort: on
// failure it logs and returns empty lists rather than erroring.
func (m *Manager) ListDevices(ctx context.Context) List {
	devices, err := m.provider.Devices(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("device enumeration failed")
		return List{}
	}
	var out List
	for _, d := range devices {
		switch d.Kind {
		case media.KindVideo:
			out.VideoDevices = append(out.VideoDevices, d)
		case media.KindAudio:
			out.AudioDevices = append(out.AudioDevices, d)
		}
	}
	return out
}

// Acquire opens the local stream using the persisted device choice, falling
// back silently to first-available hardware when a remembered device is no
// longer present.
func (m *Manager) Acquire(ctx context.Context) (*media.Stream, error) {
	m.mu.Lock()
	settings := m.settings
	m.mu.Unlock()

	devices := m.ListDevices(ctx)
	stream := media.NewStream()

	if settings.IsVideoEnabled {
		id := settings.VideoDeviceID
		if id != "" && !containsDevice(devices.VideoDevices, id) {
			m.log.Info().Str("device", id).Msg("remembered camera gone, using first available")
			id = ""
		}
		track, err := m.provider.OpenTrack(ctx, media.KindVideo, id)
		if err != nil {
			return nil, fmt.Errorf("acquire camera: %w", err)
		}
		stream.SetTrack(track)
	}

	if settings.IsAudioEnabled {
		id := settings.AudioDeviceID
		if id != "" && !containsDevice(devices.AudioDevices, id) {
			m.log.Info().Str("device", id).Msg("remembered microphone gone, using first available")
			id = ""
		}
		track, err := m.provider.OpenTrack(ctx, media.KindAudio, id)
		if err != nil {
			stream.StopAll()
			return nil, fmt.Errorf("acquire microphone: %w", err)
		}
		stream.SetTrack(track)
	}

	m.mu.Lock()
	m.stream = stream
	m.mu.Unlock()
	return stream, nil
}

// Stream returns the current local stream, or nil before Acquire.
func (m *Manager) Stream() *media.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// SwapTrack switches the active device of one kind. Ordering matters:
// acquire the new track first, repoint the sender, then stop the old track,
// so the outgoing feed never points at a dead source.
func (m *Manager) SwapTrack(ctx context.Context, kind media.Kind, deviceID string) error {
	m.mu.Lock()
	stream := m.stream
	senders := m.senders
	m.mu.Unlock()

	if stream == nil {
		return fmt.Errorf("%w: no local stream", ErrMediaAccess)
	}

	newTrack, err := m.provider.OpenTrack(ctx, kind, deviceID)
	if err != nil {
		return err
	}

	if senders != nil {
		if sender, ok := senders.SenderFor(kind); ok {
			// In-place replacement keeps the SDP contract untouched.
			if err := sender.ReplaceTrack(newTrack.Local()); err != nil {
				_ = newTrack.Stop()
				return fmt.Errorf("%w: replace sender track: %v", ErrMediaAccess, err)
			}
		}
	}

	if old := stream.SetTrack(newTrack); old != nil {
		_ = old.Stop()
	}

	m.mu.Lock()
	switch kind {
	case media.KindVideo:
		m.settings.VideoDeviceID = deviceID
	case media.KindAudio:
		m.settings.AudioDeviceID = deviceID
	}
	settings := m.settings
	m.mu.Unlock()

	if err := m.store.Save(settings); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist device settings")
	}
	return nil
}

// SetEnabled toggles one kind. Disabling mutes the track while keeping the
// hardware handle for instant re-enable; enabling a stopped track
// re-acquires and runs the same swap sequence as SwapTrack.
func (m *Manager) SetEnabled(ctx context.Context, kind media.Kind, enabled bool) error {
	m.mu.Lock()
	stream := m.stream
	settings := m.settings
	m.mu.Unlock()

	if stream == nil {
		return fmt.Errorf("%w: no local stream", ErrMediaAccess)
	}

	track, exists := stream.Track(kind)

	if !enabled {
		if exists {
			track.SetEnabled(false)
		}
	} else if exists && track.Live() {
		track.SetEnabled(true)
	} else {
		deviceID := settings.VideoDeviceID
		if kind == media.KindAudio {
			deviceID = settings.AudioDeviceID
		}
		if err := m.SwapTrack(ctx, kind, deviceID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	switch kind {
	case media.KindVideo:
		m.settings.IsVideoEnabled = enabled
	case media.KindAudio:
		m.settings.IsAudioEnabled = enabled
	}
	settings = m.settings
	m.mu.Unlock()

	if err := m.store.Save(settings); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist device settings")
	}
	return nil
}

// Release stops every track and forgets the stream. Used when the session
// controller tears down entirely.
func (m *Manager) Release() {
	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.senders = nil
	m.mu.Unlock()

	if stream != nil {
		stream.StopAll()
	}
}

func containsDevice(devices []Info, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}
