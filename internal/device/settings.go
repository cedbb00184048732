package device

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings is the durable record of a user's device choice, re-applied on
// the next session. Mutated only by explicit user device actions.
type Settings struct {
	VideoDeviceID  string `json:"videoDeviceId"`
	AudioDeviceID  string `json:"audioDeviceId"`
	IsVideoEnabled bool   `json:"isVideoEnabled"`
	IsAudioEnabled bool   `json:"isAudioEnabled"`
}

// DefaultSettings enables both kinds with no device preference.
func DefaultSettings() Settings {
	return Settings{IsVideoEnabled: true, IsAudioEnabled: true}
}

// SettingsStore persists Settings as JSON at a fixed path.
type SettingsStore struct {
	path string
}

func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Load reads the persisted settings, falling back to defaults when the file
// is missing or unreadable. Settings are a convenience, never a hard error.
func (s *SettingsStore) Load() Settings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return DefaultSettings()
	}
	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return DefaultSettings()
	}
	return out
}

// Save writes the settings, creating the parent directory as needed.
func (s *SettingsStore) Save(settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
