// Package config holds the client configuration: relay endpoint, auth token,
// ICE servers, and device-settings storage location. Values come from env
// vars with CLI flags taking precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config stores all parameters for one callkit process.
type Config struct {
	RelayURL  string // WebSocket URL of the signaling relay
	AuthToken string // bearer token for the relay

	SettingsPath string // device settings JSON; empty means the user config dir

	HandshakeTimeout     time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	Debug bool
}

// FromEnv builds a Config from CALLKIT_* environment variables, leaving
// unset fields at their defaults.
func FromEnv() Config {
	cfg := Config{
		RelayURL:             os.Getenv("CALLKIT_RELAY_URL"),
		AuthToken:            os.Getenv("CALLKIT_AUTH_TOKEN"),
		SettingsPath:         os.Getenv("CALLKIT_SETTINGS_PATH"),
		HandshakeTimeout:     envDuration("CALLKIT_HANDSHAKE_TIMEOUT", 10*time.Second),
		MaxReconnectAttempts: envInt("CALLKIT_MAX_RECONNECT_ATTEMPTS", 5),
		ReconnectBaseDelay:   envDuration("CALLKIT_RECONNECT_BASE_DELAY", 2*time.Second),
		ReconnectMaxDelay:    envDuration("CALLKIT_RECONNECT_MAX_DELAY", 10*time.Second),
	}
	if v := os.Getenv("CALLKIT_DEBUG"); v != "" {
		cfg.Debug, _ = strconv.ParseBool(v)
	}
	return cfg
}

// DeviceSettingsPath resolves the settings file location, defaulting to
// callkit/devices.json under the user config dir.
func (c Config) DeviceSettingsPath() (string, error) {
	if c.SettingsPath != "" {
		return c.SettingsPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "callkit", "devices.json"), nil
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
