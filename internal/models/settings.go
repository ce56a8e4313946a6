package models

import "time"

// DefaultSocketPath is where the daemon listens unless configured otherwise.
const DefaultSocketPath = "/var/run/mullvad-vpn"

// BackoffConfig holds the reconnect delay bounds.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // "debug" | "info" | "warn" | "error"
	File  string `yaml:"file"`  // empty = ~/.mulltray/logs/mulltray.log, "stderr" = console
}

// Settings represents global application settings.
// This corresponds to ~/.mulltray/settings.yaml.
type Settings struct {
	Version        int           `yaml:"version"`
	SocketPath     string        `yaml:"socket_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Backoff        BackoffConfig `yaml:"backoff"`
	Log            LogConfig     `yaml:"log"`
	MetricsAddr    string        `yaml:"metrics_addr,omitempty"` // empty disables the listener
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version:        1,
		SocketPath:     DefaultSocketPath,
		RequestTimeout: 5 * time.Second,
		Backoff: BackoffConfig{
			Initial: time.Second,
			Max:     30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ApplyDefaults fills zero values left by a partial settings file.
func (s *Settings) ApplyDefaults() {
	d := NewSettings()
	if s.Version == 0 {
		s.Version = d.Version
	}
	if s.SocketPath == "" {
		s.SocketPath = d.SocketPath
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = d.RequestTimeout
	}
	if s.Backoff.Initial <= 0 {
		s.Backoff.Initial = d.Backoff.Initial
	}
	if s.Backoff.Max < s.Backoff.Initial {
		s.Backoff.Max = d.Backoff.Max
		if s.Backoff.Max < s.Backoff.Initial {
			s.Backoff.Max = s.Backoff.Initial
		}
	}
	if s.Log.Level == "" {
		s.Log.Level = d.Log.Level
	}
}
