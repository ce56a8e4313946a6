package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mulltray/mulltray/internal/models"
)

// EnvSocket overrides the daemon socket path.
const EnvSocket = "MULLTRAY_SOCKET"

// MaxSocketPathLen is the longest path that fits in sockaddr_un.sun_path
// together with its terminating NUL.
const MaxSocketPathLen = 107

// ConfigError is a configuration problem found at startup. It is fatal.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid %s", e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ResolveSocketPath picks the socket path from the flag, the environment
// and the settings, in that order, and validates it.
func ResolveSocketPath(flag, env string, settings *models.Settings) (string, error) {
	path := models.DefaultSocketPath
	switch {
	case flag != "":
		path = flag
	case env != "":
		path = env
	case settings != nil && settings.SocketPath != "":
		path = settings.SocketPath
	}
	if err := ValidateSocketPath(path); err != nil {
		return "", err
	}
	return path, nil
}

// ValidateSocketPath checks that path can name a Unix socket.
func ValidateSocketPath(path string) error {
	invalid := func(reason string) error {
		return &ConfigError{Field: "socket path", Value: path, Reason: reason}
	}
	switch {
	case path == "":
		return invalid("empty")
	case strings.ContainsRune(path, 0):
		return invalid("contains a NUL byte")
	case !filepath.IsAbs(path):
		return invalid("must be absolute")
	case len(path) > MaxSocketPathLen:
		return invalid(fmt.Sprintf("longer than %d bytes", MaxSocketPathLen))
	}
	return nil
}
