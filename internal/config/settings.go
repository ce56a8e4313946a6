package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mulltray/mulltray/internal/models"
)

// LoadSettings loads settings from path, or from ~/.mulltray/settings.yaml
// when path is empty. Only a file that does not exist yields the defaults.
// Anything else that stops the file from being read or parsed is a
// ConfigError.
func LoadSettings(path string) (*models.Settings, error) {
	path, err := settingsPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.NewSettings(), nil
	}
	if err != nil {
		return nil, &ConfigError{Field: "settings", Value: path, Reason: "unreadable settings file", Err: err}
	}

	var settings models.Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, &ConfigError{Field: "settings", Value: path, Reason: "malformed settings file", Err: err}
	}
	settings.ApplyDefaults()
	return &settings, nil
}

// SaveSettings writes settings to path, or to ~/.mulltray/settings.yaml
// when path is empty, creating the parent directory.
func SaveSettings(path string, settings *models.Settings) error {
	path, err := settingsPath(path)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}

// SettingsExist reports whether a settings file is present at path. A path
// that cannot be inspected is an error rather than "absent".
func SettingsExist(path string) (bool, error) {
	path, err := settingsPath(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, &ConfigError{Field: "settings", Value: path, Reason: "cannot inspect settings file", Err: err}
	}
}

func settingsPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	p, err := GlobalSettingsFile()
	if err != nil {
		return "", &ConfigError{Field: "settings", Reason: "cannot locate home directory", Err: err}
	}
	return p, nil
}
