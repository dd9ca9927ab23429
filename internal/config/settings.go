package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const settingsFile = ".officehours.json"

// Settings is the small per-user file: display name and a stable short user
// id used on the presence channel. Nothing about calls is persisted.
type Settings struct {
	DisplayName string `json:"display_name,omitempty"`
	UserID      string `json:"user_id"`
}

func settingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, settingsFile), nil
}

// LoadSettings reads the settings file, creating a user id on first use.
// A missing or unreadable file yields fresh settings rather than an error.
func LoadSettings() (*Settings, error) {
	s := &Settings{}
	path, err := settingsPath()
	if err == nil {
		if data, readErr := os.ReadFile(path); readErr == nil {
			_ = json.Unmarshal(data, s)
		}
	}
	if s.UserID == "" {
		s.UserID = uuid.NewString()[:8]
		if err := s.Save(); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Save writes the settings file.
func (s *Settings) Save() error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Name returns the display name, falling back to the hostname.
func (s *Settings) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	host, err := os.Hostname()
	if err != nil {
		return "office-hours"
	}
	return host
}
