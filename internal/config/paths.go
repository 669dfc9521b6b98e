package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "rv-cleanup"

// ConfigDirectory returns the directory holding the config file and history.
//   - Windows: %USERPROFILE%\.config\rv-cleanup
//   - Unix: ~/.config/rv-cleanup
func ConfigDirectory() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", appDirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDirName), nil
}

// DefaultConfigPath returns the default path of config.ini.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.ini"), nil
}

// DefaultHistoryPath returns the default path of the upload history file.
func DefaultHistoryPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.csv"), nil
}

// LogDirectory returns the directory for rotated log files.
func LogDirectory() string {
	dir, err := ConfigDirectory()
	if err != nil {
		return filepath.Join(os.TempDir(), "rv-cleanup-logs")
	}
	return filepath.Join(dir, "logs")
}
