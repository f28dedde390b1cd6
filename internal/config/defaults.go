// Package config handles configuration loading and validation for focusd.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/focusd/
//   - Linux:   ~/.local/share/focusd/
//   - Windows: %APPDATA%\focusd\
//
// Falls back to ~/.focusd if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		home := homeDir()
		return filepath.Join(home, "Library", "Application Support", "focusd")
	case "linux":
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "focusd")
		}
		return filepath.Join(homeDir(), ".local", "share", "focusd")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "focusd")
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", "focusd")
	default:
		return filepath.Join(homeDir(), ".focusd")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/focusd/
//   - Linux:   ~/.config/focusd/
//   - Windows: %APPDATA%\focusd\
func PlatformConfigDir() string {
	if runtime.GOOS == "linux" {
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "focusd")
		}
		return filepath.Join(homeDir(), ".config", "focusd")
	}
	return PlatformDataDir()
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the first config file found, or empty string if none exists.
func FindConfigFile() string {
	searchDirs := []string{
		".",
		PlatformConfigDir(),
		PlatformDataDir(),
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
