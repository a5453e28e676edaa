package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/keyblast/
//   - Linux:   ~/.config/keyblast/
//   - Windows: %APPDATA%\keyblast\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "keyblast")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "keyblast")
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", "keyblast")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "keyblast")
		}
		return filepath.Join(homeDir(), ".config", "keyblast")
	}
}

// PlatformDataDir returns the platform-specific data directory, which holds
// the run history database.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/keyblast/
//   - Linux:   ~/.local/share/keyblast/
//   - Windows: %LOCALAPPDATA%\keyblast\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return PlatformConfigDir()
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "keyblast")
		}
		return filepath.Join(homeDir(), "AppData", "Local", "keyblast")
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "keyblast")
		}
		return filepath.Join(homeDir(), ".local", "share", "keyblast")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// KeyblastDir returns the configuration directory, honouring the
// KEYBLAST_CONFIG_DIR override.
func KeyblastDir() string {
	if dir := os.Getenv("KEYBLAST_CONFIG_DIR"); dir != "" {
		return dir
	}
	return PlatformConfigDir()
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(KeyblastDir(), "config.toml")
}

// DefaultHistoryPath returns the default run history database path.
func DefaultHistoryPath() string {
	return filepath.Join(PlatformDataDir(), "history.db")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the current directory and the config directory
// for a config file. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", KeyblastDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
