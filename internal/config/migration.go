package config

import "fmt"

// MigrateConfig upgrades cfg in place to the current schema version and
// returns a description of each change. Sections added after version 1
// already carry their defaults because decoding starts from DefaultConfig.
func MigrateConfig(cfg *Config) []string {
	var changes []string

	if cfg.Version < 1 {
		cfg.Version = 1
		changes = append(changes, "set missing version to 1")
	}

	if cfg.Version == 1 {
		// Version 1 files only held macros.
		cfg.Version = 2
		changes = append(changes, "v1 -> v2: added playback, logging, history and notifications sections")
	}

	return changes
}

// NeedsMigration reports whether cfg predates the current schema version.
func NeedsMigration(cfg *Config) bool {
	return cfg.Version < Version
}

// UnsupportedVersionError is returned for files newer than this build.
type UnsupportedVersionError struct {
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("config version %d is newer than supported version %d", e.Version, Version)
}
