// Package config provides configuration management for perfdb.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds the default locations perfdb reads and writes.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/perfdb)
	ConfigDir string

	// DataDir is the directory for data files (~/.local/share/perfdb)
	DataDir string
}

const appName = "perfdb"

// DefaultPaths returns the default paths based on XDG Base Directory spec.
// On Windows, it uses %APPDATA% and %LOCALAPPDATA% instead.
func DefaultPaths() *Paths {
	home := homeDir()

	if runtime.GOOS == "windows" {
		return &Paths{
			ConfigDir: filepath.Join(envOr("APPDATA", filepath.Join(home, "AppData", "Roaming")), appName),
			DataDir:   filepath.Join(envOr("LOCALAPPDATA", filepath.Join(home, "AppData", "Local")), appName),
		}
	}

	return &Paths{
		ConfigDir: filepath.Join(envOr("XDG_CONFIG_HOME", filepath.Join(home, ".config")), appName),
		DataDir:   filepath.Join(envOr("XDG_DATA_HOME", filepath.Join(home, ".local", "share")), appName),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// DatabaseFile returns the path to the default SQLite database.
func (p *Paths) DatabaseFile() string {
	return filepath.Join(p.DataDir, "perf.db")
}

// SchemasDir returns the default directory of suite definition files.
func (p *Paths) SchemasDir() string {
	return filepath.Join(p.ConfigDir, "schemas")
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return os.Getenv("USERPROFILE")
		}
		return os.Getenv("HOME")
	}
	return home
}
