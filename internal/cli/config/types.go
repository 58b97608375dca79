// Package config provides configuration management for the rostermap CLI.
//
// Values are merged from built-in defaults, a rostermap.yaml file,
// ROSTERMAP_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"slices"
	"strings"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// Config holds all CLI configuration options.
type Config struct {
	StatePath       string                   `koanf:"state_path"`
	Station         string                   `koanf:"station"`
	FallbackStation string                   `koanf:"fallback_station"`
	Separators      []string                 `koanf:"separators"`
	OutputFormat    string                   `koanf:"output"`
	OutputDir       string                   `koanf:"output_dir"`
	DownloadMode    string                   `koanf:"download_mode"`
	Workers         int                      `koanf:"workers"`
	LogLevel        string                   `koanf:"log_level"`
	LogFormat       string                   `koanf:"log_format"`
	Verbose         bool                     `koanf:"verbose"`
	Stations        map[string]StationConfig `koanf:"stations"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// StationConfig holds per-station overrides.
type StationConfig struct {
	Separators      []string `koanf:"separators"`
	FallbackStation string   `koanf:"fallback_station"`
}

// Default configuration values.
const (
	DefaultStateFile    = ".rostermap/state.db"
	DefaultStation      = "global"
	DefaultOutput       = "auto" // TTY=text, otherwise markdown
	DefaultOutputDir    = "mapped"
	DefaultDownloadMode = "styled"
	DefaultWorkers      = 4
	DefaultLogLevel     = "warn"
	DefaultLogFormat    = "text"
)

// Download modes.
const (
	DownloadStyled = "styled"
	DownloadPlain  = "plain"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		StatePath:       DefaultStateFile,
		Station:         DefaultStation,
		FallbackStation: DefaultStation,
		Separators:      slices.Clone(roster.DefaultSeparators),
		OutputFormat:    DefaultOutput,
		OutputDir:       DefaultOutputDir,
		DownloadMode:    DefaultDownloadMode,
		Workers:         DefaultWorkers,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
	}
}

// SeparatorsFor returns the token separators used for a station.
func (c *Config) SeparatorsFor(station string) []string {
	if sc, ok := c.station(station); ok && len(sc.Separators) > 0 {
		return sc.Separators
	}
	return c.Separators
}

// FallbackFor returns the fallback station consulted when a station has no
// mapping of its own.
func (c *Config) FallbackFor(station string) string {
	if sc, ok := c.station(station); ok && sc.FallbackStation != "" {
		return sc.FallbackStation
	}
	return c.FallbackStation
}

func (c *Config) station(code string) (StationConfig, bool) {
	for k, v := range c.Stations {
		if strings.EqualFold(k, strings.TrimSpace(code)) {
			return v, true
		}
	}
	return StationConfig{}, false
}
