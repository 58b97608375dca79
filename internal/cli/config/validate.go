package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if strings.TrimSpace(c.Station) == "" {
		return fmt.Errorf("station is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("invalid output format %q (expected auto, text, markdown or json)", c.OutputFormat)
	}

	switch c.DownloadMode {
	case DownloadStyled, DownloadPlain:
	default:
		return fmt.Errorf("invalid download_mode %q (expected styled or plain)", c.DownloadMode)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (expected text or json)", c.LogFormat)
	}

	for i, sep := range c.Separators {
		if sep == "" {
			return fmt.Errorf("separators[%d] is empty", i)
		}
	}
	for code, sc := range c.Stations {
		for i, sep := range sc.Separators {
			if sep == "" {
				return fmt.Errorf("stations.%s.separators[%d] is empty", code, i)
			}
		}
	}
	return nil
}
