package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", c.Log.Level))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console or json)", c.Log.Format))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("SERVER_PORT must be between 1 and 65535, got: %d", c.Server.Port))
	}

	if c.Database.URL != "" && c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errors = append(errors, fmt.Sprintf("DATABASE_MAX_IDLE_CONNS (%d) exceeds DATABASE_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns))
	}

	if c.Engine.Workers < 1 {
		errors = append(errors, fmt.Sprintf("ENGINE_WORKERS must be >= 1, got: %d", c.Engine.Workers))
	}
	if c.Engine.JPEGQuality < 1 || c.Engine.JPEGQuality > 100 {
		errors = append(errors, fmt.Sprintf("JPEG_QUALITY must be between 1 and 100, got: %d", c.Engine.JPEGQuality))
	}

	if err := c.Thresholds.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}
