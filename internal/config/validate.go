package config

import (
	"fmt"

	"pitchbatch/internal/conflict"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncode(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEncode() error {
	if err := c.EncodeSettings().Validate(); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if _, err := conflict.ParseAction(c.Encode.FileExistsAction); err != nil {
		return fmt.Errorf("encode.file_exists_action: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
