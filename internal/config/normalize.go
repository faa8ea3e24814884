package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEncode()
	c.normalizePitch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Encode.OutputDir) != "" {
		if c.Encode.OutputDir, err = expandPath(c.Encode.OutputDir); err != nil {
			return fmt.Errorf("encode.output_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeEncode() {
	c.Encode.Format = strings.ToLower(strings.TrimSpace(c.Encode.Format))
	if c.Encode.Format == "" {
		c.Encode.Format = defaultFormat
	}
	c.Encode.FileExistsAction = strings.ToLower(strings.TrimSpace(c.Encode.FileExistsAction))
	if c.Encode.FileExistsAction == "" {
		c.Encode.FileExistsAction = defaultFileExistsAction
	}
	exts := make([]string, 0, len(c.Encode.Extensions))
	seen := make(map[string]struct{}, len(c.Encode.Extensions))
	for _, ext := range c.Encode.Extensions {
		normalized := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Encode.Extensions = exts
}

func (c *Config) normalizePitch() {
	c.Pitch.DetectorBinary = strings.TrimSpace(c.Pitch.DetectorBinary)
	if c.Pitch.DetectorBinary == "" {
		c.Pitch.DetectorBinary = defaultDetectorBinary
	}
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
