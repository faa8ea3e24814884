package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"pitchbatch/internal/conflict"
	"pitchbatch/internal/settings"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Encode contains the batch encode knobs. Everything except MaxThreads is
// snapshotted when a run starts.
type Encode struct {
	OutputDir        string   `toml:"output_dir"`
	Format           string   `toml:"format"`
	Bitrate          int      `toml:"bitrate"`
	SampleRate       int      `toml:"sample_rate"`
	AntiAlias        bool     `toml:"anti_alias"`
	AntiAliasLength  int      `toml:"anti_alias_length"`
	Speed            float64  `toml:"speed"`
	Rate             float64  `toml:"rate"`
	PitchFrom        float64  `toml:"pitch_from"`
	PitchTo          float64  `toml:"pitch_to"`
	MaxThreads       int      `toml:"max_threads"`
	Quality          int      `toml:"quality"`
	AutoDetectPitch  bool     `toml:"auto_detect_pitch"`
	FileExistsAction string   `toml:"file_exists_action"`
	Extensions       []string `toml:"extensions"`
	ExtraArgs        []string `toml:"extra_args"`
}

// Pitch contains configuration for per-file pitch detection.
type Pitch struct {
	DetectorBinary string   `toml:"detector_binary"`
	DetectorArgs   []string `toml:"detector_args"`
	CacheEnabled   bool     `toml:"cache_enabled"`
}

// FFmpeg contains configuration for the encoder binary.
type FFmpeg struct {
	Binary string `toml:"binary"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for pitchbatch.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Encode  Encode  `toml:"encode"`
	Pitch   Pitch   `toml:"pitch"`
	FFmpeg  FFmpeg  `toml:"ffmpeg"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pitchbatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PitchCachePath returns the SQLite pitch cache location.
func (c *Config) PitchCachePath() string {
	return filepath.Join(c.Paths.StateDir, "pitch_cache.db")
}

// FFmpegBinary returns the encoder executable name.
func (c *Config) FFmpegBinary() string {
	if b := strings.TrimSpace(c.FFmpeg.Binary); b != "" {
		return b
	}
	return defaultFFmpegBinary
}

// EncodeSettings converts the [encode] section into a run snapshot.
func (c *Config) EncodeSettings() settings.EncodeSettings {
	s := settings.EncodeSettings{
		Format:          settings.Format(c.Encode.Format),
		Bitrate:         c.Encode.Bitrate,
		SampleRate:      c.Encode.SampleRate,
		AntiAlias:       c.Encode.AntiAlias,
		AntiAliasLength: c.Encode.AntiAliasLength,
		Speed:           c.Encode.Speed,
		Rate:            c.Encode.Rate,
		PitchFrom:       c.Encode.PitchFrom,
		PitchTo:         c.Encode.PitchTo,
		MaxThreads:      c.Encode.MaxThreads,
		Quality:         c.Encode.Quality,
		AutoDetectPitch: c.Encode.AutoDetectPitch,
		OutputDir:       c.Encode.OutputDir,
		ExtraArgs:       c.Encode.ExtraArgs,
	}
	return s.Clone()
}

// FileExistsAction returns the configured conflict policy.
func (c *Config) FileExistsAction() conflict.Action {
	action, err := conflict.ParseAction(c.Encode.FileExistsAction)
	if err != nil {
		return conflict.Action(defaultFileExistsAction)
	}
	return action
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Encode.Extensions = cloneStrings(c.Encode.Extensions)
	out.Encode.ExtraArgs = cloneStrings(c.Encode.ExtraArgs)
	out.Pitch.DetectorArgs = cloneStrings(c.Pitch.DetectorArgs)
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
