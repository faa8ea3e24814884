package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"pitchbatch/internal/config"
	"pitchbatch/internal/conflict"
	"pitchbatch/internal/settings"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, ".local", "share", "pitchbatch"); cfg.Paths.StateDir != want {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, want)
	}
	if want := filepath.Join(tempHome, "Music", "pitchbatch"); cfg.Encode.OutputDir != want {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Encode.OutputDir, want)
	}
	if cfg.FileExistsAction() != conflict.ActionAsk {
		t.Fatalf("unexpected default action %q", cfg.FileExistsAction())
	}
	if cfg.FFmpegBinary() != "ffmpeg" {
		t.Fatalf("unexpected ffmpeg binary %q", cfg.FFmpegBinary())
	}
	if cfg.PitchCachePath() != filepath.Join(cfg.Paths.StateDir, "pitch_cache.db") {
		t.Fatalf("unexpected cache path %q", cfg.PitchCachePath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "pitchbatch.toml")

	type payload struct {
		Encode struct {
			OutputDir        string   `toml:"output_dir"`
			Format           string   `toml:"format"`
			PitchTo          float64  `toml:"pitch_to"`
			MaxThreads       int      `toml:"max_threads"`
			FileExistsAction string   `toml:"file_exists_action"`
			Extensions       []string `toml:"extensions"`
		} `toml:"encode"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Encode.OutputDir = filepath.Join(tempDir, "out")
	custom.Encode.Format = "FLAC"
	custom.Encode.PitchTo = 415.3
	custom.Encode.MaxThreads = 8
	custom.Encode.FileExistsAction = "Rename"
	custom.Encode.Extensions = []string{".WAV", "wav", " flac "}
	custom.Logging.Format = "JSON"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution %q exists=%v", resolved, exists)
	}

	s := cfg.EncodeSettings()
	if s.Format != settings.FormatFLAC {
		t.Fatalf("expected normalized format flac, got %q", s.Format)
	}
	if s.PitchTo != 415.3 || s.PitchFrom != 440 {
		t.Fatalf("unexpected pitch settings %v -> %v", s.PitchFrom, s.PitchTo)
	}
	if s.MaxThreads != 8 {
		t.Fatalf("unexpected max threads %d", s.MaxThreads)
	}
	if cfg.FileExistsAction() != conflict.ActionRename {
		t.Fatalf("unexpected action %q", cfg.FileExistsAction())
	}
	if strings.Join(cfg.Encode.Extensions, ",") != "wav,flac" {
		t.Fatalf("unexpected extensions %v", cfg.Encode.Extensions)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalidEncodeSettings(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.toml")
	content := "[encode]\noutput_dir = \"/tmp/out\"\nmax_threads = 0\nspeed = -1.0\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"max_threads", "speed"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error %v", want, err)
		}
	}
}

func TestLoadRejectsUnknownAction(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.toml")
	content := "[encode]\nfile_exists_action = \"merge\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", t.TempDir())
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "file_exists_action") {
		t.Fatalf("expected file_exists_action error, got %v", err)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	def := config.Default()
	if cfg.Encode.MaxThreads != def.Encode.MaxThreads || cfg.Encode.Format != def.Encode.Format {
		t.Fatalf("sample diverges from defaults: %+v", cfg.Encode)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := config.Default()
	cfg.Encode.ExtraArgs = []string{"-map_metadata", "0"}
	clone := cfg.Clone()
	clone.Encode.Extensions[0] = "changed"
	clone.Encode.ExtraArgs[0] = "changed"
	if cfg.Encode.Extensions[0] == "changed" || cfg.Encode.ExtraArgs[0] == "changed" {
		t.Fatal("Clone shares slices with the original")
	}
}
