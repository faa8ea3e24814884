package pitch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestParseTrackMedian(t *testing.T) {
	input := strings.Join([]string{
		"0.000000 0.000000",
		"0.011610 438.5",
		"0.023220 441.0",
		"garbage",
		"0.034830 nan",
		"0.046440 445.0",
		"0.058050 300.0",
	}, "\n")
	got, err := ParseTrack(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if want := (438.5 + 441.0) / 2; got != want {
		t.Fatalf("ParseTrack = %v, want %v", got, want)
	}
}

func TestParseTrackNoVoicedFrames(t *testing.T) {
	_, err := ParseTrack(strings.NewReader("0.0 0.0\n0.1 -1\n"))
	if !errors.Is(err, ErrNoPitch) {
		t.Fatalf("expected ErrNoPitch, got %v", err)
	}
}

func TestCommandDetectorRunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	stub := filepath.Join(dir, "tracker")
	script := "#!/bin/sh\necho '0.0 430'\necho '0.1 432'\necho '0.2 434'\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	got, err := CommandDetector{Binary: stub}.DetectPitch(context.Background(), "/music/a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if got != 432 {
		t.Fatalf("DetectPitch = %v, want 432", got)
	}
}

func TestCommandDetectorReportsFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	stub := filepath.Join(dir, "tracker")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\necho 'cannot open' >&2\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	_, err := CommandDetector{Binary: stub}.DetectPitch(context.Background(), "/music/a.wav")
	if err == nil || !strings.Contains(err.Error(), "cannot open") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}
