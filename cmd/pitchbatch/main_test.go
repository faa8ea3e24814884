package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pitchbatch/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	outputDir  string
	stateDir   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	stub := filepath.Join(base, "bin", "ffmpeg")
	script := "#!/bin/sh\nfor arg; do last=$arg; done\n: > \"$last\"\n"
	if err := os.MkdirAll(filepath.Dir(stub), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "pitchbatch.toml"),
		outputDir:  filepath.Join(base, "out"),
		stateDir:   filepath.Join(base, "state"),
	}
	content := strings.Join([]string{
		"[paths]",
		"state_dir = " + quote(env.stateDir),
		"log_dir = " + quote(filepath.Join(base, "logs")),
		"[encode]",
		"output_dir = " + quote(env.outputDir),
		"file_exists_action = \"overwrite\"",
		"max_threads = 2",
		"[ffmpeg]",
		"binary = " + quote(stub),
		"[logging]",
		"level = \"error\"",
		"",
	}, "\n")
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func writeAlbum(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	album := filepath.Join(env.baseDir, "music", "album")
	testsupport.WriteTree(t, album, "01.wav", filepath.Join("disc2", "02.FLAC"), "cover.jpg")
	return album
}

func TestPlanCommandListsDestinations(t *testing.T) {
	env := setupCLITestEnv(t)
	album := writeAlbum(t, env)

	out, _, err := runCLI(t, []string{"plan", "--format", "ogg", album}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, filepath.Join(env.outputDir, "album", "01.ogg"))
	requireContains(t, out, filepath.Join(env.outputDir, "album", "disc2", "02.ogg"))
	requireContains(t, out, "2 job(s)")
	if strings.Contains(out, "cover") {
		t.Fatalf("non-audio file planned:\n%s", out)
	}
}

func TestPlanCommandRejectsInvalidOverride(t *testing.T) {
	env := setupCLITestEnv(t)
	album := writeAlbum(t, env)
	_, _, err := runCLI(t, []string{"plan", "--max-threads", "0", album}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "max_threads") {
		t.Fatalf("expected max_threads error, got %v", err)
	}
}

func TestRunCommandEncodesWithJSONSummary(t *testing.T) {
	env := setupCLITestEnv(t)
	album := writeAlbum(t, env)

	out, _, err := runCLI(t, []string{"run", "--skip-checks", "--json", album}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary runSummaryView
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.Counts["completed"] != 2 || len(summary.Jobs) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, job := range summary.Jobs {
		if _, err := os.Stat(job.Destination); err != nil {
			t.Fatalf("expected output %s: %v", job.Destination, err)
		}
	}
}

func TestRunCommandAskWithoutTerminalSkips(t *testing.T) {
	env := setupCLITestEnv(t)
	album := writeAlbum(t, env)
	existing := filepath.Join(env.outputDir, "album", "01.mp3")
	testsupport.WriteFile(t, existing, 4)

	out, stderr, err := runCLI(t, []string{"run", "--skip-checks", "--on-exists", "ask", album}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Skip: 1")
	requireContains(t, out, "Completed: 1")
	requireContains(t, stderr, "Skip")
	if info, err := os.Stat(existing); err != nil || info.Size() != 4 {
		t.Fatalf("existing destination was modified: %v", err)
	}
}

func TestRunCommandReportsFailures(t *testing.T) {
	env := setupCLITestEnv(t)
	album := writeAlbum(t, env)
	broken := filepath.Join(env.baseDir, "bin", "ffmpeg")
	if err := os.WriteFile(broken, []byte("#!/bin/sh\necho 'Invalid data found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"run", "--skip-checks", "--json", album}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "2 of 2 jobs failed") {
		t.Fatalf("expected failure summary, got %v", err)
	}
	var summary runSummaryView
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	for _, job := range summary.Jobs {
		if job.Status != "error" || !strings.Contains(job.Error, "Invalid data found") {
			t.Fatalf("unexpected job %+v", job)
		}
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.outputDir)
	requireContains(t, out, "max_threads = 2")
}

func TestCacheListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"cache", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, "Pitch cache is empty")

	out, _, err = runCLI(t, []string{"cache", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Removed 0 cached measurement(s)")
}
