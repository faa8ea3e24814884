package preflight

import (
	"pitchbatch/internal/config"
)

// MinFreeBytes is the free space below which the output disk check fails.
const MinFreeBytes uint64 = 1 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes every applicable check for cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckWritableTarget("Output directory", cfg.Encode.OutputDir),
		CheckWritableTarget("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Output disk space", cfg.Encode.OutputDir, MinFreeBytes),
	}

	requirements := []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Required for encoding"},
		{
			Name:        "Pitch detector",
			Command:     cfg.Pitch.DetectorBinary,
			Description: "Required for automatic pitch detection",
			Optional:    !cfg.Encode.AutoDetectPitch,
		},
	}
	return append(results, CheckBinaries(requirements)...)
}
