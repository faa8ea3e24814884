package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"pitchbatch/internal/jobs"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type jobView struct {
	Index         int      `json:"index"`
	Source        string   `json:"source"`
	Relative      string   `json:"relative"`
	Destination   string   `json:"destination"`
	Status        string   `json:"status"`
	DetectedPitch *float64 `json:"detected_pitch,omitempty"`
	Error         string   `json:"error,omitempty"`
	DurationMS    int64    `json:"duration_ms,omitempty"`
}

type runSummaryView struct {
	Jobs   []jobView      `json:"jobs"`
	Counts map[string]int `json:"counts"`
}

func newJobViews(list []jobs.Job) []jobView {
	views := make([]jobView, 0, len(list))
	for _, job := range list {
		view := jobView{
			Index:       job.Index,
			Source:      job.SourcePath,
			Relative:    job.RelativePath,
			Destination: job.DestinationPath,
			Status:      string(job.Status),
			Error:       job.Error,
			DurationMS:  job.Duration().Milliseconds(),
		}
		if job.HasDetectedPitch {
			pitch := job.DetectedPitch
			view.DetectedPitch = &pitch
		}
		views = append(views, view)
	}
	return views
}

func newRunSummaryView(list []jobs.Job) runSummaryView {
	counts := make(map[string]int)
	for _, job := range list {
		counts[string(job.Status)]++
	}
	return runSummaryView{Jobs: newJobViews(list), Counts: counts}
}
