package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pitchbatch/internal/jobs"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

var titleCaser = cases.Title(language.Und)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// statusLabel renders a job status for people, e.g. "Completed".
func statusLabel(status jobs.Status) string {
	if status == jobs.StatusNone {
		return "Queued"
	}
	return titleCaser.String(string(status))
}

func renderJobTable(list []jobs.Job) string {
	headers := []string{"#", "Source", "Destination", "Status", "Pitch", "Time", "Error"}
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		pitch := "-"
		if job.HasDetectedPitch {
			pitch = fmt.Sprintf("%.1f Hz", job.DetectedPitch)
		}
		elapsed := "-"
		if d := job.Duration(); d > 0 {
			elapsed = d.Round(10 * time.Millisecond).String()
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", job.Index+1),
			job.RelativePath,
			job.DestinationPath,
			statusLabel(job.Status),
			pitch,
			elapsed,
			truncate(job.Error, 60),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft})
}

func renderCounts(list []jobs.Job) string {
	counts := make(map[jobs.Status]int)
	for _, job := range list {
		counts[job.Status]++
	}
	parts := make([]string, 0, len(counts))
	for _, status := range jobs.AllStatuses() {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", statusLabel(status), n))
		}
	}
	if len(parts) == 0 {
		return "No jobs"
	}
	return strings.Join(parts, "  ")
}

func truncate(value string, limit int) string {
	value = strings.ReplaceAll(strings.TrimSpace(value), "\n", " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
