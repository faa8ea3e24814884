package jobs

import "time"

// Status represents the lifecycle of a job.
type Status string

const (
	StatusNone       Status = "none"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
	StatusSkip       Status = "skip"
)

var allStatuses = []Status{
	StatusNone,
	StatusProcessing,
	StatusCompleted,
	StatusError,
	StatusCancelled,
	StatusSkip,
}

// AllStatuses returns every status in display order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled, StatusSkip:
		return true
	default:
		return false
	}
}

type statusTransition struct {
	from Status
	to   Status
}

var allowedTransitions = map[statusTransition]struct{}{
	{from: StatusNone, to: StatusProcessing}:      {},
	{from: StatusNone, to: StatusCancelled}:       {},
	{from: StatusProcessing, to: StatusCompleted}: {},
	{from: StatusProcessing, to: StatusError}:     {},
	{from: StatusProcessing, to: StatusCancelled}: {},
	{from: StatusProcessing, to: StatusSkip}:      {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	_, ok := allowedTransitions[statusTransition{from: from, to: to}]
	return ok
}

// Job is a snapshot of one file-level unit of work. SourcePath is the
// identity; Index is the position in display order.
type Job struct {
	Index            int
	SourcePath       string
	RelativePath     string
	DestinationPath  string
	Status           Status
	DetectedPitch    float64
	HasDetectedPitch bool
	Error            string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Duration returns the processing time of a finished job.
func (j Job) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
