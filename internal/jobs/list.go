package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInvalidTransition is returned for edges outside the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownJob is returned for indexes outside the list.
	ErrUnknownJob = errors.New("unknown job")
)

const defaultMaxEvents = 1000

// Event describes one change to the list. Add events have From == To ==
// StatusNone.
type Event struct {
	Seq       int64
	Timestamp time.Time
	Index     int
	From      Status
	To        Status
	Job       Job
}

// Observer receives events in sequence order.
type Observer func(Event)

// List is the thread-safe job collection. All writes are serialized by one
// lock; observers run while the lock is held and must not call back into the
// List.
type List struct {
	mu        sync.Mutex
	jobs      []*Job
	nextSeq   int64
	maxEvents int
	events    []Event
	observers map[int]Observer
	nextObs   int
	now       func() time.Time
}

// NewList returns an empty list that buffers at most maxEvents events for
// EventsSince. Values <= 0 use a default.
func NewList(maxEvents int) *List {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &List{
		maxEvents: maxEvents,
		observers: make(map[int]Observer),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers an observer and returns a function removing it.
func (l *List) Subscribe(obs Observer) func() {
	if obs == nil {
		return func() {}
	}
	l.mu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = obs
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.observers, id)
		l.mu.Unlock()
	}
}

// Reset discards every job. Buffered events are kept so pollers never see
// sequence numbers go backwards.
func (l *List) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = nil
}

// Add appends a queued job and returns its index.
func (l *List) Add(sourcePath, relativePath, destinationPath string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	job := &Job{
		Index:           len(l.jobs),
		SourcePath:      sourcePath,
		RelativePath:    relativePath,
		DestinationPath: destinationPath,
		Status:          StatusNone,
	}
	l.jobs = append(l.jobs, job)
	l.publishLocked(job, StatusNone, StatusNone)
	return job.Index
}

// Transition moves job index to status to. mutate, when non-nil, edits the
// job under the same lock before the event is published.
func (l *List) Transition(index int, to Status, mutate func(*Job)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, err := l.getLocked(index)
	if err != nil {
		return err
	}
	from := job.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: job %d %s -> %s", ErrInvalidTransition, index, from, to)
	}
	if mutate != nil {
		mutate(job)
	}
	job.Index = index
	job.Status = to
	now := l.now()
	switch {
	case to == StatusProcessing:
		job.StartedAt = now
	case to.Terminal():
		job.FinishedAt = now
	}
	l.publishLocked(job, from, to)
	return nil
}

// SetDestination updates the destination of a job that is still processing.
func (l *List) SetDestination(index int, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, err := l.getLocked(index)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %d already %s", ErrInvalidTransition, index, job.Status)
	}
	job.DestinationPath = path
	return nil
}

// Get returns a snapshot of one job.
func (l *List) Get(index int) (Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, err := l.getLocked(index)
	if err != nil {
		return Job{}, err
	}
	return *job, nil
}

// Snapshot returns copies of every job in display order.
func (l *List) Snapshot() []Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Job, len(l.jobs))
	for i, job := range l.jobs {
		out[i] = *job
	}
	return out
}

// Len returns the number of recorded jobs.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

// Counts returns the number of jobs per status.
func (l *List) Counts() map[Status]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[Status]int, len(allStatuses))
	for _, job := range l.jobs {
		counts[job.Status]++
	}
	return counts
}

// Processing returns the number of jobs currently processing.
func (l *List) Processing() int {
	return l.Counts()[StatusProcessing]
}

// AllTerminal reports whether every recorded job has finished.
func (l *List) AllTerminal() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, job := range l.jobs {
		if !job.Status.Terminal() {
			return false
		}
	}
	return true
}

// EventsSince returns buffered events with a sequence greater than seq.
func (l *List) EventsSince(seq int64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, len(l.events))
	for _, ev := range l.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

func (l *List) getLocked(index int) (*Job, error) {
	if index < 0 || index >= len(l.jobs) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownJob, index)
	}
	return l.jobs[index], nil
}

func (l *List) publishLocked(job *Job, from, to Status) {
	l.nextSeq++
	ev := Event{
		Seq:       l.nextSeq,
		Timestamp: l.now(),
		Index:     job.Index,
		From:      from,
		To:        to,
		Job:       *job,
	}
	l.events = append(l.events, ev)
	if len(l.events) > l.maxEvents {
		trim := len(l.events) - l.maxEvents
		l.events = append([]Event(nil), l.events[trim:]...)
	}
	for _, obs := range l.observers {
		obs(ev)
	}
}
