package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"pitchbatch/internal/conflict"
	"pitchbatch/internal/fileutil"
	"pitchbatch/internal/gate"
	"pitchbatch/internal/jobs"
	"pitchbatch/internal/logging"
	"pitchbatch/internal/settings"
	"pitchbatch/internal/source"
)

var (
	// ErrRunActive is returned when Run is called while a run is in progress.
	ErrRunActive = errors.New("a batch run is already active")
	// ErrInvalidSettings wraps settings validation failures.
	ErrInvalidSettings = errors.New("invalid encode settings")
)

// gateCeiling is the gate's hard maximum; twice the largest thread count.
const gateCeiling = 2 * settings.MaxThreadsLimit

const defaultMaxThreads = 4

// Encoder transforms one source into one destination.
type Encoder interface {
	Encode(ctx context.Context, src, dst string, s settings.EncodeSettings, pitch float64) error
}

// PitchDetector measures the fundamental frequency of a source.
type PitchDetector interface {
	DetectPitch(ctx context.Context, path string) (float64, error)
}

// FileSystem answers the questions the runner asks about destinations.
type FileSystem interface {
	Exists(path string) bool
	Remove(path string) error
	MkdirAll(dir string) error
}

// Options wires a Runner's collaborators.
type Options struct {
	Encoder  Encoder
	Detector PitchDetector
	FS       FileSystem
	Asker    conflict.Asker
	Logger   *slog.Logger
	// MaxThreads is the initial gate capacity before the first run.
	MaxThreads int
	// MaxEvents bounds the job event buffer.
	MaxEvents int
}

// Runner owns the job list and the capacity gate. One run executes at a time.
type Runner struct {
	encoder  Encoder
	detector PitchDetector
	fs       FileSystem
	asker    conflict.Asker
	logger   *slog.Logger

	list *jobs.List
	gate *gate.Gate

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	maxThreads int
}

// New validates opts and returns an idle runner.
func New(opts Options) (*Runner, error) {
	if opts.Encoder == nil {
		return nil, errors.New("batch runner requires an encoder")
	}
	if opts.FS == nil {
		opts.FS = fileutil.OS{}
	}
	if opts.MaxThreads == 0 {
		opts.MaxThreads = defaultMaxThreads
	}
	if err := settings.ValidateThreads(opts.MaxThreads); err != nil {
		return nil, err
	}
	g, err := gate.New(opts.MaxThreads, gateCeiling)
	if err != nil {
		return nil, err
	}
	return &Runner{
		encoder:    opts.Encoder,
		detector:   opts.Detector,
		fs:         opts.FS,
		asker:      opts.Asker,
		logger:     logging.NewComponentLogger(opts.Logger, "batch"),
		list:       jobs.NewList(opts.MaxEvents),
		gate:       g,
		maxThreads: opts.MaxThreads,
	}, nil
}

// List exposes the live job list for observers.
func (r *Runner) List() *jobs.List {
	return r.list
}

// Jobs returns a snapshot of the current run's jobs in display order.
func (r *Runner) Jobs() []jobs.Job {
	return r.list.Snapshot()
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// MaxThreads returns the current concurrency bound.
func (r *Runner) MaxThreads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxThreads
}

// SetMaxThreads changes the concurrency bound. During a run it takes effect
// immediately: raising admits waiting jobs, lowering stops admissions until
// running jobs have drained below the new bound.
func (r *Runner) SetMaxThreads(n int) error {
	if err := settings.ValidateThreads(n); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.gate.Resize(n); err != nil {
		return err
	}
	if n != r.maxThreads {
		r.logger.Info("max threads changed",
			logging.String(logging.FieldEventType, "max_threads_changed"),
			logging.Int("from", r.maxThreads),
			logging.Int("to", n),
			logging.Bool("running", r.running),
		)
	}
	r.maxThreads = n
	return nil
}

// Cancel stops the active run. It never fails and is a no-op when idle.
func (r *Runner) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Plan previews the jobs Run would create for sources without running them.
func Plan(sources []source.Node, s settings.EncodeSettings) []jobs.Job {
	entries := source.Expand(sources)
	out := make([]jobs.Job, 0, len(entries))
	for i, entry := range entries {
		out = append(out, jobs.Job{
			Index:           i,
			SourcePath:      entry.SourcePath,
			RelativePath:    entry.RelativePath,
			DestinationPath: Destination(s, entry.RelativePath),
			Status:          jobs.StatusNone,
		})
	}
	return out
}

// Destination maps a relative source path into the output directory with
// the output format's extension.
func Destination(s settings.EncodeSettings, relativePath string) string {
	return filepath.Join(s.OutputDir, fileutil.ReplaceExt(relativePath, s.Format.Extension()))
}

// Run executes every source and returns once all recorded jobs are
// terminal. Per-job failures are reported through job status, not the
// returned error. Invalid settings fail before the job list is touched.
func (r *Runner) Run(ctx context.Context, sources []source.Node, s settings.EncodeSettings, policy conflict.Action) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if s.AutoDetectPitch && r.detector == nil {
		return fmt.Errorf("%w: auto pitch detection requires a pitch detector", ErrInvalidSettings)
	}
	resolver, err := conflict.NewResolver(policy, r.asker, r.fs.Exists)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runID := uuid.NewString()
	runCtx = logging.WithRunID(runCtx, runID)

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunActive
	}
	if err := r.gate.Resize(s.MaxThreads); err != nil {
		r.mu.Unlock()
		return err
	}
	r.running = true
	r.cancel = cancel
	r.maxThreads = s.MaxThreads
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
	}()

	snapshot := s.Clone()
	entries := source.Expand(sources)
	r.list.Reset()

	run := &runState{
		runner:   r,
		ctx:      runCtx,
		cancel:   cancel,
		settings: snapshot,
		resolver: resolver,
		logger:   logging.WithContext(runCtx, r.logger),
	}
	start := time.Now()
	run.logger.Info("batch run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("sources", len(entries)),
		logging.Int("max_threads", snapshot.MaxThreads),
		logging.String("format", string(snapshot.Format)),
		logging.String("file_exists_action", string(resolver.Policy())),
		logging.Bool("auto_detect_pitch", snapshot.AutoDetectPitch),
		logging.Float64("pitch", snapshot.Pitch()),
	)

	run.dispatch(entries)
	run.wg.Wait()

	counts := r.list.Counts()
	run.logger.Info("batch run finished",
		logging.String(logging.FieldEventType, "run_finish"),
		logging.Int("jobs", r.list.Len()),
		logging.Int("completed", counts[jobs.StatusCompleted]),
		logging.Int("errors", counts[jobs.StatusError]),
		logging.Int("cancelled", counts[jobs.StatusCancelled]),
		logging.Int("skipped", counts[jobs.StatusSkip]),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// runState is the per-run context shared by the dispatcher and its workers.
type runState struct {
	runner   *Runner
	ctx      context.Context
	cancel   context.CancelFunc
	settings settings.EncodeSettings
	resolver *conflict.Resolver
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func (rs *runState) dispatch(entries []source.Entry) {
	r := rs.runner
	for _, entry := range entries {
		dest := Destination(rs.settings, entry.RelativePath)
		index := r.list.Add(entry.SourcePath, entry.RelativePath, dest)

		err := r.gate.Acquire(rs.ctx)
		if err == nil && rs.ctx.Err() != nil {
			r.gate.Release()
			err = rs.ctx.Err()
		}
		if err != nil {
			rs.finish(index, jobs.StatusCancelled, nil)
			rs.logger.Info("dispatch stopped",
				logging.String(logging.FieldEventType, "dispatch_cancelled"),
				logging.Int(logging.FieldJobIndex, index),
			)
			return
		}

		rs.wg.Add(1)
		go func() {
			defer rs.wg.Done()
			defer r.gate.Release()
			rs.process(index, entry, dest)
		}()
	}
}

func (rs *runState) process(index int, entry source.Entry, dest string) {
	r := rs.runner
	logger := rs.logger.With(
		logging.Int(logging.FieldJobIndex, index),
		logging.String(logging.FieldSource, entry.SourcePath),
	)

	if rs.ctx.Err() != nil {
		rs.finish(index, jobs.StatusCancelled, nil)
		return
	}
	if err := r.list.Transition(index, jobs.StatusProcessing, nil); err != nil {
		logging.WarnWithContext(logger, "job transition rejected", "job_transition_rejected", logging.Error(err))
		return
	}

	var outcome conflict.Outcome
	if err := safely(func() error {
		var resolveErr error
		outcome, resolveErr = rs.resolver.Resolve(rs.ctx, dest)
		return resolveErr
	}); err != nil {
		rs.fail(logger, index, err, "conflict resolution failed")
		return
	}
	switch outcome.Choice {
	case conflict.ChooseCancel:
		logger.Info("run cancelled while resolving destination",
			logging.String(logging.FieldEventType, "conflict_cancel"),
			logging.String(logging.FieldDestination, dest),
		)
		rs.cancel()
		rs.finish(index, jobs.StatusCancelled, nil)
		return
	case conflict.ChooseSkip:
		logger.Info("destination exists, skipping",
			logging.String(logging.FieldEventType, "job_skip"),
			logging.String(logging.FieldDestination, dest),
		)
		rs.finish(index, jobs.StatusSkip, nil)
		return
	}
	dest = outcome.Path
	defer rs.resolver.Release(dest)
	if err := r.list.SetDestination(index, dest); err != nil {
		logging.WarnWithContext(logger, "job destination update rejected", "job_destination_rejected", logging.Error(err))
	}
	logger = logger.With(logging.String(logging.FieldDestination, dest))

	pitch := rs.settings.Pitch()
	var detected *float64
	if rs.settings.AutoDetectPitch {
		var freq float64
		err := safely(func() error {
			var detectErr error
			freq, detectErr = r.detector.DetectPitch(rs.ctx, entry.SourcePath)
			return detectErr
		})
		switch {
		case err != nil && rs.ctx.Err() != nil:
			rs.finish(index, jobs.StatusCancelled, nil)
			return
		case err != nil:
			logging.WarnWithContext(logger, "pitch detection failed, using configured source pitch", "pitch_detect_failed",
				logging.Error(err),
				logging.Float64("pitch_from", rs.settings.PitchFrom),
				logging.String(logging.FieldErrorHint, "check the pitch detector binary and the source file"),
				logging.String(logging.FieldImpact, "file is shifted by the global pitch ratio"),
			)
		default:
			detected = &freq
			pitch = rs.settings.PitchFor(freq)
			logger.Debug("pitch detected",
				logging.String(logging.FieldEventType, "pitch_detected"),
				logging.Float64("frequency", freq),
				logging.Float64("ratio", pitch),
			)
		}
	}

	if err := r.fs.MkdirAll(filepath.Dir(dest)); err != nil {
		rs.fail(logger, index, fmt.Errorf("create output directory: %w", err), "output directory unavailable")
		return
	}

	err := safely(func() error {
		return r.encoder.Encode(rs.ctx, entry.SourcePath, dest, rs.settings, pitch)
	})
	status := jobs.StatusCompleted
	switch {
	case err == nil:
	case rs.ctx.Err() != nil:
		status = jobs.StatusCancelled
	default:
		status = jobs.StatusError
	}
	if status != jobs.StatusCompleted {
		rs.removePartial(logger, dest, outcome)
	}

	rs.finish(index, status, func(job *jobs.Job) {
		if detected != nil {
			job.DetectedPitch = *detected
			job.HasDetectedPitch = true
		}
		if status == jobs.StatusError {
			job.Error = err.Error()
		}
	})
	switch status {
	case jobs.StatusError:
		logging.WarnWithContext(logger, "job failed", "job_error",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the source file and the ffmpeg output above"),
			logging.String(logging.FieldImpact, "file was not converted"),
		)
	default:
		logger.Info("job finished",
			logging.String(logging.FieldEventType, "job_finish"),
			logging.String(logging.FieldStatus, string(status)),
		)
	}
}

// removePartial deletes an unfinished destination unless it existed before
// this job chose to overwrite it. The job still owns dest, so no other job
// of the run is writing it.
func (rs *runState) removePartial(logger *slog.Logger, dest string, outcome conflict.Outcome) {
	if outcome.Existed && outcome.Choice == conflict.ChooseOverwrite {
		return
	}
	if err := rs.runner.fs.Remove(dest); err != nil {
		logging.WarnWithContext(logger, "failed to remove partial output", "partial_output_remove_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the file manually"),
		)
	}
}

func (rs *runState) fail(logger *slog.Logger, index int, err error, msg string) {
	if rs.ctx.Err() != nil {
		rs.finish(index, jobs.StatusCancelled, nil)
		return
	}
	rs.finish(index, jobs.StatusError, func(job *jobs.Job) { job.Error = err.Error() })
	logging.WarnWithContext(logger, msg, "job_error", logging.Error(err))
}

func (rs *runState) finish(index int, status jobs.Status, mutate func(*jobs.Job)) {
	if err := rs.runner.list.Transition(index, status, mutate); err != nil {
		logging.WarnWithContext(rs.logger, "job transition rejected", "job_transition_rejected",
			logging.Int(logging.FieldJobIndex, index),
			logging.Error(err),
		)
	}
}

// safely runs fn and converts a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
