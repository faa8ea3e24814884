package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pitchbatch/internal/batch"
	"pitchbatch/internal/config"
	"pitchbatch/internal/conflict"
	"pitchbatch/internal/ffmpeg"
	"pitchbatch/internal/jobs"
	"pitchbatch/internal/logging"
	"pitchbatch/internal/pitch"
	"pitchbatch/internal/pitchcache"
	"pitchbatch/internal/preflight"
	"pitchbatch/internal/runlock"
	"pitchbatch/internal/source"
)

type encodeFlags struct {
	output     string
	format     string
	pitchFrom  float64
	pitchTo    float64
	speed      float64
	rate       float64
	maxThreads int
	autoPitch  bool
	onExists   string
}

func (f *encodeFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", "", "Output directory")
	flags.StringVarP(&f.format, "format", "f", "", "Output format (mp3, flac, wav, ogg, m4a, opus)")
	flags.Float64Var(&f.pitchFrom, "pitch-from", 0, "Source reference pitch in Hz")
	flags.Float64Var(&f.pitchTo, "pitch-to", 0, "Target reference pitch in Hz")
	flags.Float64Var(&f.speed, "speed", 0, "Tempo multiplier applied without changing pitch")
	flags.Float64Var(&f.rate, "rate", 0, "Playback rate multiplier applied to tempo and pitch")
	flags.IntVarP(&f.maxThreads, "max-threads", "j", 0, "Maximum concurrent encodes")
	flags.BoolVar(&f.autoPitch, "auto-pitch", false, "Detect each file's source pitch")
	flags.StringVar(&f.onExists, "on-exists", "", "Existing destination policy (ask, overwrite, skip, rename)")
}

// apply returns a copy of base with every flag the user set.
func (f *encodeFlags) apply(cmd *cobra.Command, base *config.Config) (*config.Config, error) {
	cfg := base.Clone()
	changed := cmd.Flags().Changed
	if changed("output") {
		expanded, err := config.ExpandPath(f.output)
		if err != nil {
			return nil, fmt.Errorf("resolve output directory: %w", err)
		}
		cfg.Encode.OutputDir = expanded
	}
	if changed("format") {
		cfg.Encode.Format = strings.ToLower(strings.TrimSpace(f.format))
	}
	if changed("pitch-from") {
		cfg.Encode.PitchFrom = f.pitchFrom
	}
	if changed("pitch-to") {
		cfg.Encode.PitchTo = f.pitchTo
	}
	if changed("speed") {
		cfg.Encode.Speed = f.speed
	}
	if changed("rate") {
		cfg.Encode.Rate = f.rate
	}
	if changed("max-threads") {
		cfg.Encode.MaxThreads = f.maxThreads
	}
	if changed("auto-pitch") {
		cfg.Encode.AutoDetectPitch = f.autoPitch
	}
	if changed("on-exists") {
		cfg.Encode.FileExistsAction = strings.ToLower(strings.TrimSpace(f.onExists))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags encodeFlags
	var jsonOutput bool
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Pitch-shift and encode files and folders",
		Long: "Encode every file and every matching file inside each folder.\n" +
			"Ctrl-C cancels the run and waits for running encodes to stop.\n" +
			"SIGUSR1 and SIGUSR2 raise and lower the concurrency bound by one.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := flags.apply(cmd, base)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return runBatch(cmd, cfg, logger, args, jsonOutput, skipChecks)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the job summary as JSON")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Start without running preflight checks")
	return cmd
}

func runBatch(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, paths []string, jsonOutput, skipChecks bool) error {
	stderr := cmd.ErrOrStderr()

	if !skipChecks {
		if failed := preflight.Failed(preflight.RunAll(cfg)); len(failed) > 0 {
			for _, r := range failed {
				fmt.Fprintln(stderr, renderStatusLine(r.Name, statusError, r.Detail, shouldColorize(stderr)))
			}
			return fmt.Errorf("preflight failed: %d check(s) did not pass", len(failed))
		}
	}

	lock, err := runlock.Acquire(cfg.Paths.StateDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	nodes, err := source.Scan(paths, cfg.Encode.Extensions)
	if err != nil {
		return err
	}
	total := source.Count(nodes)
	if total == 0 {
		fmt.Fprintln(stderr, "No matching audio files found")
		return nil
	}

	detector, closeDetector, err := buildDetector(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDetector()

	policy := cfg.FileExistsAction()
	var asker conflict.Asker
	if policy == conflict.ActionAsk {
		if isTerminal(cmd.InOrStdin()) {
			asker = newPromptAsker(cmd.InOrStdin(), stderr)
		} else {
			logging.WarnWithContext(logger, "stdin is not a terminal, existing destinations will be skipped", "ask_unavailable",
				logging.String(logging.FieldErrorHint, "pass --on-exists overwrite, skip, or rename"),
				logging.String(logging.FieldImpact, "existing files are left untouched"),
			)
			policy = conflict.ActionSkip
		}
	}

	s := cfg.EncodeSettings()
	runner, err := batch.New(batch.Options{
		Encoder:    ffmpeg.Encoder{Binary: cfg.FFmpegBinary(), Logger: logging.NewComponentLogger(logger, "ffmpeg")},
		Detector:   detector,
		Asker:      asker,
		Logger:     logger,
		MaxThreads: s.MaxThreads,
	})
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	watchThreadSignals(runCtx, runner, logger)

	if !jsonOutput {
		colorize := shouldColorize(stderr)
		done := 0
		unsubscribe := runner.List().Subscribe(func(ev jobs.Event) {
			if !ev.To.Terminal() {
				return
			}
			done++
			fmt.Fprintln(stderr, renderProgressLine(done, total, ev.Job, colorize))
		})
		defer unsubscribe()
	}

	if err := runner.Run(runCtx, nodes, s, policy); err != nil {
		return err
	}

	results := runner.Jobs()
	if jsonOutput {
		if err := writeJSON(cmd, newRunSummaryView(results)); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderJobTable(results))
		fmt.Fprintln(out, renderCounts(results))
	}

	if runCtx.Err() != nil {
		return context.Canceled
	}
	failed := 0
	for _, job := range results {
		if job.Status == jobs.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(results))
	}
	return nil
}

// buildDetector returns the pitch detector for cfg, or nil when automatic
// detection is off. The returned close function is always safe to call.
func buildDetector(cfg *config.Config, logger *slog.Logger) (batch.PitchDetector, func(), error) {
	noop := func() {}
	if !cfg.Encode.AutoDetectPitch {
		return nil, noop, nil
	}
	tracker := pitch.CommandDetector{Binary: cfg.Pitch.DetectorBinary, Args: cfg.Pitch.DetectorArgs}
	if !cfg.Pitch.CacheEnabled {
		return tracker, noop, nil
	}
	store, err := pitchcache.Open(cfg.PitchCachePath())
	if err != nil {
		if errors.Is(err, pitchcache.ErrSchemaMismatch) {
			return nil, noop, fmt.Errorf("%w (run 'pitchbatch cache clear --reset')", err)
		}
		return nil, noop, err
	}
	detector := pitchcache.Detector{
		Inner:  tracker,
		Store:  store,
		Logger: logging.NewComponentLogger(logger, "pitchcache"),
	}
	return detector, func() { _ = store.Close() }, nil
}
