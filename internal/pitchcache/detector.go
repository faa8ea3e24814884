// Package pitchcache stores detected source pitches in SQLite so repeated
// runs over the same library skip the pitch tracker.
package pitchcache

import (
	"context"
	"log/slog"
	"path/filepath"

	"pitchbatch/internal/fileutil"
	"pitchbatch/internal/logging"
)

// PitchDetector measures the pitch of one file.
type PitchDetector interface {
	DetectPitch(ctx context.Context, path string) (float64, error)
}

// Detector serves pitches from Store and falls back to Inner on a miss.
// Cache failures are logged and never fail detection.
type Detector struct {
	Inner  PitchDetector
	Store  *Store
	Logger *slog.Logger
}

// DetectPitch implements PitchDetector.
func (d Detector) DetectPitch(ctx context.Context, path string) (float64, error) {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if d.Store == nil {
		return d.Inner.DetectPitch(ctx, path)
	}

	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	fp, statErr := fileutil.Stat(key)
	if statErr == nil {
		freq, ok, err := d.Store.Lookup(ctx, key, fp)
		switch {
		case err != nil:
			logging.WarnWithContext(logger, "pitch cache lookup failed", "pitch_cache_lookup_failed",
				logging.String(logging.FieldSource, key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the pitch cache database if this persists"),
			)
		case ok:
			logger.Debug("pitch cache hit", logging.String(logging.FieldSource, key), logging.Float64("frequency", freq))
			return freq, nil
		}
	}

	freq, err := d.Inner.DetectPitch(ctx, path)
	if err != nil {
		return 0, err
	}
	if statErr == nil {
		if putErr := d.Store.Put(ctx, key, fp, freq); putErr != nil {
			logging.WarnWithContext(logger, "pitch cache store failed", "pitch_cache_store_failed",
				logging.String(logging.FieldSource, key),
				logging.Error(putErr),
				logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
			)
		}
	}
	return freq, nil
}
