package settings

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Format identifies an output container/codec pair.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatWAV  Format = "wav"
	FormatOGG  Format = "ogg"
	FormatM4A  Format = "m4a"
	FormatOpus Format = "opus"
)

// Limits shared by validation and the CLI.
const (
	MinThreads      = 1
	MaxThreadsLimit = 64
	MaxPitch        = 10000.0
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MinAntiAlias    = 8
	MaxAntiAlias    = 256
	MaxQuality      = 10
)

// Formats lists every supported output format.
func Formats() []Format {
	return []Format{FormatMP3, FormatFLAC, FormatWAV, FormatOGG, FormatM4A, FormatOpus}
}

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(value string) (Format, error) {
	candidate := Format(strings.ToLower(strings.TrimSpace(value)))
	for _, f := range Formats() {
		if f == candidate {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q", value)
}

// Extension returns the file extension, including the leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Lossless reports whether bitrate settings are ignored for the format.
func (f Format) Lossless() bool {
	return f == FormatFLAC || f == FormatWAV
}

// EncodeSettings is the per-run encoder configuration.
type EncodeSettings struct {
	Format          Format
	Bitrate         int // kbps; 0 uses the codec default
	SampleRate      int // Hz; 0 keeps the source rate
	AntiAlias       bool
	AntiAliasLength int
	Speed           float64
	Rate            float64
	PitchFrom       float64
	PitchTo         float64
	MaxThreads      int
	Quality         int
	AutoDetectPitch bool
	OutputDir       string
	ExtraArgs       []string
}

// Pitch returns the global pitch ratio PitchTo/PitchFrom.
func (s EncodeSettings) Pitch() float64 {
	return s.PitchFor(s.PitchFrom)
}

// PitchFor returns the ratio used when the source pitch was measured as from.
func (s EncodeSettings) PitchFor(from float64) float64 {
	if from <= 0 {
		return 1
	}
	return s.PitchTo / from
}

// Clone returns a deep copy. ExtraArgs is the only reference-typed field.
func (s EncodeSettings) Clone() EncodeSettings {
	out := s
	if s.ExtraArgs != nil {
		out.ExtraArgs = make([]string, len(s.ExtraArgs))
		copy(out.ExtraArgs, s.ExtraArgs)
	}
	return out
}

// Validate reports every invalid field joined into one error.
func (s EncodeSettings) Validate() error {
	var errs []error
	if _, err := ParseFormat(string(s.Format)); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}
	if s.Bitrate < 0 {
		errs = append(errs, errors.New("bitrate must not be negative"))
	}
	if s.SampleRate != 0 && (s.SampleRate < MinSampleRate || s.SampleRate > MaxSampleRate) {
		errs = append(errs, fmt.Errorf("sample_rate must be 0 or between %d and %d", MinSampleRate, MaxSampleRate))
	}
	if s.AntiAlias && (s.AntiAliasLength < MinAntiAlias || s.AntiAliasLength > MaxAntiAlias) {
		errs = append(errs, fmt.Errorf("anti_alias_length must be between %d and %d", MinAntiAlias, MaxAntiAlias))
	}
	if !positiveFinite(s.Speed) {
		errs = append(errs, errors.New("speed must be a finite number greater than 0"))
	}
	if !positiveFinite(s.Rate) {
		errs = append(errs, errors.New("rate must be a finite number greater than 0"))
	}
	if !validPitch(s.PitchFrom) {
		errs = append(errs, fmt.Errorf("pitch_from must be in (0, %g]", MaxPitch))
	}
	if !validPitch(s.PitchTo) {
		errs = append(errs, fmt.Errorf("pitch_to must be in (0, %g]", MaxPitch))
	}
	if err := ValidateThreads(s.MaxThreads); err != nil {
		errs = append(errs, err)
	}
	if s.Quality < 0 || s.Quality > MaxQuality {
		errs = append(errs, fmt.Errorf("quality must be between 0 and %d", MaxQuality))
	}
	if strings.TrimSpace(s.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir must be set"))
	}
	return errors.Join(errs...)
}

// ValidateThreads checks a MaxThreads value.
func ValidateThreads(n int) error {
	if n < MinThreads || n > MaxThreadsLimit {
		return fmt.Errorf("max_threads must be between %d and %d, got %d", MinThreads, MaxThreadsLimit, n)
	}
	return nil
}

func validPitch(v float64) bool {
	return positiveFinite(v) && v <= MaxPitch
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
