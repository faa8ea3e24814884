// Package ffmpeg encodes audio through the ffmpeg command line. The pitch
// shift is a resample followed by a tempo correction so duration follows
// only the speed and rate multipliers.
package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"pitchbatch/internal/settings"
)

const (
	// DefaultSampleRate is used when the settings keep the source rate.
	DefaultSampleRate = 44100

	minTempo = 0.5
	maxTempo = 2.0
)

var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// BuildArgs returns the ffmpeg argument list that encodes src into dst.
// pitch is the effective ratio for this file.
func BuildArgs(src, dst string, s settings.EncodeSettings, pitch float64) []string {
	rate := outputSampleRate(s)
	args := []string{
		"-y",
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", src,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-af", FilterChain(rate, s, pitch),
		"-ar", strconv.Itoa(rate),
	}
	args = append(args, codecArgs(s)...)
	args = append(args, s.ExtraArgs...)
	return append(args, dst)
}

// FilterChain builds the -af value for the given working sample rate.
func FilterChain(sampleRate int, s settings.EncodeSettings, pitch float64) string {
	pitch = unitOr(pitch)
	rate := unitOr(s.Rate)
	speed := unitOr(s.Speed)

	shifted := int(math.Round(float64(sampleRate) * pitch * rate))
	filters := []string{fmt.Sprintf("asetrate=%d", shifted)}

	resample := fmt.Sprintf("aresample=%d", sampleRate)
	if s.AntiAlias && s.AntiAliasLength > 0 {
		resample += fmt.Sprintf(":filter_size=%d", s.AntiAliasLength)
	}
	filters = append(filters, resample)

	for _, factor := range TempoFactors(speed / pitch) {
		filters = append(filters, "atempo="+formatFloat(factor))
	}
	return strings.Join(filters, ",")
}

// TempoFactors splits tempo into atempo stages that each stay within the
// filter's supported range. A tempo of 1 needs no stages.
func TempoFactors(tempo float64) []float64 {
	if !(tempo > 0) || math.IsInf(tempo, 1) || math.Abs(tempo-1) < 1e-9 {
		return nil
	}
	var factors []float64
	for tempo > maxTempo {
		factors = append(factors, maxTempo)
		tempo /= maxTempo
	}
	for tempo < minTempo {
		factors = append(factors, minTempo)
		tempo /= minTempo
	}
	if math.Abs(tempo-1) >= 1e-9 {
		factors = append(factors, tempo)
	}
	return factors
}

// unitOr returns v, or 1 when v is not a positive finite number.
func unitOr(v float64) float64 {
	if !(v > 0) || math.IsInf(v, 1) {
		return 1
	}
	return v
}

func outputSampleRate(s settings.EncodeSettings) int {
	rate := s.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if s.Format == settings.FormatOpus && !opusRates[rate] {
		rate = 48000
	}
	return rate
}

func codecArgs(s settings.EncodeSettings) []string {
	quality := min(max(s.Quality, 0), settings.MaxQuality)
	bitrate := func() []string {
		return []string{"-b:a", fmt.Sprintf("%dk", s.Bitrate)}
	}
	switch s.Format {
	case settings.FormatMP3:
		args := []string{"-c:a", "libmp3lame", "-compression_level", strconv.Itoa(min(quality, 9))}
		if s.Bitrate > 0 {
			return append(args, bitrate()...)
		}
		return append(args, "-q:a", strconv.Itoa(min(quality, 9)))
	case settings.FormatFLAC:
		return []string{"-c:a", "flac", "-compression_level", strconv.Itoa(min(quality, 12))}
	case settings.FormatWAV:
		return []string{"-c:a", "pcm_s16le"}
	case settings.FormatOGG:
		args := []string{"-c:a", "libvorbis"}
		if s.Bitrate > 0 {
			return append(args, bitrate()...)
		}
		return append(args, "-q:a", strconv.Itoa(quality))
	case settings.FormatM4A:
		args := []string{"-c:a", "aac", "-movflags", "+faststart"}
		if s.Bitrate > 0 {
			args = append(args, bitrate()...)
		}
		return args
	case settings.FormatOpus:
		args := []string{"-c:a", "libopus", "-compression_level", strconv.Itoa(quality)}
		if s.Bitrate > 0 {
			args = append(args, bitrate()...)
		}
		return args
	default:
		return nil
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
