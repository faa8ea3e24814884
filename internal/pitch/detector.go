// Package pitch measures the fundamental frequency of an audio file by
// running an external pitch tracker.
package pitch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// ErrNoPitch is returned when the tracker reports no voiced frames.
var ErrNoPitch = errors.New("no pitch detected")

// CommandDetector runs a tracker that prints "<time> <frequency>" lines,
// such as aubiopitch. Args are inserted before "-i <path>".
type CommandDetector struct {
	Binary string
	Args   []string
}

// DetectPitch returns the median voiced frequency of path in Hz.
func (d CommandDetector) DetectPitch(ctx context.Context, path string) (float64, error) {
	binary := strings.TrimSpace(d.Binary)
	if binary == "" {
		binary = "aubiopitch"
	}
	args := append(append([]string{}, d.Args...), "-i", path)
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%s %s: %w: %s", binary, path, err, strings.TrimSpace(stderr.String()))
	}
	freq, err := ParseTrack(&stdout)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", binary, path, err)
	}
	return freq, nil
}

// ParseTrack reads "<time> <frequency>" lines and returns the median of the
// positive frequencies. Malformed lines are ignored.
func ParseTrack(r io.Reader) (float64, error) {
	var freqs []float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || !(f > 0) {
			continue
		}
		freqs = append(freqs, f)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read pitch track: %w", err)
	}
	if len(freqs) == 0 {
		return 0, ErrNoPitch
	}
	sort.Float64s(freqs)
	mid := len(freqs) / 2
	if len(freqs)%2 == 1 {
		return freqs[mid], nil
	}
	return (freqs[mid-1] + freqs[mid]) / 2, nil
}
