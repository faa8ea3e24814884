package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"pitchbatch/internal/logging"
	"pitchbatch/internal/settings"
)

const stderrTailBytes = 4096

var commandContext = exec.CommandContext

// Encoder runs ffmpeg for one file at a time. It is safe for concurrent use.
type Encoder struct {
	Binary string
	Logger *slog.Logger
}

// Encode converts src into dst. Cancelling ctx kills the ffmpeg process.
func (e Encoder) Encode(ctx context.Context, src, dst string, s settings.EncodeSettings, pitch float64) error {
	binary := strings.TrimSpace(e.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	logger := e.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	args := BuildArgs(src, dst, s, pitch)
	logger.Debug("ffmpeg command",
		logging.String(logging.FieldEventType, "encode_command"),
		logging.String("command", binary+" "+strings.Join(args, " ")),
	)

	tail := &tailBuffer{limit: stderrTailBytes}
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stderr = tail
	cmd.WaitDelay = 5 * time.Second
	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg %s: %w", src, ctxErr)
		}
		detail := strings.TrimSpace(tail.String())
		if detail == "" {
			return fmt.Errorf("ffmpeg %s: %w", src, err)
		}
		return fmt.Errorf("ffmpeg %s: %w: %s", src, err, detail)
	}
	logger.Debug("ffmpeg finished",
		logging.String(logging.FieldEventType, "encode_finished"),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
