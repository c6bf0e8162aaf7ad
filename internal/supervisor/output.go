package supervisor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// maxStderrBytes caps the amount of stderr kept for error reports.
const maxStderrBytes = 64 * 1024

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// maxLineBytes is the longest fragment logged as one record. Longer lines
// are split and logged with partial=true.
const maxLineBytes = 64 * 1024

// pumpLines logs each line read from r until EOF. When tail is non-nil the
// raw lines are also copied into it. r is always drained so the engine
// never sees a closed pipe while it is still writing.
func pumpLines(r io.Reader, logger *slog.Logger, level slog.Level, stream string, tail *tailBuffer) {
	br := bufio.NewReaderSize(r, maxLineBytes)
	for {
		frag, partial, err := br.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("engine output read failed", "stream", stream, "error", err)
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
		line := string(frag)
		if tail != nil {
			if partial {
				_, _ = tail.Write([]byte(line))
			} else {
				_, _ = tail.Write([]byte(line + "\n"))
			}
		}
		if partial {
			logger.Log(context.Background(), level, "engine output", "stream", stream, "line", line, "partial", true)
		} else {
			logger.Log(context.Background(), level, "engine output", "stream", stream, "line", line)
		}
	}
}
