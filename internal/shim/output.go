package shim

import (
	"strings"
	"sync"
)

// Output streams reported in ExecInfo.Stream.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamNone   = "none"
)

// cappedBuffer keeps the first max bytes written and discards the rest.
type cappedBuffer struct {
	mu      sync.Mutex
	max     int
	buf     []byte
	dropped int
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.max - len(c.buf)
	if room <= 0 {
		c.dropped += len(p)
		return len(p), nil
	}
	if len(p) > room {
		c.buf = append(c.buf, p[:room]...)
		c.dropped += len(p) - room
		return len(p), nil
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

// SelectOutput picks the text returned to the caller. Stderr replaces stdout
// when the run errored and stderr has content, or when stdout is empty.
// The two streams are never merged.
func SelectOutput(res Result) (text, stream string) {
	hasOut := strings.TrimSpace(res.Stdout) != ""
	hasErr := strings.TrimSpace(res.Stderr) != ""

	switch {
	case res.Errored() && hasErr:
		return res.Stderr, StreamStderr
	case hasOut:
		return res.Stdout, StreamStdout
	case hasErr:
		return res.Stderr, StreamStderr
	default:
		return "", StreamNone
	}
}
