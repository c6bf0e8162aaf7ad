package supervisor

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPumpLinesSplitsOverlongLines(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tail := newTailBuffer(4 * maxLineBytes)

	long := strings.Repeat("x", 2*maxLineBytes+10)
	input := long + "\nshort\n\nlast"
	r := strings.NewReader(input)

	pumpLines(r, logger, slog.LevelWarn, "stderr", tail)

	assert.Zero(t, r.Len(), "reader must be drained")
	assert.Equal(t, input+"\n", tail.String())
	assert.Equal(t, 2, strings.Count(logs.String(), `"partial":true`))
	assert.Contains(t, logs.String(), `"line":"short"`)
	assert.Contains(t, logs.String(), `"line":"last"`)
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tail := newTailBuffer(4)
	_, _ = tail.Write([]byte("ab"))
	_, _ = tail.Write([]byte("cdef"))
	assert.Equal(t, "cdef", tail.String())
}
