package shim

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeEngine writes an executable shell script standing in for the stdio engine.
func writeEngine(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nuwaxcode")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecRunnerPassesPromptAndWorkspace(t *testing.T) {
	workspace := t.TempDir()
	bin := writeEngine(t, `echo "$1|$2"; pwd`)

	r := &ExecRunner{Binary: bin, Workspace: workspace, Window: 5 * time.Second}
	res, err := r.Run(context.Background(), "hello world")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "exec|hello world", lines[0])

	want, err := filepath.EvalSymlinks(workspace)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(lines[1])
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Zero(t, res.ExitCode)
	assert.False(t, res.Truncated)
	assert.False(t, res.Aborted)
	assert.False(t, res.Errored())
}

func TestExecRunnerReportsStderrAndExitCode(t *testing.T) {
	bin := writeEngine(t, "echo partial\necho 'model not configured' >&2\nexit 2\n")

	res, err := (&ExecRunner{Binary: bin}).Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.True(t, res.Errored())

	text, stream := SelectOutput(res)
	assert.Equal(t, StreamStderr, stream)
	assert.Contains(t, text, "model not configured")
	assert.NotContains(t, text, "partial", "streams are never merged")
}

func TestExecRunnerWindowTruncates(t *testing.T) {
	bin := writeEngine(t, "echo started\nsleep 10\n")

	start := time.Now()
	res, err := (&ExecRunner{Binary: bin, Window: 200 * time.Millisecond}).Run(context.Background(), "x")
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.False(t, res.Aborted)
	assert.NotZero(t, res.ExitCode)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, res.Stdout, "started")
}

func TestExecRunnerKillsAfterGrace(t *testing.T) {
	bin := writeEngine(t, "trap '' TERM\nwhile :; do sleep 0.05; done\n")

	start := time.Now()
	res, err := (&ExecRunner{Binary: bin, Window: 100 * time.Millisecond, Grace: 200 * time.Millisecond}).Run(context.Background(), "x")
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Equal(t, 137, res.ExitCode)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecRunnerAbortOnCancel(t *testing.T) {
	bin := writeEngine(t, "sleep 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := (&ExecRunner{Binary: bin, Window: 5 * time.Second}).Run(ctx, "x")
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.False(t, res.Truncated)
	assert.Less(t, res.Duration, 2*time.Second)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := (&ExecRunner{Binary: filepath.Join(t.TempDir(), "missing")}).Run(context.Background(), "x")
	assert.Error(t, err)
}

func TestExecRunnerCapsOutput(t *testing.T) {
	bin := writeEngine(t, "head -c 200000 /dev/zero | tr '\\0' 'a'\n")

	res, err := (&ExecRunner{Binary: bin}).Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, res.Stdout, maxCaptureBytes)
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, _ = b.Write([]byte("defg"))
	assert.Equal(t, 4, n, "writes always report full length")
	_, _ = b.Write([]byte("h"))
	assert.Equal(t, "abcde", b.String())
	assert.Equal(t, 3, b.dropped)
}

func TestSelectOutput(t *testing.T) {
	tests := []struct {
		name       string
		res        Result
		wantText   string
		wantStream string
	}{
		{"clean stdout", Result{Stdout: "ok", Stderr: "warning"}, "ok", StreamStdout},
		{"failed with stderr", Result{Stdout: "ok", Stderr: "boom", ExitCode: 1}, "boom", StreamStderr},
		{"failed without stderr", Result{Stdout: "ok", ExitCode: 1}, "ok", StreamStdout},
		{"truncated with stderr", Result{Stdout: "half", Stderr: "slow", Truncated: true}, "slow", StreamStderr},
		{"empty stdout falls back", Result{Stderr: "only err"}, "only err", StreamStderr},
		{"whitespace stdout falls back", Result{Stdout: "\n", Stderr: "e"}, "e", StreamStderr},
		{"nothing", Result{}, "", StreamNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, stream := SelectOutput(tt.res)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantStream, stream)
		})
	}
}
