package main

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/mattjoyce/agentlink/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCaptured(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

// isolateConfig makes discovery find an empty config in a temp dir.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "agentlink.yaml"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGENTLINK_CONFIG_DIR", dir)
	return dir
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentlink.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type recorded struct {
	Method string
	Path   string
	Body   string
}

// fakeEngine answers every request with the handler's status and body and
// records what it saw.
func fakeEngine(t *testing.T, status int, body string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var seen []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, recorded{r.Method, r.URL.EscapedPath(), string(data)})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05+02:00")

	code, stdout, stderr := runCaptured(t, "version", "--json")
	if code != 0 {
		t.Fatalf("version code = %d, stderr: %s", code, stderr)
	}
	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if info.Version != "1.2.3" || info.Commit != "0123456789ab" || info.BuildTime != "2026-01-02T01:04:05Z" {
		t.Fatalf("unexpected version info: %+v", info)
	}
}

func TestRunCLIUsage(t *testing.T) {
	code, stdout, _ := runCaptured(t, "help")
	if code != 0 || !strings.Contains(stdout, "agentlink <noun> <action>") {
		t.Fatalf("help code = %d, stdout: %s", code, stdout)
	}

	code, _, stderr := runCaptured(t, "bogus")
	if code != 1 || !strings.Contains(stderr, "Unknown command: bogus") {
		t.Fatalf("bogus code = %d, stderr: %s", code, stderr)
	}

	code, _, stderr = runCaptured(t, "session", "rename")
	if code != 1 || !strings.Contains(stderr, "Unknown session action") {
		t.Fatalf("session rename code = %d, stderr: %s", code, stderr)
	}
}

func TestNounActionHelp(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"engine", "start", "--help"}, "Usage: agentlink engine start"},
		{[]string{"engine", "help"}, "Actions: start, health"},
		{[]string{"session", "prompt", "-h"}, "Usage: agentlink session prompt"},
		{[]string{"config", "lock", "--help"}, "Usage: agentlink config lock"},
		{[]string{"doctor", "--help"}, "Exit codes:"},
		{[]string{"watch", "--help"}, "Keybindings:"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			code, stdout, stderr := runCaptured(t, tt.args...)
			if code != 0 {
				t.Fatalf("code = %d, stderr: %s", code, stderr)
			}
			if !strings.Contains(stdout, tt.want) {
				t.Fatalf("stdout missing %q: %s", tt.want, stdout)
			}
		})
	}
}

func TestConfigCheckLockShow(t *testing.T) {
	path := writeConfigFile(t, "engine:\n  kind: nuwaxcode\n  port: 4555\n")

	code, stdout, stderr := runCaptured(t, "config", "check", "--config", path)
	if code != 0 || !strings.Contains(stdout, "Configuration valid") {
		t.Fatalf("check code = %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}

	code, stdout, _ = runCaptured(t, "config", "lock", "--config", path, "--dry-run")
	if code != 0 || !strings.Contains(stdout, "DRY-RUN") {
		t.Fatalf("dry-run code = %d, stdout: %s", code, stdout)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), ".checksums")); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}

	code, stdout, _ = runCaptured(t, "config", "lock", "--config", path)
	if code != 0 || !strings.Contains(stdout, "Successfully locked configuration") {
		t.Fatalf("lock code = %d, stdout: %s", code, stdout)
	}
	if !regexp.MustCompile(`HASH .*: [a-f0-9]{64}`).MatchString(stdout) {
		t.Fatalf("stdout missing hash: %s", stdout)
	}

	code, stdout, _ = runCaptured(t, "config", "show", "--config", path)
	if code != 0 || !strings.Contains(stdout, "kind: nuwaxcode") || !strings.Contains(stdout, "port: 4555") {
		t.Fatalf("show code = %d, stdout: %s", code, stdout)
	}

	code, stdout, _ = runCaptured(t, "config", "show", "--config", path, "--json")
	if code != 0 || !strings.Contains(stdout, `"kind": "nuwaxcode"`) {
		t.Fatalf("show --json code = %d, stdout: %s", code, stdout)
	}

	// Editing a locked file breaks check.
	if err := os.WriteFile(path, []byte("engine:\n  port: 4556\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr = runCaptured(t, "config", "check", "--config", path)
	if code != 1 || !strings.Contains(stderr, "hash mismatch") {
		t.Fatalf("check after edit code = %d, stderr: %s", code, stderr)
	}
}

func TestConfigCheckRejectsInvalid(t *testing.T) {
	path := writeConfigFile(t, "engine:\n  kind: emacs\n")
	code, _, stderr := runCaptured(t, "config", "check", "--config", path)
	if code != 1 || !strings.Contains(stderr, "engine.kind") {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}
}

func TestSessionCommands(t *testing.T) {
	isolateConfig(t)
	srv, seen := fakeEngine(t, http.StatusOK, `{"id":"s1"}`)

	tests := []struct {
		args     []string
		method   string
		path     string
		wantBody string
	}{
		{[]string{"list"}, "GET", "/session/list", ""},
		{[]string{"get", "--id", "s1"}, "GET", "/session/s1", ""},
		{[]string{"get", "s 2"}, "GET", "/session/s%202", ""},
		{[]string{"create", "--title", "demo"}, "POST", "/session/create", `{"title":"demo"}`},
		{[]string{"prompt", "--id", "s1", "--text", "hi"}, "POST", "/session/s1/prompt", `{"parts":[{"type":"text","text":"hi"}]}`},
		{[]string{"messages", "--id", "s1"}, "GET", "/session/s1/messages", ""},
		{[]string{"abort", "--id", "s1"}, "POST", "/session/s1/abort", ""},
		{[]string{"delete", "--id", "s1"}, "DELETE", "/session/s1", ""},
	}
	for i, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			// --url goes before any positional id so flag parsing sees it.
			args := append([]string{"session", tt.args[0], "--url", srv.URL}, tt.args[1:]...)
			code, stdout, stderr := runCaptured(t, args...)
			if code != 0 {
				t.Fatalf("code = %d, stderr: %s", code, stderr)
			}
			if !strings.Contains(stdout, `"id": "s1"`) {
				t.Errorf("stdout not pretty JSON: %s", stdout)
			}
			got := (*seen)[i]
			if got.Method != tt.method || got.Path != tt.path {
				t.Errorf("request = %s %s, want %s %s", got.Method, got.Path, tt.method, tt.path)
			}
			if tt.wantBody != "" && got.Body != tt.wantBody {
				t.Errorf("body = %s, want %s", got.Body, tt.wantBody)
			}
		})
	}
}

func TestSessionRequiresID(t *testing.T) {
	isolateConfig(t)
	srv, seen := fakeEngine(t, http.StatusOK, `{}`)

	code, _, stderr := runCaptured(t, "session", "prompt", "--url", srv.URL, "--text", "hi")
	if code != 1 || !strings.Contains(stderr, "--id ID") {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}
	if len(*seen) != 0 {
		t.Fatalf("expected no requests, got %v", *seen)
	}

	code, _, stderr = runCaptured(t, "session", "prompt", "--url", srv.URL, "--id", "s1")
	if code != 1 || !strings.Contains(stderr, "invalid request body") {
		t.Fatalf("empty prompt code = %d, stderr: %s", code, stderr)
	}
	if len(*seen) != 0 {
		t.Fatalf("invalid body must not reach the engine, got %v", *seen)
	}
}

func TestSessionEngineError(t *testing.T) {
	isolateConfig(t)
	srv, _ := fakeEngine(t, http.StatusNotFound, `{"error":"Not found"}`)

	code, _, stderr := runCaptured(t, "session", "get", "--url", srv.URL, "--id", "nope")
	if code != 1 || !strings.Contains(stderr, "404") {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}
}

func TestCall(t *testing.T) {
	isolateConfig(t)

	code, stdout, _ := runCaptured(t, "call", "--list")
	if code != 0 || !strings.Contains(stdout, "session.shell") || !strings.Contains(stdout, "/session/{id}/shell") {
		t.Fatalf("call --list code = %d, stdout: %s", code, stdout)
	}
	if n := strings.Count(stdout, "\n"); n != 24 {
		t.Errorf("call --list printed %d operations, want 24", n)
	}

	srv, seen := fakeEngine(t, http.StatusOK, `{"ok":true}`)
	code, stdout, stderr := runCaptured(t, "call", "session.message",
		"--url", srv.URL, "--param", "id=abc", "--param", "messageId=m1")
	if code != 0 || !strings.Contains(stdout, `"ok": true`) {
		t.Fatalf("call code = %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}
	if (*seen)[0].Path != "/session/abc/message/m1" {
		t.Errorf("path = %s", (*seen)[0].Path)
	}

	code, _, stderr = runCaptured(t, "call", "session.command", "--url", srv.URL,
		"--param", "id=abc", "--body", `{"command":"init","arguments":"x"}`)
	if code != 0 {
		t.Fatalf("call with body code = %d, stderr: %s", code, stderr)
	}
	if (*seen)[1].Body != `{"command":"init","arguments":"x"}` {
		t.Errorf("body = %s", (*seen)[1].Body)
	}

	code, _, stderr = runCaptured(t, "call", "session.teleport")
	if code != 1 || !strings.Contains(stderr, "Unknown operation") {
		t.Fatalf("unknown op code = %d, stderr: %s", code, stderr)
	}

	code, _, stderr = runCaptured(t, "call", "session.get", "--url", srv.URL)
	if code != 1 || !strings.Contains(stderr, "id") {
		t.Fatalf("missing param code = %d, stderr: %s", code, stderr)
	}

	code, _, stderr = runCaptured(t, "call", "app.log", "--url", srv.URL, "--body", "{nope")
	if code != 1 || !strings.Contains(stderr, "not valid JSON") {
		t.Fatalf("bad body code = %d, stderr: %s", code, stderr)
	}
}

func TestCallAPIErrorExitCode(t *testing.T) {
	isolateConfig(t)
	srv, _ := fakeEngine(t, http.StatusInternalServerError, `{"error":"boom"}`)

	code, _, stderr := runCaptured(t, "call", "config.get", "--url", srv.URL)
	if code != 2 || !strings.Contains(stderr, "500") {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}
}

func TestEngineHealth(t *testing.T) {
	isolateConfig(t)

	healthy, _ := fakeEngine(t, http.StatusOK, `{"healthy":true,"version":"1"}`)
	code, stdout, stderr := runCaptured(t, "engine", "health", "--url", healthy.URL)
	if code != 0 || !strings.Contains(stdout, `"healthy": true`) {
		t.Fatalf("healthy code = %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}

	sick, _ := fakeEngine(t, http.StatusOK, `{"healthy":false}`)
	if code, _, _ := runCaptured(t, "engine", "health", "--url", sick.URL); code != 1 {
		t.Fatalf("unhealthy code = %d, want 1", code)
	}

	code, _, stderr = runCaptured(t, "engine", "health", "--url", "http://127.0.0.1:"+strconv.Itoa(freePort(t)))
	if code != 1 || !strings.Contains(stderr, "unreachable") {
		t.Fatalf("unreachable code = %d, stderr: %s", code, stderr)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func buildMockEngine(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "mock-engine")
	out, err := exec.Command("go", "build", "-o", bin, "../../internal/supervisor/testdata/mock-engine/main.go").CombinedOutput()
	if err != nil {
		t.Fatalf("build mock engine: %v\n%s", err, out)
	}
	return bin
}

func TestEngineStartSmoke(t *testing.T) {
	bin := buildMockEngine(t)
	port := freePort(t)
	path := writeConfigFile(t, "engine:\n  kind: nuwaxcode\n  nuwaxcode_path: "+bin+"\n  stop_grace: 1s\n")

	code, stdout, stderr := runCaptured(t, "engine", "start", "--config", path,
		"--port", strconv.Itoa(port), "--smoke")
	if code != 0 {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}
	want := "http://127.0.0.1:" + strconv.Itoa(port)
	if strings.TrimSpace(stdout) != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}

	// The port is free again once the engine has been stopped.
	l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatalf("port still in use after smoke start: %v", err)
	}
	_ = l.Close()
}

func TestEngineStartMissingBinary(t *testing.T) {
	path := writeConfigFile(t, "engine:\n  opencode_path: /nonexistent/opencode\n")
	code, _, stderr := runCaptured(t, "engine", "start", "--config", path, "--smoke")
	if code != 1 || !strings.Contains(stderr, "Failed to start engine") {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}
}

func TestDoctorJSON(t *testing.T) {
	path := writeConfigFile(t, "shim:\n  workspace: /nonexistent/agentlink-workspace\n")
	code, stdout, _ := runCaptured(t, "doctor", "--config", path, "--format", "json")
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	found := false
	for _, e := range result.Errors {
		if e.Field == "shim.workspace" {
			found = true
		}
	}
	if result.Valid || !found {
		t.Fatalf("expected shim.workspace error, got %+v", result)
	}

	code, _, stderr := runCaptured(t, "doctor", "--config", path, "--format", "xml")
	if code != 1 || !strings.Contains(stderr, "Unknown format") {
		t.Fatalf("xml code = %d, stderr: %s", code, stderr)
	}
}
