package doctor

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/agentlink/internal/config"
)

type fakeListener struct{ net.Listener }

func (fakeListener) Close() error { return nil }

// healthy returns a Doctor whose host probes all succeed.
func healthy(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	d.listen = func(string, string) (net.Listener, error) { return fakeListener{}, nil }
	d.checkFS = func(string) error { return nil }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := healthy(config.Defaults()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_InvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Client.ResponseStyle = "pretty"
	r := healthy(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "config", "response_style")
}

func TestValidate_EngineBinaryMissing(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Engine.Kind = "nuwaxcode"
	d := healthy(cfg)
	d.lookPath = func(name string) (string, error) {
		if name == "nuwaxcode" {
			return "", errors.New("executable file not found in $PATH")
		}
		return name, nil
	}
	r := d.Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "engine", "nuwaxcode")
	if r.Errors[0].Field != "engine.nuwaxcode_path" {
		t.Errorf("field = %q, want engine.nuwaxcode_path", r.Errors[0].Field)
	}
}

func TestValidate_PortInUse(t *testing.T) {
	t.Parallel()
	d := healthy(config.Defaults())
	d.listen = func(_, addr string) (net.Listener, error) {
		return nil, errors.New("address already in use")
	}
	r := d.Validate()
	if !r.Valid {
		t.Fatalf("port in use should only warn, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "engine", "127.0.0.1:4096")
	assertHasWarning(t, r, "shim", "127.0.0.1:4097")
}

func TestValidate_RealPortProbe(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := config.Defaults()
	cfg.Engine.Port = ln.Addr().(*net.TCPAddr).Port
	d := healthy(cfg)
	d.listen = net.Listen
	r := d.Validate()
	assertHasWarning(t, r, "engine", "in use")
}

func TestValidate_ShimBinaryMissingWarns(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Shim.Binary = "no-such-shim-binary"
	d := healthy(cfg)
	d.lookPath = func(name string) (string, error) {
		if name == "no-such-shim-binary" {
			return "", errors.New("not found")
		}
		return name, nil
	}
	r := d.Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "shim", "no-such-shim-binary")
}

func TestValidate_Workspace(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		workspace string
		want      string
	}{
		{"missing", filepath.Join(dir, "absent"), "does not exist"},
		{"not a dir", file, "not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Shim.Workspace = tt.workspace
			r := healthy(cfg).Validate()
			if r.Valid {
				t.Fatal("expected invalid")
			}
			assertHasError(t, r, "shim", tt.want)
		})
	}

	cfg := config.Defaults()
	cfg.Shim.Workspace = dir
	if r := healthy(cfg).Validate(); !r.Valid {
		t.Fatalf("existing workspace should pass, got: %v", r.Errors)
	}
}

func TestValidate_StoreOnRemoteFilesystem(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Shim.StorePath = "/mnt/nfs/agentlink.db"
	d := healthy(cfg)
	var checked string
	d.checkFS = func(p string) error {
		checked = p
		return errors.New("nfs is a network filesystem")
	}
	r := d.Validate()
	if checked != "/mnt/nfs/agentlink.db" {
		t.Errorf("checkFS path = %q", checked)
	}
	assertHasError(t, r, "shim", "network filesystem")
}

func TestValidate_LockDir(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "locks")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.Service.LockDir = file
	assertHasError(t, healthy(cfg).Validate(), "service", "not a directory")

	cfg.Service.LockDir = filepath.Join(t.TempDir(), "later")
	if r := healthy(cfg).Validate(); !r.Valid {
		t.Fatalf("absent lock dir should pass, got: %v", r.Errors)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: false, Errors: []Issue{{Category: "engine", Message: "missing"}}}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": false`) || !strings.Contains(out, `"category": "engine"`) {
		t.Fatalf("unexpected JSON: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if !strings.Contains(out, "passed") {
		t.Fatalf("expected 'passed' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
		Warnings: []Issue{{Category: "test", Message: "odd"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR [test] x.y: broken") || !strings.Contains(out, "WARN  [test] odd") {
		t.Fatalf("unexpected output: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
