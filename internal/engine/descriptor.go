// Package engine describes which agent binary to run and how to reach it.
package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// Kind selects one of the known engine binaries.
type Kind string

const (
	KindOpencode  Kind = "opencode"
	KindNuwaxcode Kind = "nuwaxcode"
)

const (
	DefaultHostname = "127.0.0.1"
	DefaultPort     = 4096

	serveCommand = "serve"
)

// ErrUnknownKind is returned for engine kinds other than opencode and nuwaxcode.
var ErrUnknownKind = errors.New("unknown engine kind")

// ParseKind converts a config value into a Kind. Empty selects opencode.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindOpencode:
		return KindOpencode, nil
	case KindNuwaxcode:
		return KindNuwaxcode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// BinaryName is the conventional executable name for the kind.
func (k Kind) BinaryName() string {
	return string(k)
}

// Options is the caller-supplied configuration a Descriptor is built from.
// Zero values select defaults.
type Options struct {
	Kind          Kind
	Hostname      string
	Port          int
	OpencodePath  string
	NuwaxcodePath string
	Model         string
	ExtraArgs     []string
}

// Descriptor identifies which binary to run and how to reach it.
type Descriptor struct {
	Kind      Kind
	Binary    string
	Hostname  string
	Port      int
	Model     string
	ExtraArgs []string
}

// NewDescriptor fills defaults and validates opts.
func NewDescriptor(opts Options) (Descriptor, error) {
	kind, err := ParseKind(string(opts.Kind))
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		Kind:      kind,
		Hostname:  opts.Hostname,
		Port:      opts.Port,
		Model:     strings.TrimSpace(opts.Model),
		ExtraArgs: append([]string(nil), opts.ExtraArgs...),
	}
	if d.Hostname == "" {
		d.Hostname = DefaultHostname
	}
	if d.Port == 0 {
		d.Port = DefaultPort
	}
	if d.Port < 1 || d.Port > 65535 {
		return Descriptor{}, fmt.Errorf("port out of range: %d", d.Port)
	}

	switch kind {
	case KindNuwaxcode:
		d.Binary = opts.NuwaxcodePath
	default:
		d.Binary = opts.OpencodePath
	}
	if d.Binary == "" {
		d.Binary = kind.BinaryName()
	}
	return d, nil
}

// ResolveBinary looks the binary up on PATH. Paths containing a separator
// are checked directly.
func (d Descriptor) ResolveBinary() (string, error) {
	path, err := exec.LookPath(d.Binary)
	if err != nil {
		return "", fmt.Errorf("resolve %s binary %q: %w", d.Kind, d.Binary, err)
	}
	return path, nil
}

// Args returns the argument list passed to the binary.
func (d Descriptor) Args() []string {
	args := []string{serveCommand, "--port", strconv.Itoa(d.Port)}
	if d.Model != "" {
		args = append(args, "--model", d.Model)
	}
	return append(args, d.ExtraArgs...)
}

// BaseURL is the HTTP root the engine listens on once ready.
func (d Descriptor) BaseURL() string {
	return "http://" + net.JoinHostPort(d.Hostname, strconv.Itoa(d.Port))
}

// Clone returns a deep copy so callers cannot mutate a running descriptor.
func (d Descriptor) Clone() Descriptor {
	d.ExtraArgs = append([]string(nil), d.ExtraArgs...)
	return d
}

// Fingerprint is a stable BLAKE3 identity of everything that makes two
// descriptors launch the same endpoint.
func (d Descriptor) Fingerprint() string {
	h := blake3.New()
	fields := append([]string{string(d.Kind), d.Binary, d.Hostname, strconv.Itoa(d.Port), d.Model}, d.ExtraArgs...)
	for _, f := range fields {
		_, _ = h.Write([]byte(f))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.Kind, d.Binary, d.BaseURL())
}
