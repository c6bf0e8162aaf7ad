// Package client is a typed dispatcher for the engine HTTP API. Every call is
// one request; the client holds no state beyond its immutable Config.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/agentlink/internal/log"
	"github.com/mattjoyce/agentlink/internal/protocol"
)

// DefaultBaseURL is where a locally supervised engine listens by default.
const DefaultBaseURL = "http://127.0.0.1:4096"

// ResponseStyle selects how response bodies are shaped. Both styles currently
// return the body unmodified.
type ResponseStyle string

const (
	StyleRaw       ResponseStyle = "raw"
	StyleUnwrapped ResponseStyle = "unwrapped"
)

// Config is fixed at construction.
type Config struct {
	BaseURL       string
	ResponseStyle ResponseStyle
	ThrowOnError  bool
	HTTPClient    *http.Client
}

// Option adjusts a Config.
type Option func(*Config)

// WithThrowOnError turns non-2xx responses into *APIError.
func WithThrowOnError(v bool) Option {
	return func(c *Config) { c.ThrowOnError = v }
}

// WithResponseStyle sets the response style.
func WithResponseStyle(s ResponseStyle) Option {
	return func(c *Config) { c.ResponseStyle = s }
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// Client dispatches operations against one engine.
type Client struct {
	cfg    Config
	base   *url.URL
	logger *slog.Logger

	Global  GlobalService
	App     AppService
	Project ProjectService
	Path    PathService
	Config  ConfigService
	Session SessionService
}

// New builds a Client. It performs no I/O.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := Config{BaseURL: baseURL, ResponseStyle: StyleRaw}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	switch cfg.ResponseStyle {
	case "":
		cfg.ResponseStyle = StyleRaw
	case StyleRaw, StyleUnwrapped:
	default:
		return nil, fmt.Errorf("unsupported response style %q", cfg.ResponseStyle)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", cfg.BaseURL)
	}

	c := &Client{cfg: cfg, base: base, logger: log.WithComponent("client")}
	c.Global = GlobalService{c}
	c.App = AppService{c}
	c.Project = ProjectService{c}
	c.Path = PathService{c}
	c.Config = ConfigService{c}
	c.Session = SessionService{c}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Settings returns a copy of the client configuration.
func (c *Client) Settings() Config { return c.cfg }

// Do performs op. params fills the path template; body is sent as JSON when
// the route carries one. On a non-2xx response Do returns (nil, nil) unless
// ThrowOnError is set, in which case it returns *APIError. A 2xx response
// with an empty body also yields nil.
func (c *Client) Do(ctx context.Context, op Operation, params Params, body any) (json.RawMessage, error) {
	route, ok := Lookup(op)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	path, err := route.expand(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var reader io.Reader
	if route.Body && body != nil {
		if v, ok := body.(protocol.Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidBody, err)
			}
		}
		data, err := protocol.Encode(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.base.String() + path
	req, err := http.NewRequestWithContext(ctx, route.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	c.logger.Debug("engine call",
		"op", string(op),
		"method", route.Method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if c.cfg.ThrowOnError {
			return nil, &APIError{Op: op, Status: resp.StatusCode, Body: data}
		}
		return nil, nil
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidJSON)
	}
	return json.RawMessage(data), nil
}

// Decode unmarshals a raw response into T. A nil response yields the zero T
// and ErrNoContent.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if raw == nil {
		return out, ErrNoContent
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// ErrNoContent is returned by Decode when there is nothing to decode.
var ErrNoContent = errors.New("no response content")
