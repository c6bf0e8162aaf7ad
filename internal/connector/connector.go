// Package connector starts an engine and hands back a client bound to it.
package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mattjoyce/agentlink/internal/client"
	"github.com/mattjoyce/agentlink/internal/engine"
	"github.com/mattjoyce/agentlink/internal/log"
	"github.com/mattjoyce/agentlink/internal/supervisor"
)

// Options configures Start. Zero values select defaults.
type Options struct {
	Engine engine.Options

	StartupTimeout time.Duration
	PollInterval   time.Duration
	StopGrace      time.Duration
	LockDir        string

	ThrowOnError  bool
	ResponseStyle client.ResponseStyle
	HTTPClient    *http.Client

	Callbacks supervisor.Callbacks
}

// Connection is a running engine plus a client bound to it.
type Connection struct {
	Client *client.Client
	Server *supervisor.Server

	sup *supervisor.Supervisor
}

// Close stops the engine.
func (c *Connection) Close() error {
	return c.sup.Stop()
}

// Supervisor exposes the underlying supervisor for state inspection.
func (c *Connection) Supervisor() *supervisor.Supervisor { return c.sup }

// Start launches the engine described by opts and waits until it is ready.
// Cancelling ctx stops the engine at any point.
func Start(ctx context.Context, opts Options) (*Connection, error) {
	desc, err := engine.NewDescriptor(opts.Engine)
	if err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}

	logger := log.WithEngine(string(desc.Kind))
	logger.Info("starting engine", "url", desc.BaseURL(), "binary", desc.Binary)

	sup := supervisor.New(supervisor.Config{
		Descriptor:     desc,
		StartupTimeout: opts.StartupTimeout,
		PollInterval:   opts.PollInterval,
		StopGrace:      opts.StopGrace,
		LockDir:        opts.LockDir,
		Logger:         logger.With("component", "supervisor"),
		Callbacks:      opts.Callbacks,
	})

	srv, err := sup.Start(ctx)
	if err != nil {
		return nil, err
	}

	c, err := client.New(srv.URL, clientOptions(opts)...)
	if err != nil {
		_ = sup.Stop()
		return nil, err
	}

	logger.Info("engine ready", "url", srv.URL, "pid", srv.PID)
	return &Connection{Client: c, Server: srv, sup: sup}, nil
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	BaseURL       string
	ThrowOnError  bool
	ResponseStyle client.ResponseStyle
	HTTPClient    *http.Client
}

// NewClient builds a client against an engine that is already running.
// An empty BaseURL selects client.DefaultBaseURL.
func NewClient(opts ClientOptions) (*client.Client, error) {
	return client.New(opts.BaseURL,
		client.WithThrowOnError(opts.ThrowOnError),
		client.WithResponseStyle(opts.ResponseStyle),
		client.WithHTTPClient(opts.HTTPClient),
	)
}

func clientOptions(opts Options) []client.Option {
	return []client.Option{
		client.WithThrowOnError(opts.ThrowOnError),
		client.WithResponseStyle(opts.ResponseStyle),
		client.WithHTTPClient(opts.HTTPClient),
	}
}
