package client

import (
	"context"
	"encoding/json"

	"github.com/mattjoyce/agentlink/internal/protocol"
)

// GlobalService groups global.* operations.
type GlobalService struct{ c *Client }

func (s GlobalService) Health(ctx context.Context) (json.RawMessage, error) {
	return s.c.Do(ctx, OpGlobalHealth, nil, nil)
}

// AppService groups app.* operations.
type AppService struct{ c *Client }

func (s AppService) Log(ctx context.Context, body protocol.LogBody) (json.RawMessage, error) {
	return s.c.Do(ctx, OpAppLog, nil, body)
}

func (s AppService) Agents(ctx context.Context) (json.RawMessage, error) {
	return s.c.Do(ctx, OpAppAgents, nil, nil)
}

// ProjectService groups project.* operations.
type ProjectService struct{ c *Client }

func (s ProjectService) List(ctx context.Context) (json.RawMessage, error) {
	return s.c.Do(ctx, OpProjectList, nil, nil)
}

func (s ProjectService) Current(ctx context.Context) (json.RawMessage, error) {
	return s.c.Do(ctx, OpProjectCurrent, nil, nil)
}

// PathService groups path.* operations.
type PathService struct{ c *Client }

func (s PathService) Get(ctx context.Context) (json.RawMessage, error) {
	return s.c.Do(ctx, OpPathGet, nil, nil)
}

// ConfigService groups config.* operations.
type ConfigService struct{ c *Client }

func (s ConfigService) Get(ctx context.Context) (json.RawMessage, error) {
	return s.c.Do(ctx, OpConfigGet, nil, nil)
}

func (s ConfigService) Providers(ctx context.Context) (json.RawMessage, error) {
	return s.c.Do(ctx, OpConfigProviders, nil, nil)
}

// SessionService groups session.* operations.
type SessionService struct{ c *Client }

func id(sessionID string) Params { return Params{"id": sessionID} }

func (s SessionService) List(ctx context.Context) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionList, nil, nil)
}

func (s SessionService) Get(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionGet, id(sessionID), nil)
}

func (s SessionService) Children(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionChildren, id(sessionID), nil)
}

func (s SessionService) Create(ctx context.Context, body protocol.CreateSessionBody) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionCreate, nil, body)
}

func (s SessionService) Delete(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionDelete, id(sessionID), nil)
}

func (s SessionService) Update(ctx context.Context, sessionID string, body protocol.UpdateSessionBody) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionUpdate, id(sessionID), body)
}

func (s SessionService) Init(ctx context.Context, sessionID string, body protocol.InitSessionBody) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionInit, id(sessionID), body)
}

func (s SessionService) Abort(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionAbort, id(sessionID), nil)
}

func (s SessionService) Share(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionShare, id(sessionID), nil)
}

func (s SessionService) Unshare(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionUnshare, id(sessionID), nil)
}

func (s SessionService) Summarize(ctx context.Context, sessionID string, body protocol.SummarizeSessionBody) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionSummarize, id(sessionID), body)
}

func (s SessionService) Messages(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionMessages, id(sessionID), nil)
}

func (s SessionService) Message(ctx context.Context, sessionID, messageID string) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionMessage, Params{"id": sessionID, "messageId": messageID}, nil)
}

func (s SessionService) Prompt(ctx context.Context, sessionID string, body protocol.PromptBody) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionPrompt, id(sessionID), body)
}

func (s SessionService) Command(ctx context.Context, sessionID string, body protocol.CommandBody) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionCommand, id(sessionID), body)
}

func (s SessionService) Shell(ctx context.Context, sessionID string, body protocol.ShellBody) (json.RawMessage, error) {
	return s.c.Do(ctx, OpSessionShell, id(sessionID), body)
}
