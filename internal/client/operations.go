package client

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Operation names one engine endpoint.
type Operation string

const (
	OpGlobalHealth     Operation = "global.health"
	OpAppLog           Operation = "app.log"
	OpAppAgents        Operation = "app.agents"
	OpProjectList      Operation = "project.list"
	OpProjectCurrent   Operation = "project.current"
	OpPathGet          Operation = "path.get"
	OpConfigGet        Operation = "config.get"
	OpConfigProviders  Operation = "config.providers"
	OpSessionList      Operation = "session.list"
	OpSessionGet       Operation = "session.get"
	OpSessionChildren  Operation = "session.children"
	OpSessionCreate    Operation = "session.create"
	OpSessionDelete    Operation = "session.delete"
	OpSessionUpdate    Operation = "session.update"
	OpSessionInit      Operation = "session.init"
	OpSessionAbort     Operation = "session.abort"
	OpSessionShare     Operation = "session.share"
	OpSessionUnshare   Operation = "session.unshare"
	OpSessionSummarize Operation = "session.summarize"
	OpSessionMessages  Operation = "session.messages"
	OpSessionMessage   Operation = "session.message"
	OpSessionPrompt    Operation = "session.prompt"
	OpSessionCommand   Operation = "session.command"
	OpSessionShell     Operation = "session.shell"
)

// Route binds an operation to its HTTP verb and path template. Template
// segments of the form {name} are filled from call parameters.
type Route struct {
	Method string
	Path   string
	Body   bool
}

var routes = map[Operation]Route{
	OpGlobalHealth:     {http.MethodGet, "/global/health", false},
	OpAppLog:           {http.MethodPost, "/app/log", true},
	OpAppAgents:        {http.MethodGet, "/app/agents", false},
	OpProjectList:      {http.MethodGet, "/project/list", false},
	OpProjectCurrent:   {http.MethodGet, "/project/current", false},
	OpPathGet:          {http.MethodGet, "/path", false},
	OpConfigGet:        {http.MethodGet, "/config", false},
	OpConfigProviders:  {http.MethodGet, "/config/providers", false},
	OpSessionList:      {http.MethodGet, "/session/list", false},
	OpSessionGet:       {http.MethodGet, "/session/{id}", false},
	OpSessionChildren:  {http.MethodGet, "/session/{id}/children", false},
	OpSessionCreate:    {http.MethodPost, "/session/create", true},
	OpSessionDelete:    {http.MethodDelete, "/session/{id}", false},
	OpSessionUpdate:    {http.MethodPost, "/session/{id}", true},
	OpSessionInit:      {http.MethodPost, "/session/{id}/init", true},
	OpSessionAbort:     {http.MethodPost, "/session/{id}/abort", false},
	OpSessionShare:     {http.MethodPost, "/session/{id}/share", false},
	OpSessionUnshare:   {http.MethodPost, "/session/{id}/unshare", false},
	OpSessionSummarize: {http.MethodPost, "/session/{id}/summarize", true},
	OpSessionMessages:  {http.MethodGet, "/session/{id}/messages", false},
	OpSessionMessage:   {http.MethodGet, "/session/{id}/message/{messageId}", false},
	OpSessionPrompt:    {http.MethodPost, "/session/{id}/prompt", true},
	OpSessionCommand:   {http.MethodPost, "/session/{id}/command", true},
	OpSessionShell:     {http.MethodPost, "/session/{id}/shell", true},
}

// Lookup returns the route for op.
func Lookup(op Operation) (Route, bool) {
	r, ok := routes[op]
	return r, ok
}

// Operations lists every known operation in name order.
func Operations() []Operation {
	ops := make([]Operation, 0, len(routes))
	for op := range routes {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Params carries path parameters for one call.
type Params map[string]string

// expand fills {name} segments with path-escaped values. Each value is
// escaped exactly once.
func (r Route) expand(params Params) (string, error) {
	segments := strings.Split(r.Path, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := seg[1 : len(seg)-1]
		value := params[name]
		if value == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
		segments[i] = url.PathEscape(value)
	}
	return strings.Join(segments, "/"), nil
}
