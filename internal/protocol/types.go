// Package protocol holds the JSON wire types shared by the client and the shim.
// Request bodies are closed structs: a body can only carry the fields its
// operation defines.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// PartTypeText is the only part type the shim understands.
const PartTypeText = "text"

// Part is one piece of prompt or response content.
type Part struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// TextPart is a convenience constructor.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// JoinText concatenates the text of all parts with no separator.
func JoinText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func validateParts(parts []Part) error {
	for i, p := range parts {
		if p.Type != "" && p.Type != PartTypeText {
			return fmt.Errorf("parts[%d]: unsupported type %q", i, p.Type)
		}
	}
	return nil
}

// LogBody is sent by app.log.
type LogBody struct {
	Service string         `json:"service"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

func (b LogBody) Validate() error {
	switch b.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be debug, info, warn or error (got %q)", b.Level)
	}
	if b.Service == "" {
		return errors.New("service is required")
	}
	return nil
}

// CreateSessionBody is sent by session.create.
type CreateSessionBody struct {
	Parts    []Part `json:"parts,omitempty"`
	Title    string `json:"title,omitempty"`
	ParentID string `json:"parentID,omitempty"`
}

func (b CreateSessionBody) Validate() error { return validateParts(b.Parts) }

// UpdateSessionBody is sent by session.update.
type UpdateSessionBody struct {
	Title string `json:"title"`
}

func (b UpdateSessionBody) Validate() error { return nil }

// InitSessionBody is sent by session.init.
type InitSessionBody struct {
	MessageID  string `json:"messageID"`
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

func (b InitSessionBody) Validate() error {
	if b.MessageID == "" || b.ProviderID == "" || b.ModelID == "" {
		return errors.New("messageID, providerID and modelID are required")
	}
	return nil
}

// SummarizeSessionBody is sent by session.summarize.
type SummarizeSessionBody struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

func (b SummarizeSessionBody) Validate() error {
	if b.ProviderID == "" || b.ModelID == "" {
		return errors.New("providerID and modelID are required")
	}
	return nil
}

// Output formats accepted by session.prompt.
const (
	OutputFormatText = "text"
	OutputFormatJSON = "json"
)

// PromptBody is sent by session.prompt.
type PromptBody struct {
	Parts        []Part `json:"parts"`
	NoReply      bool   `json:"noReply,omitempty"`
	OutputFormat string `json:"outputFormat,omitempty"`
}

func (b PromptBody) Validate() error {
	if len(b.Parts) == 0 {
		return errors.New("parts must not be empty")
	}
	switch b.OutputFormat {
	case "", OutputFormatText, OutputFormatJSON:
	default:
		return fmt.Errorf("unsupported outputFormat %q", b.OutputFormat)
	}
	return validateParts(b.Parts)
}

// Text is the concatenated prompt text.
func (b PromptBody) Text() string { return JoinText(b.Parts) }

// CommandBody is sent by session.command.
type CommandBody struct {
	Command   string `json:"command"`
	Arguments string `json:"arguments,omitempty"`
}

func (b CommandBody) Validate() error {
	if strings.TrimSpace(b.Command) == "" {
		return errors.New("command is required")
	}
	return nil
}

// ShellBody is sent by session.shell.
type ShellBody struct {
	Command string `json:"command"`
	Agent   string `json:"agent,omitempty"`
}

func (b ShellBody) Validate() error {
	if strings.TrimSpace(b.Command) == "" {
		return errors.New("command is required")
	}
	return nil
}

// HealthResponse answers GET /global/health.
type HealthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
}

// SessionRef identifies a session in create responses.
type SessionRef struct {
	ID string `json:"id"`
}

// SessionCreateResponse answers POST /session/create.
type SessionCreateResponse struct {
	Data SessionRef `json:"data"`
}

// ExecInfo describes how a shim execution ended.
type ExecInfo struct {
	ExitCode   int    `json:"exitCode"`
	Truncated  bool   `json:"truncated"`
	Aborted    bool   `json:"aborted"`
	Stream     string `json:"stream"` // stdout | stderr | none
	DurationMs int64  `json:"durationMs"`
}

// PromptResponse answers POST /session/{id}/prompt.
type PromptResponse struct {
	Parts []Part    `json:"parts"`
	Info  *ExecInfo `json:"info,omitempty"`
}

// Session is a stored shim session.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	Running   bool   `json:"running"`
}

// Message is one transcript entry of a shim session.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"` // user | assistant
	Parts     []Part `json:"parts"`
	ExitCode  *int   `json:"exitCode,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// AbortResponse answers POST /session/{id}/abort.
type AbortResponse struct {
	Aborted bool `json:"aborted"`
}

// ErrorResponse is the body of every shim error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Validator is implemented by request bodies.
type Validator interface {
	Validate() error
}
