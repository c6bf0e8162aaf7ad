package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattjoyce/agentlink/internal/client"
	"github.com/mattjoyce/agentlink/internal/protocol"
)

// sessionAction runs one session action against a client.
type sessionAction func(ctx context.Context, c *client.Client, a *sessionArgs) (json.RawMessage, error)

type sessionArgs struct {
	id      string
	title   string
	parent  string
	text    string
	noReply bool
	format  string
}

var sessionActions = map[string]struct {
	usage   string
	needsID bool
	run     sessionAction
}{
	"list": {"", false, func(ctx context.Context, c *client.Client, _ *sessionArgs) (json.RawMessage, error) {
		return c.Session.List(ctx)
	}},
	"get": {"--id ID", true, func(ctx context.Context, c *client.Client, a *sessionArgs) (json.RawMessage, error) {
		return c.Session.Get(ctx, a.id)
	}},
	"create": {"[--title T] [--parent ID] [--text PROMPT]", false, func(ctx context.Context, c *client.Client, a *sessionArgs) (json.RawMessage, error) {
		body := protocol.CreateSessionBody{Title: a.title, ParentID: a.parent}
		if a.text != "" {
			body.Parts = []protocol.Part{protocol.TextPart(a.text)}
		}
		return c.Session.Create(ctx, body)
	}},
	"prompt": {"--id ID --text PROMPT [--no-reply] [--format text|json]", true, func(ctx context.Context, c *client.Client, a *sessionArgs) (json.RawMessage, error) {
		body := protocol.PromptBody{NoReply: a.noReply, OutputFormat: a.format}
		if a.text != "" {
			body.Parts = []protocol.Part{protocol.TextPart(a.text)}
		}
		return c.Session.Prompt(ctx, a.id, body)
	}},
	"messages": {"--id ID", true, func(ctx context.Context, c *client.Client, a *sessionArgs) (json.RawMessage, error) {
		return c.Session.Messages(ctx, a.id)
	}},
	"abort": {"--id ID", true, func(ctx context.Context, c *client.Client, a *sessionArgs) (json.RawMessage, error) {
		return c.Session.Abort(ctx, a.id)
	}},
	"delete": {"--id ID", true, func(ctx context.Context, c *client.Client, a *sessionArgs) (json.RawMessage, error) {
		return c.Session.Delete(ctx, a.id)
	}},
}

func runSessionNoun(args []string) int {
	if len(args) < 1 {
		printSessionNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSessionNounHelp(os.Stdout)
		return 0
	}

	name := args[0]
	action, ok := sessionActions[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown session action: %s\n", name)
		printSessionNounHelp(os.Stderr)
		return 1
	}
	usage := fmt.Sprintf("Usage: agentlink session %s [--config PATH] [--url URL] %s", name, action.usage)
	if hasHelpFlag(args[1:]) {
		fmt.Println(usage)
		return 0
	}

	fs := flag.NewFlagSet("session "+name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file or directory")
	url := fs.String("url", "", "Engine base URL (default from config)")
	timeout := fs.Duration("timeout", 2*time.Minute, "Request timeout")
	a := &sessionArgs{}
	fs.StringVar(&a.id, "id", "", "Session ID")
	fs.StringVar(&a.title, "title", "", "Session title (create)")
	fs.StringVar(&a.parent, "parent", "", "Parent session ID (create)")
	fs.StringVar(&a.text, "text", "", "Prompt text")
	fs.BoolVar(&a.noReply, "no-reply", false, "Store the prompt without running it (prompt)")
	fs.StringVar(&a.format, "format", "", "Output format hint: text or json (prompt)")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if a.id == "" && fs.NArg() > 0 {
		a.id = fs.Arg(0)
	}
	if action.needsID && a.id == "" {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	c, err := newClient(cfg, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid engine URL: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	raw, err := action.run(ctx, c, a)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session %s: %v\n", name, err)
		return 1
	}
	printRaw(raw)
	return 0
}

func printSessionNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: agentlink session <action> [flags]")
	fmt.Fprintln(w, "Actions: list, get, create, prompt, messages, abort, delete")
}
