package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/agentlink/internal/client"
)

// paramFlag collects repeated --param name=value pairs.
type paramFlag client.Params

func (p paramFlag) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p paramFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	p[name] = value
	return nil
}

func runCall(args []string) int {
	if len(args) > 0 && args[0] == "--list" {
		for _, op := range client.Operations() {
			route, _ := client.Lookup(op)
			fmt.Printf("%-20s %-6s %s\n", op, route.Method, route.Path)
		}
		return 0
	}
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		printCallHelp()
		return 1
	}
	op := client.Operation(args[0])

	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file or directory")
	url := fs.String("url", "", "Engine base URL (default from config)")
	body := fs.String("body", "", "JSON body, @FILE to read a file, or - for stdin")
	timeout := fs.Duration("timeout", 2*time.Minute, "Request timeout")
	params := paramFlag{}
	fs.Var(params, "param", "Path parameter name=value (repeatable)")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if _, ok := client.Lookup(op); !ok {
		fmt.Fprintf(os.Stderr, "Unknown operation: %s (see 'agentlink call --list')\n", op)
		return 1
	}

	payload, err := readBody(*body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Body: %v\n", err)
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

	var bodyArg any
	if payload != nil {
		bodyArg = payload
	}
	raw, err := c.Do(ctx, op, client.Params(params), bodyArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", op, err)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return 2
		}
		return 1
	}
	printRaw(raw)
	return 0
}

// readBody resolves the --body flag. Empty means no body.
func readBody(arg string) (json.RawMessage, error) {
	var data []byte
	var err error
	switch {
	case arg == "":
		return nil, nil
	case arg == "-":
		data, err = io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		data, err = os.ReadFile(arg[1:])
	default:
		data = []byte(arg)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, errors.New("not valid JSON")
	}
	return json.RawMessage(data), nil
}
