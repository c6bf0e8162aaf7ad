//go:build ignore

// Command mock-engine simulates an engine binary for supervisor tests.
// It accepts "serve --port N [--model M] [extra...]" and answers
// GET /global/health once listening.
//
// Environment variables control behavior:
//
//	MOCK_ENGINE_DELAY=1s        wait before opening the listener
//	MOCK_ENGINE_MODE=unhealthy  answer the health probe with 500
//	MOCK_ENGINE_MODE=ignore-term ignore SIGTERM (forces SIGKILL escalation)
//	MOCK_ENGINE_ARGS_FILE=path  write argv and AGENTLINK_TEST_MARKER to path
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	args := os.Args[1:]
	if len(args) < 3 || args[0] != "serve" || args[1] != "--port" {
		fmt.Fprintf(os.Stderr, "usage: mock-engine serve --port N (got %q)\n", strings.Join(args, " "))
		os.Exit(2)
	}
	port := args[2]

	if path := os.Getenv("MOCK_ENGINE_ARGS_FILE"); path != "" {
		record := map[string]any{
			"args":   args,
			"marker": os.Getenv("AGENTLINK_TEST_MARKER"),
		}
		b, _ := json.Marshal(record)
		_ = os.WriteFile(path, b, 0o644)
	}

	mode := os.Getenv("MOCK_ENGINE_MODE")
	if mode == "ignore-term" {
		signal.Ignore(syscall.SIGTERM)
	}

	if d, err := time.ParseDuration(os.Getenv("MOCK_ENGINE_DELAY")); err == nil {
		time.Sleep(d)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/global/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if mode == "unhealthy" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"healthy":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"healthy":true,"version":"mock"}`))
	})

	fmt.Fprintf(os.Stdout, "mock engine listening on %s\n", port)
	if err := http.ListenAndServe("127.0.0.1:"+port, mux); err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
}
