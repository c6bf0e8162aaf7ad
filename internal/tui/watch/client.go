package watch

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/agentlink/internal/client"
	"github.com/mattjoyce/agentlink/internal/protocol"
)

const probeTimeout = 2 * time.Second

// --- Message types ---

type healthMsg struct {
	protocol.HealthResponse
	latency time.Duration
}

type sessionsMsg []SessionRow

type tickMsg time.Time

// errMsg carries a failed poll; retry names the fetch to run again.
type errMsg struct {
	err   error
	retry func(*client.Client) tea.Cmd
}

func (e errMsg) Error() string { return e.err.Error() }

// SessionRow is the subset of a session the watch view displays. Engines
// report either flat timestamps or a nested time object; both are accepted.
type SessionRow struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updatedAt"`
	Running   bool   `json:"running"`
	Time      struct {
		Updated int64 `json:"updated"`
	} `json:"time"`
}

// Updated returns the last update time, or zero when the engine sent none.
func (s SessionRow) Updated() time.Time {
	ms := s.UpdatedAt
	if ms == 0 {
		ms = s.Time.Updated
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// --- Commands ---

func fetchHealth(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		start := time.Now()
		raw, err := c.Global.Health(ctx)
		if err != nil {
			return errMsg{err, fetchHealth}
		}
		h, err := client.Decode[protocol.HealthResponse](raw)
		if err != nil {
			return errMsg{err, fetchHealth}
		}
		return healthMsg{HealthResponse: h, latency: time.Since(start)}
	}
}

func fetchSessions(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		raw, err := c.Session.List(ctx)
		if err != nil {
			return errMsg{err, fetchSessions}
		}
		var rows []SessionRow
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rows); err != nil {
				return errMsg{err, fetchSessions}
			}
		}
		return sessionsMsg(rows)
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}
