package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const maxActivity = 50

// Activity is one observed change between two polls.
type Activity struct {
	At        time.Time
	Kind      string
	SessionID string
	Detail    string
}

const (
	activityCreated = "session.created"
	activityRemoved = "session.removed"
	activityBusy    = "session.running"
	activityIdle    = "session.idle"
	activityUp      = "engine.up"
	activityDown    = "engine.down"
)

// diffSessions reports what changed from prev to next. prev is keyed by id.
func diffSessions(prev map[string]SessionRow, next []SessionRow, now time.Time) []Activity {
	var out []Activity
	seen := make(map[string]bool, len(next))
	for _, s := range next {
		seen[s.ID] = true
		old, ok := prev[s.ID]
		switch {
		case !ok:
			out = append(out, Activity{At: now, Kind: activityCreated, SessionID: s.ID, Detail: s.Title})
		case !old.Running && s.Running:
			out = append(out, Activity{At: now, Kind: activityBusy, SessionID: s.ID})
		case old.Running && !s.Running:
			out = append(out, Activity{At: now, Kind: activityIdle, SessionID: s.ID})
		}
	}
	for id, old := range prev {
		if !seen[id] {
			out = append(out, Activity{At: now, Kind: activityRemoved, SessionID: id, Detail: old.Title})
		}
	}
	return out
}

// prependActivity adds entries newest first, capped at maxActivity.
func prependActivity(log []Activity, entries ...Activity) []Activity {
	if len(entries) == 0 {
		return log
	}
	out := make([]Activity, 0, len(log)+len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	out = append(out, log...)
	if len(out) > maxActivity {
		out = out[:maxActivity]
	}
	return out
}

func renderActivity(log []Activity, theme Theme, width int) string {
	innerWidth := width - 4

	if len(log) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("ACTIVITY"),
			theme.Dim.Render("  Waiting for changes..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, a := range log {
		if i >= 10 {
			break
		}
		lines = append(lines, formatActivity(a, theme))
	}

	body := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("ACTIVITY"), body)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatActivity(a Activity, theme Theme) string {
	ts := theme.Dim.Render(a.At.Format("15:04:05"))

	var style lipgloss.Style
	switch a.Kind {
	case activityCreated, activityUp:
		style = theme.StatusOK
	case activityRemoved, activityDown:
		style = theme.StatusFailed
	case activityBusy:
		style = theme.StatusRunning
	default:
		style = theme.Dim
	}
	kind := style.Render(fmt.Sprintf("%-16s", a.Kind))

	desc := a.SessionID
	if a.Detail != "" {
		desc = strings.TrimSpace(desc + " " + a.Detail)
	}
	return fmt.Sprintf("%s %s %s", ts, kind, desc)
}
