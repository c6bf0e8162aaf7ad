package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks engine health from GET /global/health polling.
type HealthState struct {
	Healthy   bool
	Version   string
	Connected bool
	Latency   time.Duration
	LastCheck time.Time
}

func renderHeader(url string, health HealthState, sessions int, ticker Ticker, spinner Spinner, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	switch {
	case !health.Connected:
		statusText = theme.StatusFailed.Render("UNREACHABLE")
	case !health.Healthy:
		statusText = theme.StatusFailed.Render("UNHEALTHY")
	}

	lastChange := "never"
	if !spinner.LastChange().IsZero() {
		lastChange = fmt.Sprintf("%s ago", now.Sub(spinner.LastChange()).Round(time.Second))
	}

	titleText := fmt.Sprintf(" AGENTLINK WATCH %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	version := health.Version
	if version == "" {
		version = "-"
	}
	statsLine := fmt.Sprintf(" %s  %s  version %s  probe %s  sessions %d",
		statusText,
		theme.Dim.Render(url),
		version,
		health.Latency.Round(time.Millisecond),
		sessions,
	)
	activityLine := fmt.Sprintf(" Last change: %s %s", lastChange, spinner.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatAge(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
