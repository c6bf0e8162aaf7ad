package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/agentlink/internal/client"
)

// DefaultInterval is how often health and sessions are polled.
const DefaultInterval = 2 * time.Second

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	client   *client.Client
	interval time.Duration
	now      func() time.Time

	width  int
	height int

	health   HealthState
	sessions map[string]SessionRow
	loaded   bool
	activity []Activity

	ticker  Ticker
	spinner Spinner
	table   table.Model
	theme   Theme

	lastError string
}

// New creates a watch model polling c every interval.
func New(c *client.Client, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{
		client:   c,
		interval: interval,
		now:      time.Now,
		sessions: make(map[string]SessionRow),
		ticker:   NewTicker(),
		spinner:  NewSpinner(),
		table:    newSessionTable(),
		theme:    NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchHealth(m.client),
		fetchSessions(m.client),
		tick(time.Second),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, tea.Batch(fetchHealth(m.client), fetchSessions(m.client))
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(3, msg.Height/3))

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay(m.now())
		return m, tick(time.Second)

	case healthMsg:
		now := m.now()
		if !m.health.Connected || m.health.Healthy != msg.Healthy {
			kind := activityUp
			if !msg.Healthy {
				kind = activityDown
			}
			m.activity = prependActivity(m.activity, Activity{At: now, Kind: kind, Detail: msg.Version})
		}
		m.health = HealthState{
			Healthy:   msg.Healthy,
			Version:   msg.Version,
			Connected: true,
			Latency:   msg.latency,
			LastCheck: now,
		}
		m.lastError = ""
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return fetchHealth(m.client)() })

	case sessionsMsg:
		now := m.now()
		changes := diffSessions(m.sessions, msg, now)
		if m.loaded && len(changes) > 0 {
			m.activity = prependActivity(m.activity, changes...)
			m.spinner.OnChange(now)
		}
		m.loaded = true
		m.sessions = make(map[string]SessionRow, len(msg))
		for _, s := range msg {
			m.sessions[s.ID] = s
		}
		m.table.SetRows(sessionRows(sortedSessions(m.sessions), now))
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return fetchSessions(m.client)() })

	case errMsg:
		if m.health.Connected {
			m.activity = prependActivity(m.activity, Activity{At: m.now(), Kind: activityDown, Detail: msg.Error()})
		}
		m.health.Connected = false
		m.lastError = msg.Error()
		retry := msg.retry
		if retry == nil {
			retry = fetchHealth
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return retry(m.client)() })
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	now := m.now()
	header := renderHeader(m.client.BaseURL(), m.health, len(m.sessions), m.ticker, m.spinner, m.theme, m.width, now)

	sessionsBox := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("SESSIONS"), m.table.View()),
	)
	activity := renderActivity(m.activity, m.theme, m.width)

	parts := []string{header, sessionsBox, activity}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [r] Refresh • [↑/↓] Navigate Sessions"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// Run starts the TUI against c and blocks until the user quits.
func Run(c *client.Client, interval time.Duration) error {
	_, err := tea.NewProgram(New(c, interval)).Run()
	return err
}
