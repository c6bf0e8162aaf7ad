package watch

import (
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

func newSessionTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 40},
			{Title: "Title", Width: 30},
			{Title: "State", Width: 8},
			{Title: "Updated", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// sortedSessions orders by last update, newest first, then by id.
func sortedSessions(byID map[string]SessionRow) []SessionRow {
	out := make([]SessionRow, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Updated(), out[j].Updated()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sessionRows(sessions []SessionRow, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(sessions))
	for _, s := range sessions {
		state := "idle"
		if s.Running {
			state = "running"
		}
		age := "-"
		if u := s.Updated(); !u.IsZero() {
			age = formatAge(now.Sub(u))
		}
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		rows = append(rows, table.Row{s.ID, title, state, age})
	}
	return rows
}
