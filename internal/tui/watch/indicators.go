package watch

import (
	"strings"
	"time"
)

// Ticker rotates through frames to show the view is alive.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Spinner shows session activity with a decaying dot pattern.
// Lights up when the session list changes, fades over time.
type Spinner struct {
	dots       int
	lastChange time.Time
}

func NewSpinner() Spinner {
	return Spinner{}
}

func (s *Spinner) OnChange(at time.Time) {
	s.dots = 5
	s.lastChange = at
}

// Decay fades the dots based on time since the last change.
func (s *Spinner) Decay(now time.Time) {
	if s.dots == 0 {
		return
	}
	elapsed := now.Sub(s.lastChange)
	switch {
	case elapsed > 10*time.Second:
		s.dots = 0
	case elapsed > 8*time.Second:
		s.dots = 1
	case elapsed > 6*time.Second:
		s.dots = 2
	case elapsed > 4*time.Second:
		s.dots = 3
	case elapsed > 2*time.Second:
		s.dots = 4
	}
}

func (s Spinner) Dots() int { return s.dots }

func (s Spinner) Render(theme Theme) string {
	var result strings.Builder
	for i := range 5 {
		if i < s.dots {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}

func (s Spinner) LastChange() time.Time {
	return s.lastChange
}
