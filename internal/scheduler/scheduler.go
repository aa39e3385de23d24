package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"portfolio-alerts/internal/config"
)

// Action is the work one invocation performs.
type Action string

const (
	// ActionBriefing sends the portfolio briefing.
	ActionBriefing Action = "briefing"
	// ActionNews sweeps news and position prices.
	ActionNews Action = "news"
	// ActionMarket sweeps position prices and market indices.
	ActionMarket Action = "market"
	// ActionAll runs every sweep.
	ActionAll Action = "all"
)

var modeTokens = map[string]Action{
	"briefing": ActionBriefing,
	"morning":  ActionBriefing,
	"news":     ActionNews,
	"sweep":    ActionNews,
	"market":   ActionMarket,
	"price":    ActionMarket,
	"index":    ActionMarket,
	"all":      ActionAll,
	"combined": ActionAll,
}

// ParseMode maps an explicit mode token to an action.
func ParseMode(mode string) (Action, bool) {
	a, ok := modeTokens[strings.ToLower(strings.TrimSpace(mode))]
	return a, ok
}

// Window is a recurring time span bound to an action.
type Window struct {
	Spec      string
	Schedule  cron.Schedule
	Tolerance time.Duration
	Action    Action
}

// Contains reports whether now lies in [fire, fire+Tolerance) for some fire
// time of the schedule. A zero Tolerance covers the fire minute only.
func (w Window) Contains(now time.Time) bool {
	width := w.Tolerance
	if width <= 0 {
		width = time.Minute
	}
	fire := w.Schedule.Next(now.Add(-width))
	return !fire.After(now)
}

// Selector chooses the action for an invocation.
type Selector struct {
	windows  []Window
	location *time.Location
	fallback Action
}

// NewSelector parses the configured windows.
func NewSelector(cfg config.SchedulerConfig) (*Selector, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler.timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	windows := make([]Window, 0, len(cfg.Windows))
	for i, wc := range cfg.Windows {
		sched, err := cron.ParseStandard(wc.Cron)
		if err != nil {
			return nil, fmt.Errorf("scheduler.windows[%d].cron %q: %w", i, wc.Cron, err)
		}
		action, ok := ParseMode(wc.Action)
		if !ok {
			return nil, fmt.Errorf("scheduler.windows[%d].action %q is not a known mode", i, wc.Action)
		}
		windows = append(windows, Window{Spec: wc.Cron, Schedule: sched, Tolerance: wc.Tolerance, Action: action})
	}

	return &Selector{windows: windows, location: loc, fallback: ActionNews}, nil
}

// Select returns the action for mode at now. A known mode token wins; an empty
// or unknown token falls back to the first window containing now, and to the
// news sweep when none does.
func (s *Selector) Select(mode string, now time.Time) Action {
	if a, ok := ParseMode(mode); ok {
		return a
	}
	local := now.In(s.location)
	for _, w := range s.windows {
		if w.Contains(local) {
			return w.Action
		}
	}
	return s.fallback
}

// Location returns the timezone windows are evaluated in.
func (s *Selector) Location() *time.Location {
	return s.location
}
