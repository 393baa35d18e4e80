package ingest

import (
	"slices"
	"time"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

// DefaultCheckInterval is used when the preferences carry no positive interval.
const DefaultCheckInterval = 5 * time.Minute

// Settings is the preference snapshot read at the top of each tick.
type Settings struct {
	Enabled        bool
	CheckInterval  time.Duration
	Zone           string
	SeverityFilter []alert.Severity
	Retention      time.Duration
}

// Admits reports whether alerts of sev pass the severity filter. An empty filter admits all.
func (s Settings) Admits(sev alert.Severity) bool {
	return len(s.SeverityFilter) == 0 || slices.Contains(s.SeverityFilter, sev)
}

// Interval returns CheckInterval, falling back to DefaultCheckInterval.
func (s Settings) Interval() time.Duration {
	if s.CheckInterval <= 0 {
		return DefaultCheckInterval
	}
	return s.CheckInterval
}

// SettingsSource returns the current preferences.
type SettingsSource interface {
	Current() Settings
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings Settings

// Current implements SettingsSource.
func (s StaticSettings) Current() Settings { return Settings(s) }
