// Package prefs loads the user preference file and keeps it current as it changes on disk.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/linnemanlabs/go-core/log"
	"github.com/spf13/viper"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

// DefaultZone is used when neither the file nor the caller names a zone.
const DefaultZone = "AZC009"

// Prefs mirrors the preference file sections the daemon reads.
type Prefs struct {
	Weather Weather `mapstructure:"weather"`
	General General `mapstructure:"general"`
}

// Weather holds alert polling preferences. CheckInterval is in milliseconds.
type Weather struct {
	Enabled           bool     `mapstructure:"enabled"`
	CheckInterval     int64    `mapstructure:"checkInterval"`
	Zone              string   `mapstructure:"zone"`
	SeverityFilter    []string `mapstructure:"severityFilter"`
	AutoPlaySound     bool     `mapstructure:"autoPlaySound"`
	ShowNotifications bool     `mapstructure:"showNotifications"`
}

// General holds retention settings. DataRetention is in days; 0 disables pruning.
type General struct {
	DataRetention int `mapstructure:"dataRetention"`
}

// Source serves the latest successfully loaded preferences.
type Source struct {
	v      *viper.Viper
	path   string
	zone   string
	logger log.Logger
	cur    atomic.Pointer[Prefs]
}

// Load reads the preference file at path. A missing file (or empty path)
// yields the defaults; fallbackZone replaces the default zone in that case.
func Load(path, fallbackZone string, logger log.Logger) (*Source, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if fallbackZone == "" {
		fallbackZone = DefaultZone
	}

	v := viper.New()
	v.SetDefault("weather.enabled", true)
	v.SetDefault("weather.checkInterval", ingest.DefaultCheckInterval.Milliseconds())
	v.SetDefault("weather.zone", fallbackZone)
	v.SetDefault("weather.severityFilter", severityNames())
	v.SetDefault("weather.autoPlaySound", true)
	v.SetDefault("weather.showNotifications", true)
	v.SetDefault("general.dataRetention", 30)

	s := &Source{v: v, path: path, zone: fallbackZone, logger: logger}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read preferences %s: %w", path, err)
		}
	}

	p, err := s.decode()
	if err != nil {
		return nil, err
	}
	s.cur.Store(p)
	return s, nil
}

func severityNames() []string {
	out := make([]string, len(alert.Severities))
	for i, sev := range alert.Severities {
		out[i] = string(sev)
	}
	return out
}

func (s *Source) decode() (*Prefs, error) {
	var p Prefs
	if err := s.v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if p.Weather.Zone == "" {
		p.Weather.Zone = s.zone
	}
	for _, name := range p.Weather.SeverityFilter {
		if _, err := alert.ParseSeverity(name); err != nil {
			return nil, fmt.Errorf("weather.severityFilter: %w", err)
		}
	}
	if p.General.DataRetention < 0 {
		return nil, fmt.Errorf("general.dataRetention must be >= 0, got %d", p.General.DataRetention)
	}
	return &p, nil
}

// Watch reloads the file whenever it changes until ctx is done. Invalid
// edits are logged and the previous preferences stay in effect.
func (s *Source) Watch(ctx context.Context) {
	if s.path == "" {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if err := s.reload(); err != nil {
			s.logger.Warn(ctx, "ignoring invalid preferences change", "path", e.Name, "error", err)
			return
		}
		s.logger.Info(ctx, "preferences reloaded", "path", e.Name, "op", e.Op.String())
	})
	s.v.WatchConfig()
}

// reload re-reads the file and swaps in the result when it is valid.
func (s *Source) reload() error {
	if err := s.v.ReadInConfig(); err != nil {
		return err
	}
	p, err := s.decode()
	if err != nil {
		return err
	}
	s.cur.Store(p)
	return nil
}

// Prefs returns a copy of the current preferences.
func (s *Source) Prefs() Prefs {
	p := *s.cur.Load()
	p.Weather.SeverityFilter = append([]string(nil), p.Weather.SeverityFilter...)
	return p
}

// Current implements ingest.SettingsSource.
func (s *Source) Current() ingest.Settings {
	p := s.cur.Load()
	st := ingest.Settings{
		Enabled:       p.Weather.Enabled,
		CheckInterval: time.Duration(p.Weather.CheckInterval) * time.Millisecond,
		Zone:          p.Weather.Zone,
		Retention:     time.Duration(p.General.DataRetention) * 24 * time.Hour,
	}
	for _, name := range p.Weather.SeverityFilter {
		st.SeverityFilter = append(st.SeverityFilter, alert.Severity(name))
	}
	return st
}

// Toggles reports the sound and notification switches. It matches effects.Toggles.
func (s *Source) Toggles() (sound, notifications bool) {
	p := s.cur.Load()
	return p.Weather.AutoPlaySound, p.Weather.ShowNotifications
}
