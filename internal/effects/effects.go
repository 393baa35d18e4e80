// Package effects provides ingest.Sink implementations the daemon composes:
// a fan-out, a structured-log sink, a preference gate and a bounded recorder
// that the UI reads effect requests from.
package effects

import (
	"context"
	"errors"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

// Fanout performs every effect on each sink in order and joins their errors.
type Fanout []ingest.Sink

// Perform implements ingest.Sink.
func (f Fanout) Perform(ctx context.Context, e ingest.Effect) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Perform(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes one log line per effect.
type LogSink struct {
	L log.Logger
}

// Perform implements ingest.Sink.
func (s LogSink) Perform(ctx context.Context, e ingest.Effect) error {
	kv := []any{"kind", string(e.Kind)}
	if e.AlertID != "" {
		kv = append(kv, "alert_id", e.AlertID)
	}
	switch e.Kind {
	case ingest.EffectPlaySound:
		kv = append(kv, "tier", string(e.Tier))
	case ingest.EffectNotify:
		kv = append(kv, "title", e.Title, "silent", e.Silent)
	case ingest.EffectUrgentAlert:
		if e.Alert != nil {
			kv = append(kv, "alert_id", e.Alert.ID, "severity", string(e.Alert.Severity), "event", e.Alert.Event)
		}
	case ingest.EffectReportError:
		s.L.Warn(ctx, "alert check error reported", "message", e.Message)
		return nil
	}
	s.L.Info(ctx, "effect requested", kv...)
	return nil
}

// Toggles reports which optional effect kinds are currently enabled.
type Toggles func() (sound, notifications bool)

// Gate drops play_sound and non-silent notify effects the user turned off.
// Urgent alerts, focus and error reports always pass.
type Gate struct {
	Next    ingest.Sink
	Toggles Toggles
}

// Perform implements ingest.Sink.
func (g Gate) Perform(ctx context.Context, e ingest.Effect) error {
	if g.Toggles != nil {
		sound, notes := g.Toggles()
		if e.Kind == ingest.EffectPlaySound && !sound && e.Tier != ingest.SoundEAS {
			return nil
		}
		if e.Kind == ingest.EffectNotify && !notes {
			return nil
		}
	}
	return g.Next.Perform(ctx, e)
}
