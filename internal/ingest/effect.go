package ingest

import (
	"context"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

// EffectKind names a side effect requested from the UI/OS collaborators.
type EffectKind string

const (
	// EffectUrgentAlert hands a high-priority alert to the main window.
	EffectUrgentAlert EffectKind = "urgent_alert"

	// EffectFocusWindow shows and focuses the main window.
	EffectFocusWindow EffectKind = "focus_window"

	// EffectPlaySound plays the sound for Tier.
	EffectPlaySound EffectKind = "play_sound"

	// EffectNotify shows a native notification.
	EffectNotify EffectKind = "notify"

	// EffectShowDetail opens the detail view of AlertID.
	EffectShowDetail EffectKind = "show_detail"

	// EffectReportError surfaces a fetch or persistence failure.
	EffectReportError EffectKind = "report_error"
)

// SoundTier selects which alert sound is played.
type SoundTier string

const (
	SoundStandard SoundTier = "standard"
	SoundEAS      SoundTier = "eas"
)

// Effect is one side-effect request. Only the fields relevant to Kind are set.
type Effect struct {
	Kind    EffectKind   `json:"kind"`
	Tier    SoundTier    `json:"tier,omitempty"`
	Title   string       `json:"title,omitempty"`
	Body    string       `json:"body,omitempty"`
	Silent  bool         `json:"silent,omitempty"`
	AlertID string       `json:"alertId,omitempty"`
	Alert   *alert.Alert `json:"alert,omitempty"`
	OnClick *Effect      `json:"onClick,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Batch is the ordered list of effects for one alert.
type Batch []Effect

// Kinds returns the kinds of the effects in order.
func (b Batch) Kinds() []EffectKind {
	out := make([]EffectKind, len(b))
	for i := range b {
		out[i] = b[i].Kind
	}
	return out
}

// Sink performs effects. Implementations must be safe for concurrent use.
type Sink interface {
	Perform(ctx context.Context, e Effect) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, e Effect) error

// Perform implements Sink.
func (f SinkFunc) Perform(ctx context.Context, e Effect) error { return f(ctx, e) }

// PlaySound requests the sound for tier.
func PlaySound(tier SoundTier) Effect {
	return Effect{Kind: EffectPlaySound, Tier: tier}
}

// Notify requests a native notification; onClick may be nil.
func Notify(title, body string, onClick *Effect) Effect {
	return Effect{Kind: EffectNotify, Title: title, Body: body, OnClick: onClick}
}

// FocusWindow requests the main window be shown and focused.
func FocusWindow() Effect {
	return Effect{Kind: EffectFocusWindow}
}

// ShowDetail requests the detail view for an alert.
func ShowDetail(alertID string) Effect {
	return Effect{Kind: EffectShowDetail, AlertID: alertID}
}

// UrgentAlert hands al to the main window.
func UrgentAlert(al *alert.Alert) Effect {
	cp := *al
	return Effect{Kind: EffectUrgentAlert, AlertID: al.ID, Alert: &cp}
}

// ReportError surfaces msg to the user.
func ReportError(msg string) Effect {
	return Effect{Kind: EffectReportError, Message: msg}
}
