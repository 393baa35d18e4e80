// Package slack mirrors alert effects to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

const (
	maxTextLen  = 3000
	httpTimeout = 10 * time.Second
)

// Notifier posts urgent alerts, notifications and error reports to a Slack webhook.
// Other effect kinds are ignored.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Perform is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Perform implements ingest.Sink.
func (n *Notifier) Perform(ctx context.Context, e ingest.Effect) error {
	if n.webhookURL == "" {
		return nil
	}

	var msg map[string]any
	switch e.Kind {
	case ingest.EffectUrgentAlert:
		if e.Alert == nil {
			return nil
		}
		msg = urgentMessage(e.Alert)
	case ingest.EffectNotify:
		// the "no updates" heartbeat is silent and not worth a message
		if e.Silent {
			return nil
		}
		msg = notifyMessage(e)
	case ingest.EffectReportError:
		msg = errorMessage(e.Message)
	default:
		return nil
	}
	return n.post(ctx, msg)
}

func (n *Notifier) post(ctx context.Context, msg map[string]any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func urgentMessage(al *alert.Alert) map[string]any {
	blocks := []map[string]any{
		header(fmt.Sprintf("%s %s", severityEmoji(al.Severity), nonEmpty(al.Event, al.Headline))),
		{"type": "divider"},
		alertFields(al),
		section(fmt.Sprintf("*%s*\n\n%s", al.Headline, truncate(al.Description, maxTextLen))),
	}
	if al.Instruction != "" {
		blocks = append(blocks, section("*Instructions*\n\n"+truncate(al.Instruction, maxTextLen)))
	}
	blocks = append(blocks, footer(al.ID))
	return map[string]any{"blocks": blocks}
}

func notifyMessage(e ingest.Effect) map[string]any {
	blocks := []map[string]any{
		section(fmt.Sprintf("*%s*\n%s", e.Title, truncate(e.Body, maxTextLen))),
	}
	if e.OnClick != nil && e.OnClick.AlertID != "" {
		blocks = append(blocks, footer(e.OnClick.AlertID))
	}
	return map[string]any{"blocks": blocks}
}

func errorMessage(message string) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			header("⚠️ Alert check failed"),
			section(truncate(message, maxTextLen)),
		},
	}
}

func header(text string) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(text, 150),
		},
	}
}

func section(text string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func alertFields(al *alert.Alert) map[string]any {
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", al.Severity)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Area:* %s", nonEmpty(al.AreaDesc, "n/a"))},
	}
	if !al.Onset.IsZero() {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Onset:* %s", al.Onset.UTC().Format("2006-01-02 15:04 UTC"))})
	}
	if !al.Ends.IsZero() {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Ends:* %s", al.Ends.UTC().Format("2006-01-02 15:04 UTC"))})
	}
	if al.SenderName != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Issued by:* %s", al.SenderName)})
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func footer(alertID string) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("wxalerts • %s", alertID)},
		},
	}
}

func severityEmoji(sev alert.Severity) string {
	switch sev {
	case alert.SeverityExtreme:
		return "\U0001f534" // red circle
	case alert.SeveritySevere:
		return "\U0001f7e0" // orange circle
	case alert.SeverityModerate:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// truncate keeps s within limit bytes, cutting on a rune boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := limit - 3
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
