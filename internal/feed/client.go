// Package feed fetches active hazard alerts from the National Weather Service API.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

const (
	// DefaultBaseURL is the public NWS API.
	DefaultBaseURL = "https://api.weather.gov"

	// DefaultUserAgent identifies the client to NWS, which rejects requests without one.
	DefaultUserAgent = "wxalerts/1.0 (github.com/linnemanlabs/wxalerts)"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
	maxMessageLen  = 256
)

// FetchError reports a failed fetch: a non-2xx status or a transport/decoding failure.
type FetchError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("feed returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("feed request failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client queries the active-alerts endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
}

// New creates a client. Empty arguments fall back to the defaults.
func New(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		now: time.Now,
	}
}

// FetchSnapshot returns the currently active alerts for zone. Records that
// fail validation are returned in Snapshot.Rejected instead of Alerts.
func (c *Client) FetchSnapshot(ctx context.Context, zone string) (*alert.Snapshot, error) {
	u := c.baseURL + "/alerts/active?zone=" + url.QueryEscape(zone)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodyBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: problemDetail(resp, body)}
	}

	var fc featureCollection
	if err := json.NewDecoder(body).Decode(&fc); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("decode response: %w", err)}
	}

	snap := &alert.Snapshot{
		Alerts:    make([]alert.Alert, 0, len(fc.Features)),
		FetchedAt: c.now(),
	}
	for i := range fc.Features {
		al := fc.Features[i].Properties.toAlert()
		if err := al.Validate(); err != nil {
			var me *alert.MalformedError
			if !errors.As(err, &me) {
				me = &alert.MalformedError{ID: al.ID, Reason: err.Error()}
			}
			snap.Rejected = append(snap.Rejected, me)
			continue
		}
		snap.Alerts = append(snap.Alerts, al)
	}
	return snap, nil
}

// problemDetail extracts the RFC 7807 detail NWS sends on errors, falling back to the status text.
func problemDetail(resp *http.Response, body io.Reader) string {
	var p struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	if err := json.Unmarshal(raw, &p); err == nil {
		if p.Detail != "" {
			return truncate(p.Detail)
		}
		if p.Title != "" {
			return truncate(p.Title)
		}
	}
	return http.StatusText(resp.StatusCode)
}

// truncate cuts s to at most maxMessageLen bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	n := maxMessageLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

type featureCollection struct {
	Features []struct {
		Properties properties `json:"properties"`
	} `json:"features"`
}

type properties struct {
	ID          string `json:"id"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Event       string `json:"event"`
	SenderName  string `json:"senderName"`
	AreaDesc    string `json:"areaDesc"`
	Instruction string `json:"instruction"`
	Onset       string `json:"onset"`
	Ends        string `json:"ends"`
}

func (p *properties) toAlert() alert.Alert {
	return alert.Alert{
		ID:          p.ID,
		Headline:    p.Headline,
		Description: p.Description,
		Severity:    alert.Severity(p.Severity),
		Event:       p.Event,
		SenderName:  p.SenderName,
		AreaDesc:    p.AreaDesc,
		Instruction: p.Instruction,
		Onset:       parseTime(p.Onset),
		Ends:        parseTime(p.Ends),
	}
}

// parseTime returns the zero time for absent or unparsable timestamps.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
