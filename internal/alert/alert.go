// Package alert defines the hazard alert record consumed from the upstream feed.
package alert

import (
	"errors"
	"fmt"
	"time"
)

// Severity is the NWS ordinal urgency tag of an alert.
type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
	SeverityExtreme  Severity = "Extreme"
)

// Severities lists the accepted severities in ascending order.
var Severities = []Severity{SeverityMinor, SeverityModerate, SeveritySevere, SeverityExtreme}

// ErrMalformed is matched by every MalformedError.
var ErrMalformed = errors.New("malformed alert")

// MalformedError reports a feed record rejected at ingestion.
type MalformedError struct {
	ID     string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed alert: %s", e.Reason)
	}
	return fmt.Sprintf("malformed alert %s: %s", e.ID, e.Reason)
}

// Is reports whether target is ErrMalformed.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// ParseSeverity is a case-sensitive exact match against the four accepted values.
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Alert is one hazard notice from the upstream feed.
type Alert struct {
	ID          string    `json:"id"`
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Event       string    `json:"event,omitempty"`
	SenderName  string    `json:"senderName,omitempty"`
	AreaDesc    string    `json:"areaDesc,omitempty"`
	Instruction string    `json:"instruction,omitempty"`
	Onset       time.Time `json:"onset,omitzero"`
	Ends        time.Time `json:"ends,omitzero"`
}

// IsHighPriority is true for Severe and Extreme alerts.
func (a *Alert) IsHighPriority() bool {
	return a.Severity == SeveritySevere || a.Severity == SeverityExtreme
}

// SameContent compares the fields that decide whether an alert was updated.
func (a *Alert) SameContent(other *Alert) bool {
	return a.Headline == other.Headline && a.Description == other.Description
}

// Validate rejects records without an id or with a severity outside the enumeration.
func (a *Alert) Validate() error {
	if a.ID == "" {
		return &MalformedError{Reason: "missing id"}
	}
	if _, err := ParseSeverity(string(a.Severity)); err != nil {
		return &MalformedError{ID: a.ID, Reason: err.Error()}
	}
	return nil
}

// Snapshot is the set of currently active alerts returned by one fetch.
type Snapshot struct {
	Alerts    []Alert
	Rejected  []*MalformedError
	FetchedAt time.Time
}
