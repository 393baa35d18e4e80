package ingest

import (
	"testing"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	stored := alert.Alert{ID: "seen-stored", Headline: "Flood Watch", Description: "rivers rising", Severity: alert.SeverityModerate}
	st := NewStateFrom(
		map[string]struct{}{"seen-stored": {}, "seen-only": {}},
		[]alert.Alert{stored},
	)

	tests := []struct {
		name string
		al   alert.Alert
		want Classification
	}{
		{"new extreme", alert.Alert{ID: "n1", Severity: alert.SeverityExtreme}, ClassNewHighPriority},
		{"new severe", alert.Alert{ID: "n2", Severity: alert.SeveritySevere}, ClassNewHighPriority},
		{"new moderate", alert.Alert{ID: "n3", Severity: alert.SeverityModerate}, ClassNewNormal},
		{"new minor", alert.Alert{ID: "n4", Severity: alert.SeverityMinor}, ClassNewNormal},
		{"seen without record", alert.Alert{ID: "seen-only", Severity: alert.SeverityMinor}, ClassAlreadyAtCapacity},
		{"unchanged", stored, ClassUnchanged},
		{"headline changed", alert.Alert{ID: "seen-stored", Headline: "Flood Warning", Description: "rivers rising"}, ClassUpdated},
		{"description changed", alert.Alert{ID: "seen-stored", Headline: "Flood Watch", Description: "rivers cresting"}, ClassUpdated},
		{"severity change alone is unchanged", alert.Alert{ID: "seen-stored", Headline: "Flood Watch", Description: "rivers rising", Severity: alert.SeverityExtreme}, ClassUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(&tt.al, st); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_SeenHighPriorityWithoutRecordIsAtCapacity(t *testing.T) {
	t.Parallel()

	st := NewStateFrom(map[string]struct{}{"A1": {}}, nil)
	al := alert.Alert{ID: "A1", Severity: alert.SeverityExtreme}
	if got := Classify(&al, st); got != ClassAlreadyAtCapacity {
		t.Errorf("Classify = %q, want %q", got, ClassAlreadyAtCapacity)
	}
}
