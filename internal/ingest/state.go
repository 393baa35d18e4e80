package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

// Delta is a single state change produced by Dispatch. The zero value is no change.
type Delta struct {
	AddSeenID string
	Upsert    *alert.Alert
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.AddSeenID == "" && d.Upsert == nil
}

// State is an in-memory view of the persisted seen ids and stored alerts.
// Stored alerts are kept most recent first with at most one entry per id.
type State struct {
	seen   map[string]struct{}
	stored []alert.Alert
}

// NewState returns an empty state.
func NewState() *State {
	return &State{seen: make(map[string]struct{})}
}

// NewStateFrom builds a state from previously persisted records.
func NewStateFrom(seenIDs map[string]struct{}, stored []alert.Alert) *State {
	st := NewState()
	for id := range seenIDs {
		st.seen[id] = struct{}{}
	}
	st.stored = append(st.stored, stored...)
	return st
}

// Seen reports whether id was ever classified as new.
func (s *State) Seen(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Find returns a copy of the stored alert with the given id.
func (s *State) Find(id string) (*alert.Alert, bool) {
	for i := range s.stored {
		if s.stored[i].ID == id {
			cp := s.stored[i]
			return &cp, true
		}
	}
	return nil, false
}

// SeenIDs returns the seen ids in lexical order.
func (s *State) SeenIDs() []string {
	out := make([]string, 0, len(s.seen))
	for id := range s.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stored returns a copy of the stored alerts, most recent first.
func (s *State) Stored() []alert.Alert {
	out := make([]alert.Alert, len(s.stored))
	copy(out, s.stored)
	return out
}

// Apply mutates the state by d. It fails without changing anything when the
// upsert targets an id that is neither seen nor added by the same delta.
func (s *State) Apply(d Delta) error {
	if d.Upsert != nil {
		if d.Upsert.ID == "" {
			return fmt.Errorf("%w: empty id", ErrUnseenUpsert)
		}
		if !s.Seen(d.Upsert.ID) && d.AddSeenID != d.Upsert.ID {
			return fmt.Errorf("%w: %s", ErrUnseenUpsert, d.Upsert.ID)
		}
	}
	if d.AddSeenID != "" {
		s.seen[d.AddSeenID] = struct{}{}
	}
	if d.Upsert != nil {
		s.stored = upsertFront(s.stored, *d.Upsert)
	}
	return nil
}

// upsertFront removes any entry with the same id and prepends al.
func upsertFront(list []alert.Alert, al alert.Alert) []alert.Alert {
	out := make([]alert.Alert, 0, len(list)+1)
	out = append(out, al)
	for i := range list {
		if list[i].ID != al.ID {
			out = append(out, list[i])
		}
	}
	return out
}

// LoadState reads the persisted state from store.
func LoadState(ctx context.Context, store Store) (*State, error) {
	seen, err := store.SeenIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seen ids: %w", err)
	}
	stored, err := store.StoredAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored alerts: %w", err)
	}
	return NewStateFrom(seen, stored), nil
}
