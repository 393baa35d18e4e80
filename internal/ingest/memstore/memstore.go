// Package memstore provides an in-memory implementation of ingest.Store.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

type entry struct {
	alert    alert.Alert
	storedAt time.Time
}

// Store holds ingestion state in memory. Suitable for dev/testing.
type Store struct {
	mu     sync.RWMutex
	seen   map[string]struct{}
	stored []entry // most recent first
	now    func() time.Time
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		seen: make(map[string]struct{}),
		now:  time.Now,
	}
}

// SetClock replaces the time source used to stamp stored alerts.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SeenIDs returns a copy of the seen id set.
func (s *Store) SeenIDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.seen))
	for id := range s.seen {
		out[id] = struct{}{}
	}
	return out, nil
}

// StoredAlerts returns a copy of the stored alerts, most recent first.
func (s *Store) StoredAlerts(_ context.Context) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alert.Alert, len(s.stored))
	for i := range s.stored {
		out[i] = s.stored[i].alert
	}
	return out, nil
}

// FindStored returns a copy of the stored alert with the given id.
func (s *Store) FindStored(_ context.Context, id string) (*alert.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.stored {
		if s.stored[i].alert.ID == id {
			cp := s.stored[i].alert
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

// ApplyDelta applies d in a single critical section.
func (s *Store) ApplyDelta(_ context.Context, d ingest.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Upsert != nil {
		_, seen := s.seen[d.Upsert.ID]
		if d.Upsert.ID == "" || (!seen && d.AddSeenID != d.Upsert.ID) {
			return ingest.Persistence("apply delta", fmt.Errorf("%w: %q", ingest.ErrUnseenUpsert, d.Upsert.ID))
		}
	}

	if d.AddSeenID != "" {
		s.seen[d.AddSeenID] = struct{}{}
	}
	if d.Upsert != nil {
		next := make([]entry, 0, len(s.stored)+1)
		next = append(next, entry{alert: *d.Upsert, storedAt: s.now()})
		for _, e := range s.stored {
			if e.alert.ID != d.Upsert.ID {
				next = append(next, e)
			}
		}
		s.stored = next
	}
	return nil
}

// Prune drops stored alerts written before the cutoff.
func (s *Store) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.stored[:0]
	var n int
	for _, e := range s.stored {
		if e.storedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.stored = kept
	return n, nil
}

// Reset clears all state.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
	s.stored = nil
	return nil
}
