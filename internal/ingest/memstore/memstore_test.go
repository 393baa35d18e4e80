package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

func TestStore_ApplyDeltaAndFind(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	al := &alert.Alert{ID: "B1", Headline: "Frost Advisory", Description: "desc", Severity: alert.SeverityMinor}
	if err := s.ApplyDelta(ctx, ingest.Delta{AddSeenID: "B1", Upsert: al}); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	got, ok, err := s.FindStored(ctx, "B1")
	if err != nil {
		t.Fatalf("FindStored: %v", err)
	}
	if !ok {
		t.Fatal("expected alert to be found")
	}
	if got.Headline != "Frost Advisory" {
		t.Errorf("Headline = %q, want %q", got.Headline, "Frost Advisory")
	}

	seen, _ := s.SeenIDs(ctx)
	if _, ok := seen["B1"]; !ok {
		t.Error("expected B1 in seen ids")
	}
}

func TestStore_FindMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.FindStored(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("FindStored: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing id")
	}
}

func TestStore_UpsertReplacesAndMovesToFront(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.ApplyDelta(ctx, ingest.Delta{AddSeenID: "a", Upsert: &alert.Alert{ID: "a", Headline: "one"}})
	_ = s.ApplyDelta(ctx, ingest.Delta{AddSeenID: "b", Upsert: &alert.Alert{ID: "b", Headline: "two"}})
	_ = s.ApplyDelta(ctx, ingest.Delta{Upsert: &alert.Alert{ID: "a", Headline: "one v2"}})

	stored, _ := s.StoredAlerts(ctx)
	if len(stored) != 2 {
		t.Fatalf("len(stored) = %d, want 2", len(stored))
	}
	if stored[0].ID != "a" || stored[0].Headline != "one v2" {
		t.Errorf("stored[0] = %+v, want updated a first", stored[0])
	}
	if stored[1].ID != "b" {
		t.Errorf("stored[1].ID = %q, want b", stored[1].ID)
	}
}

func TestStore_RejectsUnseenUpsert(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	err := s.ApplyDelta(ctx, ingest.Delta{Upsert: &alert.Alert{ID: "ghost"}})
	if !errors.Is(err, ingest.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if !errors.Is(err, ingest.ErrUnseenUpsert) {
		t.Errorf("err = %v, want ErrUnseenUpsert", err)
	}
	stored, _ := s.StoredAlerts(ctx)
	if len(stored) != 0 {
		t.Errorf("state changed after failed delta: %+v", stored)
	}
}

func TestStore_PruneKeepsSeenIDs(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.SetClock(func() time.Time { return base })
	_ = s.ApplyDelta(ctx, ingest.Delta{AddSeenID: "old", Upsert: &alert.Alert{ID: "old"}})
	s.SetClock(func() time.Time { return base.Add(48 * time.Hour) })
	_ = s.ApplyDelta(ctx, ingest.Delta{AddSeenID: "new", Upsert: &alert.Alert{ID: "new"}})

	n, err := s.Prune(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, ok, _ := s.FindStored(ctx, "old"); ok {
		t.Error("old alert should be pruned")
	}
	seen, _ := s.SeenIDs(ctx)
	if _, ok := seen["old"]; !ok {
		t.Error("prune must not remove seen ids")
	}
}

func TestStore_Reset(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.ApplyDelta(ctx, ingest.Delta{AddSeenID: "x", Upsert: &alert.Alert{ID: "x"}})
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	seen, _ := s.SeenIDs(ctx)
	stored, _ := s.StoredAlerts(ctx)
	if len(seen) != 0 || len(stored) != 0 {
		t.Errorf("after reset seen=%d stored=%d, want 0/0", len(seen), len(stored))
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	for i := range n {
		id := fmt.Sprintf("id-%d", i)

		go func() {
			defer wg.Done()
			_ = s.ApplyDelta(ctx, ingest.Delta{AddSeenID: id, Upsert: &alert.Alert{ID: id}})
		}()

		go func() {
			defer wg.Done()
			_, _, _ = s.FindStored(ctx, id)
			_, _ = s.SeenIDs(ctx)
		}()
	}

	wg.Wait()

	stored, _ := s.StoredAlerts(ctx)
	if len(stored) != n {
		t.Errorf("len(stored) = %d, want %d", len(stored), n)
	}
}
