package pgstore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
	"github.com/linnemanlabs/wxalerts/internal/ingest/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("WXALERTS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WXALERTS_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

// uniqueID keeps tests independent on a shared database.
func uniqueID(t *testing.T, suffix string) string {
	return fmt.Sprintf("%s-%d-%s", t.Name(), time.Now().UnixNano(), suffix)
}

func TestApplyDeltaAndFind(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id := uniqueID(t, "b1")

	al := &alert.Alert{ID: id, Headline: "Flood Watch", Description: "rivers rising", Severity: alert.SeverityModerate}
	if err := s.ApplyDelta(ctx, ingest.Delta{AddSeenID: id, Upsert: al}); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	got, ok, err := s.FindStored(ctx, id)
	if err != nil {
		t.Fatalf("FindStored: %v", err)
	}
	if !ok {
		t.Fatal("FindStored returned ok=false, want true")
	}
	if got.Headline != al.Headline || got.Severity != al.Severity {
		t.Errorf("got = %+v, want %+v", got, al)
	}

	seen, err := s.SeenIDs(ctx)
	if err != nil {
		t.Fatalf("SeenIDs: %v", err)
	}
	if _, ok := seen[id]; !ok {
		t.Errorf("seen ids missing %s", id)
	}
}

func TestUpsertMovesToFront(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	a, b := uniqueID(t, "a"), uniqueID(t, "b")

	_ = s.ApplyDelta(ctx, ingest.Delta{AddSeenID: a, Upsert: &alert.Alert{ID: a, Severity: alert.SeverityMinor}})
	_ = s.ApplyDelta(ctx, ingest.Delta{AddSeenID: b, Upsert: &alert.Alert{ID: b, Severity: alert.SeverityMinor}})
	if err := s.ApplyDelta(ctx, ingest.Delta{Upsert: &alert.Alert{ID: a, Description: "v2", Severity: alert.SeverityMinor}}); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	stored, err := s.StoredAlerts(ctx)
	if err != nil {
		t.Fatalf("StoredAlerts: %v", err)
	}
	if len(stored) < 2 || stored[0].ID != a || stored[0].Description != "v2" {
		t.Errorf("front of stored = %+v, want updated %s", stored[:min(2, len(stored))], a)
	}
}

func TestRejectsUnseenUpsert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id := uniqueID(t, "ghost")

	err := s.ApplyDelta(ctx, ingest.Delta{Upsert: &alert.Alert{ID: id}})
	if !errors.Is(err, ingest.ErrPersistence) || !errors.Is(err, ingest.ErrUnseenUpsert) {
		t.Fatalf("err = %v, want persistence unseen-upsert error", err)
	}
	if _, ok, _ := s.FindStored(ctx, id); ok {
		t.Error("rejected upsert was stored")
	}
}

func TestPruneKeepsSeenIDs(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id := uniqueID(t, "old")

	old := time.Now().Add(-90 * 24 * time.Hour)
	s.SetClock(func() time.Time { return old })
	if err := s.ApplyDelta(ctx, ingest.Delta{AddSeenID: id, Upsert: &alert.Alert{ID: id}}); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	n, err := s.Prune(ctx, old.Add(time.Second))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n < 1 {
		t.Errorf("pruned = %d, want >= 1", n)
	}
	if _, ok, _ := s.FindStored(ctx, id); ok {
		t.Error("old alert should be pruned")
	}
	seen, _ := s.SeenIDs(ctx)
	if _, ok := seen[id]; !ok {
		t.Error("prune must keep seen ids")
	}
}
