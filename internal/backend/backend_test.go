package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/cfg"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

func TestOpen_Memory(t *testing.T) {
	t.Parallel()

	st, closeFn, err := Open(context.Background(), Options{Kind: cfg.StoreMemory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	if st == nil {
		t.Fatal("nil store")
	}
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "wx.db")
	st, closeFn, err := Open(ctx, Options{Kind: cfg.StoreSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	al := alert.Alert{ID: "B1", Headline: "Frost Advisory", Severity: alert.SeverityMinor}
	if err := st.ApplyDelta(ctx, ingest.Delta{AddSeenID: "B1", Upsert: &al}); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	closeFn()

	// state survives a reopen
	st, closeFn, err = Open(ctx, Options{Kind: cfg.StoreSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeFn()
	if _, ok, err := st.FindStored(ctx, "B1"); err != nil || !ok {
		t.Errorf("FindStored after reopen = %v, %v", ok, err)
	}
}

func TestOpen_Unknown(t *testing.T) {
	t.Parallel()

	if _, _, err := Open(context.Background(), Options{Kind: "redis"}); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestOpen_PostgresBadURL(t *testing.T) {
	t.Parallel()

	if _, _, err := Open(context.Background(), Options{Kind: cfg.StorePostgres, DatabaseURL: "://bad"}); err == nil {
		t.Fatal("expected error for unparsable database url")
	}
}
