// Package sqlitestore provides a single-file SQLite implementation of ingest.Store.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

var tracer = otel.Tracer("github.com/linnemanlabs/wxalerts/internal/ingest/sqlitestore")

//go:embed schema.sql
var schema string

const pragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"

// Store persists ingestion state in a SQLite database file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer connection keeps ApplyDelta transactions serialized
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// SetClock replaces the time source used to stamp stored alerts.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return ingest.Persistence(op, err)
}

// SeenIDs returns every id ever classified as new.
func (s *Store) SeenIDs(ctx context.Context) (map[string]struct{}, error) {
	ctx, span := startSpan(ctx, "sqlitestore.SeenIDs", "SELECT")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM seen_ids`)
	if err != nil {
		return nil, fail(span, "seen ids", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fail(span, "seen ids", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "seen ids", err)
	}
	return out, nil
}

// StoredAlerts returns stored alerts, most recently written first.
func (s *Store) StoredAlerts(ctx context.Context) ([]alert.Alert, error) {
	ctx, span := startSpan(ctx, "sqlitestore.StoredAlerts", "SELECT")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM stored_alerts ORDER BY seq DESC`)
	if err != nil {
		return nil, fail(span, "stored alerts", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fail(span, "stored alerts", err)
		}
		var al alert.Alert
		if err := json.Unmarshal([]byte(payload), &al); err != nil {
			return nil, fail(span, "stored alerts", fmt.Errorf("decode payload: %w", err))
		}
		out = append(out, al)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "stored alerts", err)
	}
	return out, nil
}

// FindStored returns the stored alert with the given id.
func (s *Store) FindStored(ctx context.Context, id string) (*alert.Alert, bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.FindStored", "SELECT")
	defer span.End()

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM stored_alerts WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, "find stored", err)
	}

	var al alert.Alert
	if err := json.Unmarshal([]byte(payload), &al); err != nil {
		return nil, false, fail(span, "find stored", fmt.Errorf("decode payload: %w", err))
	}
	return &al, true, nil
}

// ApplyDelta writes d in a single transaction.
func (s *Store) ApplyDelta(ctx context.Context, d ingest.Delta) error {
	ctx, span := startSpan(ctx, "sqlitestore.ApplyDelta", "UPSERT")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, "apply delta", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	now := s.now().UnixNano()

	if d.AddSeenID != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO seen_ids (id, seen_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
			d.AddSeenID, now,
		); err != nil {
			return fail(span, "apply delta", fmt.Errorf("insert seen id: %w", err))
		}
	}

	if d.Upsert != nil {
		span.SetAttributes(attribute.String("wxalerts.alert.id", d.Upsert.ID))

		var seen bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM seen_ids WHERE id = ?)`, d.Upsert.ID,
		).Scan(&seen); err != nil {
			return fail(span, "apply delta", fmt.Errorf("check seen id: %w", err))
		}
		if !seen {
			return fail(span, "apply delta", fmt.Errorf("%w: %q", ingest.ErrUnseenUpsert, d.Upsert.ID))
		}

		payload, err := json.Marshal(d.Upsert)
		if err != nil {
			return fail(span, "apply delta", fmt.Errorf("encode payload: %w", err))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stored_alerts (id, seq, stored_at, payload)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM stored_alerts), ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				seq       = excluded.seq,
				stored_at = excluded.stored_at,
				payload   = excluded.payload`,
			d.Upsert.ID, now, string(payload),
		); err != nil {
			return fail(span, "apply delta", fmt.Errorf("upsert stored alert: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(span, "apply delta", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Prune deletes stored alerts written before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Prune", "DELETE")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM stored_alerts WHERE stored_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fail(span, "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fail(span, "prune", err)
	}
	return int(n), nil
}

// Reset deletes all state.
func (s *Store) Reset(ctx context.Context) error {
	ctx, span := startSpan(ctx, "sqlitestore.Reset", "DELETE")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, "reset", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	for _, q := range []string{`DELETE FROM stored_alerts`, `DELETE FROM seen_ids`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fail(span, "reset", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(span, "reset", fmt.Errorf("commit: %w", err))
	}
	return nil
}
