// Package pgstore provides a PostgreSQL implementation of ingest.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/wxalerts/internal/alert"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

var tracer = otel.Tracer("github.com/linnemanlabs/wxalerts/internal/ingest/pgstore")

//go:embed schema.sql
var schema string

// Store persists ingestion state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New applies the schema on pool and returns a ready Store. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// SetClock replaces the time source used to stamp stored alerts.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
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
	ctx, span := startSpan(ctx, "pgstore.SeenIDs", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT id FROM seen_ids`)
	if err != nil {
		return nil, fail(span, "seen ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fail(span, "seen ids", err)
	}

	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// StoredAlerts returns stored alerts, most recently written first.
func (s *Store) StoredAlerts(ctx context.Context) ([]alert.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.StoredAlerts", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT payload FROM stored_alerts ORDER BY seq DESC`)
	if err != nil {
		return nil, fail(span, "stored alerts", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fail(span, "stored alerts", err)
	}

	out := make([]alert.Alert, 0, len(payloads))
	for _, p := range payloads {
		var al alert.Alert
		if err := json.Unmarshal(p, &al); err != nil {
			return nil, fail(span, "stored alerts", fmt.Errorf("decode payload: %w", err))
		}
		out = append(out, al)
	}
	return out, nil
}

// FindStored returns the stored alert with the given id.
func (s *Store) FindStored(ctx context.Context, id string) (*alert.Alert, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.FindStored", "SELECT")
	defer span.End()

	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM stored_alerts WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, "find stored", err)
	}

	var al alert.Alert
	if err := json.Unmarshal(payload, &al); err != nil {
		return nil, false, fail(span, "find stored", fmt.Errorf("decode payload: %w", err))
	}
	return &al, true, nil
}

// ApplyDelta writes d in a single transaction.
func (s *Store) ApplyDelta(ctx context.Context, d ingest.Delta) error {
	ctx, span := startSpan(ctx, "pgstore.ApplyDelta", "UPSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, "apply delta", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	now := s.now().UTC()

	if d.AddSeenID != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO seen_ids (id, seen_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			d.AddSeenID, now,
		); err != nil {
			return fail(span, "apply delta", fmt.Errorf("insert seen id: %w", err))
		}
	}

	if d.Upsert != nil {
		span.SetAttributes(attribute.String("wxalerts.alert.id", d.Upsert.ID))
		if err := upsertStored(ctx, tx, d.Upsert, now); err != nil {
			return fail(span, "apply delta", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, "apply delta", fmt.Errorf("commit: %w", err))
	}
	return nil
}

func upsertStored(ctx context.Context, tx pgx.Tx, al *alert.Alert, now time.Time) error {
	var seen bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM seen_ids WHERE id = $1)`, al.ID).Scan(&seen); err != nil {
		return fmt.Errorf("check seen id: %w", err)
	}
	if !seen {
		return fmt.Errorf("%w: %q", ingest.ErrUnseenUpsert, al.ID)
	}

	payload, err := json.Marshal(al)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO stored_alerts (id, seq, stored_at, severity, payload)
	VALUES ($1, nextval('stored_alerts_seq'), $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		seq       = EXCLUDED.seq,
		stored_at = EXCLUDED.stored_at,
		severity  = EXCLUDED.severity,
		payload   = EXCLUDED.payload`,
		al.ID, now, string(al.Severity), payload,
	)
	if err != nil {
		return fmt.Errorf("upsert stored alert: %w", err)
	}
	return nil
}

// Prune deletes stored alerts written before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	ctx, span := startSpan(ctx, "pgstore.Prune", "DELETE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM stored_alerts WHERE stored_at < $1`, before.UTC())
	if err != nil {
		return 0, fail(span, "prune", err)
	}
	return int(tag.RowsAffected()), nil
}

// Reset deletes all state.
func (s *Store) Reset(ctx context.Context) error {
	ctx, span := startSpan(ctx, "pgstore.Reset", "DELETE")
	defer span.End()

	if _, err := s.pool.Exec(ctx, `TRUNCATE stored_alerts, seen_ids`); err != nil {
		return fail(span, "reset", err)
	}
	return nil
}
