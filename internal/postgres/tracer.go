package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

type ctxKey string

const (
	ctxKeyQuery  ctxKey = "pgx.query"
	ctxKeyOrigin ctxKey = "db.origin"
)

// queryStart is stashed in the context between TraceQueryStart and TraceQueryEnd.
type queryStart struct {
	sql    string
	args   []any
	start  time.Time
	caller string
}

// QueryObserver receives the outcome of every query.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, origin, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, origin, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, origin, outcome string, dur time.Duration) {
	f(ctx, origin, outcome, dur)
}

// NewQueryMetrics registers a query duration histogram and returns an observer feeding it.
func NewQueryMetrics(reg prometheus.Registerer) QueryObserver {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wxalerts_db_query_duration_seconds",
		Help:    "PostgreSQL query duration by origin and outcome.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
	}, []string{"origin", "outcome"})
	reg.MustRegister(h)
	return QueryObserverFunc(func(_ context.Context, origin, outcome string, dur time.Duration) {
		h.WithLabelValues(origin, outcome).Observe(dur.Seconds())
	})
}

// WithOrigin labels queries issued under ctx, e.g. "poller" or "reset".
func WithOrigin(ctx context.Context, origin string) context.Context {
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyOrigin, origin)
}

// originFromContext prefers an explicit origin, then the chi route pattern.
func originFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyOrigin).(string); ok {
		return v
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}

// queryTracer wraps otelpgx and adds a structured log line and an observation per query.
type queryTracer struct {
	inner     pgx.QueryTracer
	observer  QueryObserver
	slowQuery time.Duration
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	qs := &queryStart{
		sql:    data.SQL,
		args:   data.Args,
		start:  time.Now(),
		caller: findStoreCaller(),
	}

	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attribute.String("db.origin", originFromContext(ctx)))
		if qs.caller != "" {
			span.SetAttributes(attribute.String("db.caller", qs.caller))
		}
	}

	return context.WithValue(ctx, ctxKeyQuery, qs)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	qs, ok := ctx.Value(ctxKeyQuery).(*queryStart)
	if !ok {
		return
	}
	dur := time.Since(qs.start)
	origin := originFromContext(ctx)

	if t.observer != nil {
		outcome := "ok"
		if data.Err != nil {
			outcome = "error"
		}
		t.observer.ObserveQuery(ctx, origin, outcome, dur)
	}

	if data.Err == nil && dur < t.slowQuery {
		return
	}

	fields := []any{
		"db.statement", qs.sql,
		"db.args", len(qs.args),
		"db.duration", dur.Seconds(),
		"db.origin", origin,
	}
	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		if parts := strings.Fields(tag); len(parts) > 0 {
			fields = append(fields, "db.operation.name", strings.ToUpper(parts[0]))
		}
		fields = append(fields, "db.rows", data.CommandTag.RowsAffected())
	}
	if qs.caller != "" {
		fields = append(fields, "db.caller", qs.caller)
	}

	L := log.FromContext(ctx)
	if data.Err != nil {
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			fields = append(fields,
				"db.error_code", pgErr.Code,
				"db.error_constraint", pgErr.ConstraintName,
			)
		}
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "slow db query", fields...)
}

// findStoreCaller returns the first frame outside pgx, otelpgx and this package.
func findStoreCaller() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		fn := fr.Function
		if fn != "" &&
			!strings.HasPrefix(fn, "runtime.") &&
			!strings.Contains(fn, "github.com/jackc/pgx/v5") &&
			!strings.Contains(fn, "github.com/exaring/otelpgx") &&
			!strings.Contains(fn, "github.com/linnemanlabs/wxalerts/internal/postgres.") {
			return shortenFuncName(fn)
		}
		if !more {
			return ""
		}
	}
}

func shortenFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
