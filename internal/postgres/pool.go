// Package postgres builds pgx connection pools with tracing, query logging
// and query metrics attached.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig tunes NewPool. The zero value is usable.
type PoolConfig struct {
	MaxConns int32

	// SlowQuery is the logging threshold. Failed queries are always logged.
	SlowQuery time.Duration

	Observer QueryObserver
}

// NewPool parses databaseURL, installs the query tracer and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	cfg.ConnConfig.Tracer = &queryTracer{
		inner:     otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName()),
		observer:  pc.Observer,
		slowQuery: pc.SlowQuery,
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
