// Package backend opens the ingest.Store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/wxalerts/internal/cfg"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
	"github.com/linnemanlabs/wxalerts/internal/ingest/memstore"
	"github.com/linnemanlabs/wxalerts/internal/ingest/pgstore"
	"github.com/linnemanlabs/wxalerts/internal/ingest/sqlitestore"
	"github.com/linnemanlabs/wxalerts/internal/postgres"
)

// Options selects and tunes a store.
type Options struct {
	Kind        string // cfg.StoreSQLite, cfg.StorePostgres or cfg.StoreMemory
	SQLitePath  string
	DatabaseURL string
	MaxConns    int
	Observer    postgres.QueryObserver
}

// Open returns the store and a function releasing its resources.
func Open(ctx context.Context, o Options) (ingest.Store, func(), error) {
	switch o.Kind {
	case cfg.StoreMemory:
		return memstore.New(), func() {}, nil

	case cfg.StoreSQLite, "":
		st, err := sqlitestore.Open(ctx, o.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil

	case cfg.StorePostgres:
		pool, err := postgres.NewPool(ctx, o.DatabaseURL, postgres.PoolConfig{
			MaxConns:  int32(min(max(o.MaxConns, 0), 100)), //nolint:gosec // bounded above
			SlowQuery: 250 * time.Millisecond,
			Observer:  o.Observer,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		st, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgstore init: %w", err)
		}
		return st, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", o.Kind)
	}
}
