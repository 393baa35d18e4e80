package ingest

import (
	"context"
	"time"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

// Store is the persistence interface for ingestion state. ApplyDelta is the
// only ingestion write path and must be atomic: on error nothing changed.
// Implementations return errors matching ErrPersistence.
type Store interface {
	SeenIDs(ctx context.Context) (map[string]struct{}, error)
	StoredAlerts(ctx context.Context) ([]alert.Alert, error)
	FindStored(ctx context.Context, id string) (*alert.Alert, bool, error)
	ApplyDelta(ctx context.Context, d Delta) error

	// Prune drops stored alerts last written before the cutoff. Seen ids are kept.
	Prune(ctx context.Context, before time.Time) (int, error)

	// Reset clears all persisted state.
	Reset(ctx context.Context) error
}
